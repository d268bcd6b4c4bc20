package models

import (
	"time"

	"github.com/google/uuid"
)

type BridgeTransfer struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SourceChainID string    `gorm:"type:varchar(64);not null;index"`
	DestChainID   string    `gorm:"type:varchar(64);not null;index"`
	SourceAddress string    `gorm:"type:varchar(255);not null;index"`
	DestAddress   string    `gorm:"type:varchar(255);not null"`
	Asset         string    `gorm:"type:varchar(64);not null"`
	Amount        string    `gorm:"type:varchar(100);not null"` // decimal string
	FeeAmount     string    `gorm:"type:varchar(100);default:'0'"`
	Direction     string    `gorm:"type:varchar(16);not null"`
	Phase         string    `gorm:"type:varchar(32);not null;index"`
	RejectReason  *string   `gorm:"type:varchar(64)"`
	RevertReason  *string   `gorm:"type:varchar(64)"`
	SourceTxHash  *string   `gorm:"type:varchar(255);index"`
	SourceBlock   int64
	Confirmations int64
	ProofBlob     []byte    `gorm:"type:bytea"`
	DestTxHash    *string   `gorm:"type:varchar(255)"`
	UnlockTxHash  *string   `gorm:"type:varchar(255)"`
	ExpiresAt     time.Time `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (BridgeTransfer) TableName() string {
	return "bridge_transfers"
}
