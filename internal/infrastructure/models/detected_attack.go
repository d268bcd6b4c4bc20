package models

import (
	"time"

	"github.com/google/uuid"
)

type DetectedAttack struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TxID          string    `gorm:"type:varchar(255);not null;index"`
	SourceAddress string    `gorm:"type:varchar(255);not null;index"`
	Flags         string    `gorm:"type:varchar(255);not null"` // comma-joined
	Severity      string    `gorm:"type:varchar(16);not null"`
	DetectedAt    time.Time `gorm:"not null;index"`
}

func (DetectedAttack) TableName() string {
	return "detected_attacks"
}
