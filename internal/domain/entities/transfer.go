package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// TransferPhase represents the orchestration state of a bridge transfer
type TransferPhase string

const (
	PhaseRequested    TransferPhase = "REQUESTED"
	PhaseAdmitted     TransferPhase = "ADMITTED"
	PhaseLocked       TransferPhase = "LOCKED"
	PhaseProofPending TransferPhase = "PROOF_PENDING"
	PhaseVerified     TransferPhase = "VERIFIED"
	PhaseAuthorized   TransferPhase = "AUTHORIZED"
	PhaseMinted       TransferPhase = "MINTED"
	PhaseCompleted    TransferPhase = "COMPLETED"
	PhaseRejected     TransferPhase = "REJECTED"
	PhaseReverted     TransferPhase = "REVERTED"
)

// phaseSuccessors encodes the legal forward transitions. Verification can
// never be skipped: Locked only reaches Verified through ProofPending.
var phaseSuccessors = map[TransferPhase][]TransferPhase{
	PhaseRequested:    {PhaseAdmitted, PhaseRejected},
	PhaseAdmitted:     {PhaseLocked, PhaseRejected},
	PhaseLocked:       {PhaseProofPending, PhaseReverted},
	PhaseProofPending: {PhaseVerified, PhaseReverted},
	PhaseVerified:     {PhaseAuthorized, PhaseReverted},
	PhaseAuthorized:   {PhaseMinted, PhaseReverted},
	PhaseMinted:       {PhaseCompleted, PhaseReverted},
}

// Terminal reports whether no further transitions are possible
func (p TransferPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseRejected || p == PhaseReverted
}

// CanTransitionTo reports whether next is a legal successor of p
func (p TransferPhase) CanTransitionTo(next TransferPhase) bool {
	for _, s := range phaseSuccessors[p] {
		if s == next {
			return true
		}
	}
	return false
}

// RejectReason distinguishes admission denials for the caller
type RejectReason string

const (
	RejectReasonRateLimited    RejectReason = "RATE_LIMITED"
	RejectReasonAttackDetected RejectReason = "ATTACK_DETECTED"
	RejectReasonLockFailed     RejectReason = "LOCK_FAILED"
	// RejectReasonCancelled marks operator cancellations.
	RejectReasonCancelled RejectReason = "CANCELLED"
	// RejectReasonExpired marks transfers swept before funds were locked.
	RejectReasonExpired RejectReason = "EXPIRED"
)

// RevertReason records why a transfer left the happy path after locking
type RevertReason string

const (
	RevertReasonProofInvalid        RevertReason = "PROOF_INVALID"
	RevertReasonAuthorizationDenied RevertReason = "AUTHORIZATION_DENIED"
	RevertReasonExpired             RevertReason = "EXPIRED"
)

// TransferRequest is the immutable client input for a bridge transfer
type TransferRequest struct {
	SourceChainID string          `json:"sourceChainId"`
	DestChainID   string          `json:"destChainId"`
	SourceAddress string          `json:"sourceAddress"`
	DestAddress   string          `json:"destAddress"`
	Asset         string          `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
}

// TransferResult is produced once per submission attempt and never
// overwritten; a new attempt produces a new result.
type TransferResult struct {
	TransferID string `json:"transferId"`
	Success    bool   `json:"success"`
	TxHash     string `json:"txHash,omitempty"`
}

// TransferDirection says what the destination side does with value
type TransferDirection string

const (
	// DirectionMint wraps value on the destination chain
	DirectionMint TransferDirection = "MINT"
	// DirectionUnlock releases pre-escrowed destination liquidity
	DirectionUnlock TransferDirection = "UNLOCK"
)

// BridgeTransfer is the long-lived orchestration record. It is mutated only
// by the orchestrator goroutine driving that transfer id.
type BridgeTransfer struct {
	ID            uuid.UUID         `json:"id"`
	SourceChainID string            `json:"sourceChainId"`
	DestChainID   string            `json:"destChainId"`
	SourceAddress string            `json:"sourceAddress"`
	DestAddress   string            `json:"destAddress"`
	Asset         string            `json:"asset"`
	Amount        decimal.Decimal   `json:"amount"`
	FeeAmount     decimal.Decimal   `json:"feeAmount"`
	Direction     TransferDirection `json:"direction"`
	Phase         TransferPhase     `json:"phase"`
	RejectReason  null.String       `json:"rejectReason,omitempty"`
	RevertReason  null.String       `json:"revertReason,omitempty"`

	// Proof artifacts, accumulated as the transfer progresses.
	SourceTxHash  null.String `json:"sourceTxHash,omitempty"`
	SourceBlock   int64       `json:"sourceBlock,omitempty"`
	Confirmations int64       `json:"confirmations"`
	ProofBlob     []byte      `json:"-"`

	DestTxHash   null.String `json:"destTxHash,omitempty"`
	UnlockTxHash null.String `json:"unlockTxHash,omitempty"`

	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateTransferInput is the HTTP input for creating a transfer
type CreateTransferInput struct {
	SourceChainID string `json:"sourceChainId" binding:"required"`
	DestChainID   string `json:"destChainId" binding:"required"`
	SourceAddress string `json:"sourceAddress" binding:"required"`
	DestAddress   string `json:"destAddress" binding:"required"`
	Asset         string `json:"asset" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	// Direction defaults to MINT when omitted.
	Direction string `json:"direction" binding:"omitempty,oneof=MINT UNLOCK"`
}
