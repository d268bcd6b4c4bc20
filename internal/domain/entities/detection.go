package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Detection flags raised by the flash-loan detector
const (
	FlagSameBlockRoundTrip = "SAME_BLOCK_ROUND_TRIP"
	FlagRapidSequence      = "RAPID_SEQUENCE"
	FlagLargeAmountPattern = "LARGE_AMOUNT_PATTERN"
)

// Severity grades a detection reason
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// DetectionReason pairs a rule type with the severity it fired at
type DetectionReason struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
}

// TransferCheck is the prospective transfer handed to the detector. It uses
// only information available before the transfer completes.
type TransferCheck struct {
	TxID        string          `json:"txId"`
	Address     string          `json:"address"`
	Amount      decimal.Decimal `json:"amount"`
	BlockNumber int64           `json:"blockNumber"`
}

// DetectedAttack is the audit record attached when a transfer is blocked
type DetectedAttack struct {
	ID            uuid.UUID `json:"id"`
	TxID          string    `json:"txId"`
	SourceAddress string    `json:"sourceAddress"`
	Flags         []string  `json:"flags"`
	Severity      Severity  `json:"severity"`
	DetectedAt    time.Time `json:"detectedAt"`
}

// DetectionResult is the detector's verdict for a single analysis. Allowed
// and Blocked are mutually exclusive by construction.
type DetectionResult struct {
	Blocked bool              `json:"blocked"`
	Flags   []string          `json:"flags"`
	Reasons []DetectionReason `json:"reasons"`
	Attack  *DetectedAttack   `json:"attack,omitempty"`
}

// Allowed reports the inverse of Blocked
func (r *DetectionResult) Allowed() bool {
	return !r.Blocked
}

// HasFlag reports whether the given flag was raised
func (r *DetectionResult) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
