package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// NetworkClass distinguishes production networks from test networks
type NetworkClass string

const (
	NetworkMainnet NetworkClass = "MAINNET"
	NetworkTestnet NetworkClass = "TESTNET"
)

// FeeModel is the pricing model a chain uses
type FeeModel string

const (
	// FeeModelLegacy is a single gas/fee price
	FeeModelLegacy FeeModel = "LEGACY"
	// FeeModelDynamic is base fee plus priority fee
	FeeModelDynamic FeeModel = "DYNAMIC"
)

// ConsensusFamily is the rough consensus category of a chain
type ConsensusFamily string

const (
	ConsensusProofOfWork  ConsensusFamily = "PROOF_OF_WORK"
	ConsensusProofOfStake ConsensusFamily = "PROOF_OF_STAKE"
	ConsensusBFT          ConsensusFamily = "BFT"
)

// ChainInfo is a descriptive snapshot of a chain. It carries no identity
// beyond the chain id and is refreshed on demand by the owning adapter.
type ChainInfo struct {
	ChainID        string          `json:"chainId"`
	Name           string          `json:"name"`
	NativeCurrency string          `json:"nativeCurrency"`
	Decimals       int32           `json:"decimals"`
	Network        NetworkClass    `json:"network"`
	Consensus      ConsensusFamily `json:"consensus"`
	FeeModel       FeeModel        `json:"feeModel"`
	BlockTime      time.Duration   `json:"blockTime"`
	GasPrice       decimal.Decimal `json:"gasPrice"`
	RefreshedAt    time.Time       `json:"refreshedAt"`
}

// ChainAdapterConfig is the immutable per-adapter configuration. One instance
// is owned exclusively by its adapter and never mutated after construction.
type ChainAdapterConfig struct {
	ChainID        string
	Name           string
	RPCURL         string
	WSURL          string
	Confirmations  int64
	MaxRetries     int
	RetryBackoff   time.Duration
	RequestTimeout time.Duration
	EventStreaming bool
	// RPCRateLimit caps outbound RPC calls per second; zero means unlimited.
	RPCRateLimit float64
}

// AddressValidation is the result of syntactic address validation
type AddressValidation struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// TransferShape describes a prospective transfer for fee estimation
type TransferShape struct {
	Asset string `json:"asset"`
	// ContractCall marks transfers that go through a programmable execution
	// layer and therefore cost more than a plain value transfer.
	ContractCall bool `json:"contractCall"`
}

// FeeEstimate is a fee quote appropriate to the chain's pricing model
type FeeEstimate struct {
	Model       FeeModel        `json:"model"`
	GasPrice    decimal.Decimal `json:"gasPrice,omitempty"`
	BaseFee     decimal.Decimal `json:"baseFee,omitempty"`
	PriorityFee decimal.Decimal `json:"priorityFee,omitempty"`
	Total       decimal.Decimal `json:"total"`
}

// TransferState is the on-chain lifecycle of a submitted transaction
type TransferState string

const (
	TransferStatePending   TransferState = "PENDING"
	TransferStateConfirmed TransferState = "CONFIRMED"
	TransferStateFinalized TransferState = "FINALIZED"
	TransferStateFailed    TransferState = "FAILED"
)

// TransferStatus is a point-in-time read of a transaction's lifecycle
type TransferStatus struct {
	State         TransferState `json:"state"`
	Confirmations int64         `json:"confirmations"`
	BlockNumber   int64         `json:"blockNumber,omitempty"`
}
