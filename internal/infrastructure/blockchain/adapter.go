package blockchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
)

// ChainAdapter is the shared capability set implemented once per supported
// chain. Implementations own their ChainAdapterConfig and connection; no
// state is shared between adapters so one chain being down never blocks
// another.
type ChainAdapter interface {
	// ChainInfo returns a descriptive snapshot, served from a cache that is
	// refreshed at a bounded interval.
	ChainInfo(ctx context.Context) (*entities.ChainInfo, error)
	// ValidateAddress performs pure syntactic/checksum validation per the
	// chain's address grammar. Never touches the network.
	ValidateAddress(address string) entities.AddressValidation
	// GetBalance is a read-only query; asset equal to AssetNative queries
	// the native currency. Amounts are in the chain's smallest unit.
	GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error)
	// EstimateFee quotes a fee per the chain's pricing model. It fails when
	// the fee oracle is unavailable instead of guessing.
	EstimateFee(ctx context.Context, shape entities.TransferShape) (*entities.FeeEstimate, error)
	// SubmitTransfer broadcasts a chain-native transaction. The caller
	// supplies the transfer id as idempotency key; resubmitting the same key
	// after a timeout must not produce a second transaction.
	SubmitTransfer(ctx context.Context, idemKey string, req *entities.TransferRequest) (*entities.TransferResult, error)
	// GetTransferStatus reads the transaction lifecycle; finalization uses
	// the adapter's configured confirmation depth.
	GetTransferStatus(ctx context.Context, txHash string) (*entities.TransferStatus, error)
	// VerifyProof dispatches on the proof kind tag.
	VerifyProof(ctx context.Context, req *entities.ProofVerificationRequest) (*entities.ProofVerification, error)
	// HealthCheck probes the chain endpoint.
	HealthCheck(ctx context.Context) error
}

// AssetNative selects the chain's native currency in balance queries
const AssetNative = "native"

// ContractCaller is the optional capability of chains with a programmable
// execution layer. Chains without one simply do not implement it; callers
// feature-test with a type assertion.
type ContractCaller interface {
	CallContract(ctx context.Context, to string, data []byte) ([]byte, error)
}

// InclusionProver is the optional capability of producing an inclusion proof
// for a transaction already finalized on the chain.
type InclusionProver interface {
	FetchInclusionProof(ctx context.Context, txHash string) (*entities.ProofVerificationRequest, error)
}

// TxSender is the wallet/signing boundary. Key management is external; an
// adapter without a sender can serve reads and proofs but not submissions.
type TxSender interface {
	Send(ctx context.Context, idemKey string, req *entities.TransferRequest) (txHash string, err error)
}

// AdapterRegistry resolves chain adapters by chain id
type AdapterRegistry struct {
	adapters map[string]ChainAdapter
	mu       sync.RWMutex
}

// NewAdapterRegistry creates an empty registry
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{
		adapters: make(map[string]ChainAdapter),
	}
}

// Register adds an adapter under its chain id, replacing any previous one
func (r *AdapterRegistry) Register(chainID string, adapter ChainAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[chainID] = adapter
}

// Resolve returns the adapter for a chain id
func (r *AdapterRegistry) Resolve(chainID string) (ChainAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedChain, chainID)
	}
	return adapter, nil
}

// ChainIDs returns the registered chain ids
func (r *AdapterRegistry) ChainIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
