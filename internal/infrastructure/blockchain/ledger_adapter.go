package blockchain

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
)

// LedgerRPC is the boundary to the bridge-operated account ledger. Entries
// are final as soon as they are written; there is no probabilistic
// confirmation window.
type LedgerRPC interface {
	Height(ctx context.Context) (int64, error)
	GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error)
	// Submit applies a mint, burn, or transfer entry. Resubmitting the same
	// idemKey returns the original entry hash without applying it again.
	Submit(ctx context.Context, idemKey string, req *entities.TransferRequest) (txHash string, err error)
	// GetTxHeight returns the ledger height an entry was written at, or
	// ErrTxNotFound for an unknown entry hash.
	GetTxHeight(ctx context.Context, txHash string) (int64, error)
	// Attest signs an entry hash with the ledger's ed25519 key, producing a
	// portable inclusion attestation.
	Attest(ctx context.Context, txHash string) (signature []byte, signer string, err error)
}

// LedgerAdapter implements the chain capability set for the internal account
// ledger. Addresses are hex-encoded ed25519 public keys; inclusion proofs are
// ledger-key attestations rather than merkle paths.
type LedgerAdapter struct {
	cfg   entities.ChainAdapterConfig
	rpc   LedgerRPC
	guard *rpcGuard
	zk    *ZKVerifierRegistry
}

// NewLedgerAdapter wires the adapter around an injected ledger client
func NewLedgerAdapter(cfg entities.ChainAdapterConfig, rpc LedgerRPC, zk *ZKVerifierRegistry) *LedgerAdapter {
	if zk == nil {
		zk = NewZKVerifierRegistry()
	}
	return &LedgerAdapter{
		cfg:   cfg,
		rpc:   rpc,
		guard: newRPCGuard(cfg),
		zk:    zk,
	}
}

// ChainInfo is static for the ledger; nothing needs refreshing
func (a *LedgerAdapter) ChainInfo(ctx context.Context) (*entities.ChainInfo, error) {
	return &entities.ChainInfo{
		ChainID:        a.cfg.ChainID,
		Name:           a.cfg.Name,
		NativeCurrency: "UNIT",
		Decimals:       18,
		Network:        entities.NetworkMainnet,
		Consensus:      entities.ConsensusBFT,
		FeeModel:       entities.FeeModelLegacy,
		BlockTime:      time.Second,
		GasPrice:       decimal.Zero,
		RefreshedAt:    time.Now().UTC(),
	}, nil
}

// ValidateAddress requires a hex-encoded ed25519 public key, normalized to
// lowercase
func (a *LedgerAdapter) ValidateAddress(address string) entities.AddressValidation {
	lowered := strings.ToLower(address)
	raw, err := hex.DecodeString(lowered)
	if err != nil {
		return entities.AddressValidation{Valid: false, Reason: "not hex"}
	}
	if len(raw) != ed25519.PublicKeySize {
		return entities.AddressValidation{Valid: false, Reason: fmt.Sprintf("want %d bytes, got %d", ed25519.PublicKeySize, len(raw))}
	}
	return entities.AddressValidation{Valid: true, Normalized: lowered}
}

// GetBalance queries the ledger account balance
func (a *LedgerAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	v := a.ValidateAddress(address)
	if !v.Valid {
		return decimal.Zero, fmt.Errorf("%w: %s", domainerrors.ErrInvalidInput, v.Reason)
	}
	if asset == "" {
		asset = AssetNative
	}

	var balance decimal.Decimal
	err := a.guard.do(ctx, "getBalance", func(ctx context.Context) error {
		var err error
		balance, err = a.rpc.GetBalance(ctx, v.Normalized, asset)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// EstimateFee is always zero; the ledger charges no execution fee
func (a *LedgerAdapter) EstimateFee(ctx context.Context, shape entities.TransferShape) (*entities.FeeEstimate, error) {
	if shape.ContractCall {
		return nil, fmt.Errorf("%w: ledger has no execution layer", domainerrors.ErrInvalidInput)
	}
	return &entities.FeeEstimate{
		Model:    entities.FeeModelLegacy,
		GasPrice: decimal.Zero,
		Total:    decimal.Zero,
	}, nil
}

// SubmitTransfer writes a ledger entry; idempotency is handled ledger-side
// by the entry key
func (a *LedgerAdapter) SubmitTransfer(ctx context.Context, idemKey string, req *entities.TransferRequest) (*entities.TransferResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domainerrors.ErrInvalidInput)
	}

	var txHash string
	err := a.guard.do(ctx, "submitTransfer", func(ctx context.Context) error {
		var err error
		txHash, err = a.rpc.Submit(ctx, idemKey, req)
		return err
	})
	if err != nil {
		return &entities.TransferResult{TransferID: idemKey, Success: false}, err
	}
	return &entities.TransferResult{TransferID: idemKey, Success: true, TxHash: txHash}, nil
}

// GetTransferStatus reports written entries as finalized immediately
func (a *LedgerAdapter) GetTransferStatus(ctx context.Context, txHash string) (*entities.TransferStatus, error) {
	var status *entities.TransferStatus
	err := a.guard.do(ctx, "getTransferStatus", func(ctx context.Context) error {
		height, err := a.rpc.GetTxHeight(ctx, txHash)
		if err == ErrTxNotFound {
			status = &entities.TransferStatus{State: entities.TransferStatePending}
			return nil
		}
		if err != nil {
			return err
		}
		status = &entities.TransferStatus{
			State:         entities.TransferStateFinalized,
			Confirmations: a.cfg.Confirmations,
			BlockNumber:   height,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// FetchInclusionProof asks the ledger to attest the entry with its signing key
func (a *LedgerAdapter) FetchInclusionProof(ctx context.Context, txHash string) (*entities.ProofVerificationRequest, error) {
	var sig []byte
	var signer string
	err := a.guard.do(ctx, "fetchInclusionProof", func(ctx context.Context) error {
		var err error
		sig, signer, err = a.rpc.Attest(ctx, txHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &entities.ProofVerificationRequest{
		Kind: entities.ProofKindSignature,
		Signature: &entities.SignatureProof{
			Message:   []byte(txHash),
			Signature: sig,
			Signer:    signer,
		},
	}, nil
}

// VerifyProof dispatches on the proof kind tag. The ledger has no merkle
// structure, so merkle proofs are always invalid here.
func (a *LedgerAdapter) VerifyProof(ctx context.Context, req *entities.ProofVerificationRequest) (*entities.ProofVerification, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil proof request", domainerrors.ErrInvalidInput)
	}

	switch req.Kind {
	case entities.ProofKindMerkle:
		return &entities.ProofVerification{Valid: false, Reason: "ledger entries carry no merkle proofs"}, nil
	case entities.ProofKindZK:
		return a.zk.Verify(req.ZK), nil
	case entities.ProofKindSignature:
		return a.verifySignature(req.Signature), nil
	default:
		return nil, fmt.Errorf("%w: unknown proof kind %q", domainerrors.ErrInvalidInput, req.Kind)
	}
}

// verifySignature checks an ed25519 attestation; the signer address is the
// public key itself
func (a *LedgerAdapter) verifySignature(p *entities.SignatureProof) *entities.ProofVerification {
	if p == nil || len(p.Signature) != ed25519.SignatureSize {
		return &entities.ProofVerification{Valid: false, Reason: "malformed signature"}
	}
	v := a.ValidateAddress(p.Signer)
	if !v.Valid {
		return &entities.ProofVerification{Valid: false, Reason: "malformed signer address"}
	}

	pubKey, _ := hex.DecodeString(v.Normalized)
	if !ed25519.Verify(ed25519.PublicKey(pubKey), p.Message, p.Signature) {
		return &entities.ProofVerification{Valid: false, Reason: "signature mismatch"}
	}
	return &entities.ProofVerification{Valid: true}
}

// HealthCheck probes the ledger
func (a *LedgerAdapter) HealthCheck(ctx context.Context) error {
	return a.guard.do(ctx, "healthCheck", func(ctx context.Context) error {
		_, err := a.rpc.Height(ctx)
		return err
	})
}
