package blockchain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
)

// ErrTxNotFound is returned by a UTXORPC when a transaction is unknown to
// the node. The adapter maps it to a pending status rather than a failure.
var ErrTxNotFound = errors.New("transaction not found")

// UTXOTxInfo is a node-side view of a transaction's inclusion
type UTXOTxInfo struct {
	Confirmations int64
	BlockHeight   int64
	BlockHash     string
}

// UTXORPC is the node client boundary for UTXO-family chains. The concrete
// client lives outside this package; tests inject fakes.
type UTXORPC interface {
	GetBlockCount(ctx context.Context) (int64, error)
	GetBalance(ctx context.Context, address string) (int64, error)
	// EstimateFeeRate returns the current fee rate in sat/vB.
	EstimateFeeRate(ctx context.Context) (int64, error)
	GetTxInfo(ctx context.Context, txID string) (*UTXOTxInfo, error)
	GetBlockTxIDs(ctx context.Context, blockHash string) ([]string, error)
}

const (
	// txVBytesEstimate sizes a two-input two-output segwit transaction
	txVBytesEstimate = 210
)

// UTXOAdapter implements the chain capability set for UTXO-family chains.
// It has no programmable execution layer, so it does not implement
// ContractCaller.
type UTXOAdapter struct {
	cfg    entities.ChainAdapterConfig
	rpc    UTXORPC
	guard  *rpcGuard
	sender TxSender
	zk     *ZKVerifierRegistry
	hrps   []string

	// signers maps a bridge-trusted address to its compressed secp256k1
	// public key for attestation verification.
	signers map[string][]byte

	infoMu   sync.Mutex
	info     *entities.ChainInfo
	infoTime time.Time
}

// NewUTXOAdapter wires the adapter around an injected node client
func NewUTXOAdapter(cfg entities.ChainAdapterConfig, rpc UTXORPC, sender TxSender, zk *ZKVerifierRegistry) *UTXOAdapter {
	if zk == nil {
		zk = NewZKVerifierRegistry()
	}
	hrps := []string{"bc"}
	if strings.Contains(strings.ToLower(cfg.ChainID), "testnet") || strings.Contains(strings.ToLower(cfg.Name), "testnet") {
		hrps = []string{"tb", "bcrt"}
	}
	return &UTXOAdapter{
		cfg:     cfg,
		rpc:     rpc,
		guard:   newRPCGuard(cfg),
		sender:  sender,
		zk:      zk,
		hrps:    hrps,
		signers: make(map[string][]byte),
	}
}

// RegisterSigner registers a trusted attestation signer's compressed public
// key under its address
func (a *UTXOAdapter) RegisterSigner(address string, compressedPubKey []byte) {
	a.signers[address] = compressedPubKey
}

// ChainInfo returns the cached snapshot, refreshing it at a bounded interval
func (a *UTXOAdapter) ChainInfo(ctx context.Context) (*entities.ChainInfo, error) {
	a.infoMu.Lock()
	defer a.infoMu.Unlock()

	if a.info != nil && time.Since(a.infoTime) < chainInfoRefreshInterval {
		return a.info, nil
	}

	var feeRate int64
	err := a.guard.do(ctx, "chainInfo", func(ctx context.Context) error {
		var err error
		feeRate, err = a.rpc.EstimateFeeRate(ctx)
		return err
	})
	if err != nil {
		if a.info != nil {
			return a.info, nil
		}
		return nil, err
	}

	network := entities.NetworkMainnet
	if a.hrps[0] != "bc" {
		network = entities.NetworkTestnet
	}

	a.info = &entities.ChainInfo{
		ChainID:        a.cfg.ChainID,
		Name:           a.cfg.Name,
		NativeCurrency: "BTC",
		Decimals:       8,
		Network:        network,
		Consensus:      entities.ConsensusProofOfWork,
		FeeModel:       entities.FeeModelLegacy,
		BlockTime:      10 * time.Minute,
		GasPrice:       decimal.NewFromInt(feeRate),
		RefreshedAt:    time.Now().UTC(),
	}
	a.infoTime = time.Now()
	return a.info, nil
}

// ValidateAddress accepts base58check and bech32 encodings. Bech32 addresses
// normalize to lowercase; base58 addresses are case-significant and pass
// through unchanged.
func (a *UTXOAdapter) ValidateAddress(address string) entities.AddressValidation {
	if address == "" {
		return entities.AddressValidation{Valid: false, Reason: "empty address"}
	}

	if _, _, err := base58.CheckDecode(address); err == nil {
		return entities.AddressValidation{Valid: true, Normalized: address}
	}

	lowered := strings.ToLower(address)
	// Bech32 forbids mixed case outright.
	if address != lowered && address != strings.ToUpper(address) {
		return entities.AddressValidation{Valid: false, Reason: "mixed-case address"}
	}
	hrp, _, err := bech32.Decode(lowered)
	if err != nil {
		return entities.AddressValidation{Valid: false, Reason: "not base58check or bech32"}
	}
	for _, want := range a.hrps {
		if hrp == want {
			return entities.AddressValidation{Valid: true, Normalized: lowered}
		}
	}
	return entities.AddressValidation{Valid: false, Reason: fmt.Sprintf("wrong network prefix %q", hrp)}
}

// GetBalance queries the node for the address balance in satoshis. UTXO
// chains carry a single native asset.
func (a *UTXOAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	if asset != AssetNative && asset != "" {
		return decimal.Zero, fmt.Errorf("%w: chain %s has no asset %q", domainerrors.ErrInvalidInput, a.cfg.ChainID, asset)
	}
	if v := a.ValidateAddress(address); !v.Valid {
		return decimal.Zero, fmt.Errorf("%w: %s", domainerrors.ErrInvalidInput, v.Reason)
	}

	var sats int64
	err := a.guard.do(ctx, "getBalance", func(ctx context.Context) error {
		var err error
		sats, err = a.rpc.GetBalance(ctx, address)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(sats), nil
}

// EstimateFee quotes rate times estimated virtual size under the legacy
// single-price model
func (a *UTXOAdapter) EstimateFee(ctx context.Context, shape entities.TransferShape) (*entities.FeeEstimate, error) {
	if shape.ContractCall {
		return nil, fmt.Errorf("%w: chain %s has no execution layer", domainerrors.ErrInvalidInput, a.cfg.ChainID)
	}

	var feeRate int64
	err := a.guard.do(ctx, "estimateFee", func(ctx context.Context) error {
		var err error
		feeRate, err = a.rpc.EstimateFeeRate(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	rate := decimal.NewFromInt(feeRate)
	return &entities.FeeEstimate{
		Model:    entities.FeeModelLegacy,
		GasPrice: rate,
		Total:    rate.Mul(decimal.NewFromInt(txVBytesEstimate)),
	}, nil
}

// SubmitTransfer broadcasts through the configured sender
func (a *UTXOAdapter) SubmitTransfer(ctx context.Context, idemKey string, req *entities.TransferRequest) (*entities.TransferResult, error) {
	if a.sender == nil {
		return nil, fmt.Errorf("%w: no transaction sender configured for %s", domainerrors.ErrInvalidInput, a.cfg.ChainID)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domainerrors.ErrInvalidInput)
	}

	var txID string
	err := a.guard.do(ctx, "submitTransfer", func(ctx context.Context) error {
		var err error
		txID, err = a.sender.Send(ctx, idemKey, req)
		return err
	})
	if err != nil {
		return &entities.TransferResult{TransferID: idemKey, Success: false}, err
	}
	return &entities.TransferResult{TransferID: idemKey, Success: true, TxHash: txID}, nil
}

// GetTransferStatus reads inclusion depth from the node. A reorged-out or
// unknown transaction reports as pending; UTXO chains have no in-block
// failure state.
func (a *UTXOAdapter) GetTransferStatus(ctx context.Context, txID string) (*entities.TransferStatus, error) {
	var status *entities.TransferStatus
	err := a.guard.do(ctx, "getTransferStatus", func(ctx context.Context) error {
		info, err := a.rpc.GetTxInfo(ctx, txID)
		if errors.Is(err, ErrTxNotFound) {
			status = &entities.TransferStatus{State: entities.TransferStatePending}
			return nil
		}
		if err != nil {
			return err
		}
		state := entities.TransferStatePending
		if info.Confirmations > 0 {
			state = entities.TransferStateConfirmed
		}
		if info.Confirmations >= a.cfg.Confirmations {
			state = entities.TransferStateFinalized
		}
		status = &entities.TransferStatus{
			State:         state,
			Confirmations: info.Confirmations,
			BlockNumber:   info.BlockHeight,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// FetchInclusionProof builds a double-SHA256 merkle proof of the transaction
// over its block's txids
func (a *UTXOAdapter) FetchInclusionProof(ctx context.Context, txID string) (*entities.ProofVerificationRequest, error) {
	target, err := hex.DecodeString(txID)
	if err != nil {
		return nil, fmt.Errorf("%w: txid is not hex", domainerrors.ErrInvalidInput)
	}

	var proof *entities.MerkleProof
	err = a.guard.do(ctx, "fetchInclusionProof", func(ctx context.Context) error {
		info, err := a.rpc.GetTxInfo(ctx, txID)
		if err != nil {
			return err
		}
		if info.Confirmations == 0 {
			return fmt.Errorf("%w: transaction not yet included", domainerrors.ErrInvalidInput)
		}
		txids, err := a.rpc.GetBlockTxIDs(ctx, info.BlockHash)
		if err != nil {
			return err
		}

		leaves := make([][]byte, 0, len(txids))
		for _, id := range txids {
			raw, err := hex.DecodeString(id)
			if err != nil {
				return fmt.Errorf("node returned non-hex txid %q", id)
			}
			leaves = append(leaves, raw)
		}
		proof, err = buildMerkleProof(doubleSHA256, leaves, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &entities.ProofVerificationRequest{Kind: entities.ProofKindMerkle, Merkle: proof}, nil
}

// VerifyProof dispatches on the proof kind tag
func (a *UTXOAdapter) VerifyProof(ctx context.Context, req *entities.ProofVerificationRequest) (*entities.ProofVerification, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil proof request", domainerrors.ErrInvalidInput)
	}

	switch req.Kind {
	case entities.ProofKindMerkle:
		return verifyMerkleProof(doubleSHA256, req.Merkle), nil
	case entities.ProofKindZK:
		return a.zk.Verify(req.ZK), nil
	case entities.ProofKindSignature:
		return a.verifySignature(req.Signature), nil
	default:
		return nil, fmt.Errorf("%w: unknown proof kind %q", domainerrors.ErrInvalidInput, req.Kind)
	}
}

// verifySignature checks a compact secp256k1 signature over the double-SHA256
// message digest against the registered public key of the claimed signer
func (a *UTXOAdapter) verifySignature(p *entities.SignatureProof) *entities.ProofVerification {
	if p == nil || len(p.Signature) < 64 {
		return &entities.ProofVerification{Valid: false, Reason: "malformed signature"}
	}
	pubKey, ok := a.signers[p.Signer]
	if !ok {
		return &entities.ProofVerification{Valid: false, Reason: "unknown signer: " + p.Signer}
	}

	digest := doubleSHA256(p.Message)
	if !crypto.VerifySignature(pubKey, digest, p.Signature[:64]) {
		return &entities.ProofVerification{Valid: false, Reason: "signature mismatch"}
	}
	return &entities.ProofVerification{Valid: true}
}

// HealthCheck probes the node
func (a *UTXOAdapter) HealthCheck(ctx context.Context) error {
	return a.guard.do(ctx, "healthCheck", func(ctx context.Context) error {
		_, err := a.rpc.GetBlockCount(ctx)
		return err
	})
}
