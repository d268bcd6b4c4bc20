package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
)

var dialEVMClient = ethclient.Dial

const (
	chainInfoRefreshInterval = time.Minute

	gasLimitTransfer     = 21000
	gasLimitContractCall = 65000
)

// EVMAdapter implements the chain capability set for EVM-family chains
type EVMAdapter struct {
	cfg    entities.ChainAdapterConfig
	client *ethclient.Client
	guard  *rpcGuard
	sender TxSender
	zk     *ZKVerifierRegistry

	infoMu   sync.Mutex
	info     *entities.ChainInfo
	infoTime time.Time
}

// NewEVMAdapter dials the configured RPC endpoint. The sender may be nil for
// a read-only adapter; zk may be nil when no circuits are registered.
func NewEVMAdapter(cfg entities.ChainAdapterConfig, sender TxSender, zk *ZKVerifierRegistry) (*EVMAdapter, error) {
	client, err := dialEVMClient(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	if zk == nil {
		zk = NewZKVerifierRegistry()
	}
	return &EVMAdapter{
		cfg:    cfg,
		client: client,
		guard:  newRPCGuard(cfg),
		sender: sender,
		zk:     zk,
	}, nil
}

// ChainInfo returns the cached snapshot, refreshing it at a bounded interval
func (a *EVMAdapter) ChainInfo(ctx context.Context) (*entities.ChainInfo, error) {
	a.infoMu.Lock()
	defer a.infoMu.Unlock()

	if a.info != nil && time.Since(a.infoTime) < chainInfoRefreshInterval {
		return a.info, nil
	}

	var gasPrice *big.Int
	var dynamicFees bool
	err := a.guard.do(ctx, "chainInfo", func(ctx context.Context) error {
		head, err := a.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		dynamicFees = head.BaseFee != nil
		gasPrice, err = a.client.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		// Serve a stale snapshot over nothing; descriptive data only.
		if a.info != nil {
			return a.info, nil
		}
		return nil, err
	}

	feeModel := entities.FeeModelLegacy
	if dynamicFees {
		feeModel = entities.FeeModelDynamic
	}
	network := entities.NetworkMainnet
	if strings.Contains(strings.ToLower(a.cfg.Name), "sepolia") || strings.Contains(strings.ToLower(a.cfg.Name), "testnet") {
		network = entities.NetworkTestnet
	}

	a.info = &entities.ChainInfo{
		ChainID:        a.cfg.ChainID,
		Name:           a.cfg.Name,
		NativeCurrency: "ETH",
		Decimals:       18,
		Network:        network,
		Consensus:      entities.ConsensusProofOfStake,
		FeeModel:       feeModel,
		BlockTime:      12 * time.Second,
		GasPrice:       decimal.NewFromBigInt(gasPrice, 0),
		RefreshedAt:    time.Now().UTC(),
	}
	a.infoTime = time.Now()
	return a.info, nil
}

// ValidateAddress validates checksummed hex per EIP-55. Pure, no network.
func (a *EVMAdapter) ValidateAddress(address string) entities.AddressValidation {
	if !common.IsHexAddress(address) {
		return entities.AddressValidation{Valid: false, Reason: "not a hex address"}
	}

	normalized := common.HexToAddress(address).Hex()

	// A mixed-case address must carry a correct EIP-55 checksum; all-lower
	// and all-upper forms are accepted and normalized.
	body := strings.TrimPrefix(address, "0x")
	hasLower := strings.ContainsAny(body, "abcdef")
	hasUpper := strings.ContainsAny(body, "ABCDEF")
	if hasLower && hasUpper && "0x"+body != normalized {
		return entities.AddressValidation{Valid: false, Reason: "bad checksum"}
	}

	return entities.AddressValidation{Valid: true, Normalized: normalized}
}

// GetBalance queries the native or ERC20 balance in smallest units
func (a *EVMAdapter) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	if v := a.ValidateAddress(address); !v.Valid {
		return decimal.Zero, fmt.Errorf("%w: %s", domainerrors.ErrInvalidInput, v.Reason)
	}

	var balance *big.Int
	err := a.guard.do(ctx, "getBalance", func(ctx context.Context) error {
		var err error
		if asset == AssetNative || asset == "" {
			balance, err = a.client.BalanceAt(ctx, common.HexToAddress(address), nil)
			return err
		}

		if !common.IsHexAddress(asset) {
			return fmt.Errorf("%w: asset is not a token address", domainerrors.ErrInvalidInput)
		}
		// balanceOf(address) selector: 0x70a08231
		token := common.HexToAddress(asset)
		owner := common.HexToAddress(address)
		data := append(common.Hex2Bytes("70a08231"), common.LeftPadBytes(owner.Bytes(), 32)...)
		result, err := a.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return err
		}
		balance = new(big.Int).SetBytes(result)
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(balance, 0), nil
}

// EstimateFee quotes per the chain's pricing model; it fails when the fee
// oracle is unavailable rather than returning a stale or zero estimate.
func (a *EVMAdapter) EstimateFee(ctx context.Context, shape entities.TransferShape) (*entities.FeeEstimate, error) {
	gasLimit := int64(gasLimitTransfer)
	if shape.ContractCall || (shape.Asset != "" && shape.Asset != AssetNative) {
		gasLimit = gasLimitContractCall
	}

	var baseFee, tip, gasPrice *big.Int
	var dynamicFees bool
	err := a.guard.do(ctx, "estimateFee", func(ctx context.Context) error {
		head, err := a.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		if head.BaseFee != nil {
			dynamicFees = true
			baseFee = head.BaseFee
			tip, err = a.client.SuggestGasTipCap(ctx)
			return err
		}
		gasPrice, err = a.client.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	if dynamicFees {
		perGas := new(big.Int).Add(baseFee, tip)
		return &entities.FeeEstimate{
			Model:       entities.FeeModelDynamic,
			BaseFee:     decimal.NewFromBigInt(baseFee, 0),
			PriorityFee: decimal.NewFromBigInt(tip, 0),
			Total:       decimal.NewFromBigInt(new(big.Int).Mul(perGas, big.NewInt(gasLimit)), 0),
		}, nil
	}
	return &entities.FeeEstimate{
		Model:    entities.FeeModelLegacy,
		GasPrice: decimal.NewFromBigInt(gasPrice, 0),
		Total:    decimal.NewFromBigInt(new(big.Int).Mul(gasPrice, big.NewInt(gasLimit)), 0),
	}, nil
}

// SubmitTransfer broadcasts the lock/mint/unlock transaction through the
// configured sender
func (a *EVMAdapter) SubmitTransfer(ctx context.Context, idemKey string, req *entities.TransferRequest) (*entities.TransferResult, error) {
	if a.sender == nil {
		return nil, fmt.Errorf("%w: no transaction sender configured for %s", domainerrors.ErrInvalidInput, a.cfg.ChainID)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domainerrors.ErrInvalidInput)
	}

	var txHash string
	err := a.guard.do(ctx, "submitTransfer", func(ctx context.Context) error {
		var err error
		txHash, err = a.sender.Send(ctx, idemKey, req)
		return err
	})
	if err != nil {
		return &entities.TransferResult{TransferID: idemKey, Success: false}, err
	}
	return &entities.TransferResult{TransferID: idemKey, Success: true, TxHash: txHash}, nil
}

// GetTransferStatus reads receipt and head to count confirmations
func (a *EVMAdapter) GetTransferStatus(ctx context.Context, txHash string) (*entities.TransferStatus, error) {
	var status *entities.TransferStatus
	err := a.guard.do(ctx, "getTransferStatus", func(ctx context.Context) error {
		receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txHash))
		if errors.Is(err, ethereum.NotFound) {
			status = &entities.TransferStatus{State: entities.TransferStatePending}
			return nil
		}
		if err != nil {
			return err
		}
		if receipt.Status == 0 {
			status = &entities.TransferStatus{
				State:       entities.TransferStateFailed,
				BlockNumber: receipt.BlockNumber.Int64(),
			}
			return nil
		}

		head, err := a.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		confirmations := int64(head) - receipt.BlockNumber.Int64() + 1
		state := entities.TransferStateConfirmed
		if confirmations >= a.cfg.Confirmations {
			state = entities.TransferStateFinalized
		}
		status = &entities.TransferStatus{
			State:         state,
			Confirmations: confirmations,
			BlockNumber:   receipt.BlockNumber.Int64(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// FetchInclusionProof builds a keccak merkle proof of the transaction over
// its block's transaction hashes
func (a *EVMAdapter) FetchInclusionProof(ctx context.Context, txHash string) (*entities.ProofVerificationRequest, error) {
	var proof *entities.MerkleProof
	err := a.guard.do(ctx, "fetchInclusionProof", func(ctx context.Context) error {
		receipt, err := a.client.TransactionReceipt(ctx, common.HexToHash(txHash))
		if err != nil {
			return err
		}
		block, err := a.client.BlockByHash(ctx, receipt.BlockHash)
		if err != nil {
			return err
		}

		leaves := make([][]byte, 0, block.Transactions().Len())
		for _, tx := range block.Transactions() {
			leaves = append(leaves, tx.Hash().Bytes())
		}
		proof, err = buildMerkleProof(keccakHash, leaves, common.HexToHash(txHash).Bytes())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &entities.ProofVerificationRequest{Kind: entities.ProofKindMerkle, Merkle: proof}, nil
}

// VerifyProof dispatches on the proof kind tag
func (a *EVMAdapter) VerifyProof(ctx context.Context, req *entities.ProofVerificationRequest) (*entities.ProofVerification, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil proof request", domainerrors.ErrInvalidInput)
	}

	switch req.Kind {
	case entities.ProofKindMerkle:
		return verifyMerkleProof(keccakHash, req.Merkle), nil
	case entities.ProofKindZK:
		return a.zk.Verify(req.ZK), nil
	case entities.ProofKindSignature:
		return a.verifySignature(req.Signature), nil
	default:
		return nil, fmt.Errorf("%w: unknown proof kind %q", domainerrors.ErrInvalidInput, req.Kind)
	}
}

// verifySignature recovers the secp256k1 signer of an eth_sign-style message
// and compares against the claimed address
func (a *EVMAdapter) verifySignature(p *entities.SignatureProof) *entities.ProofVerification {
	if p == nil || len(p.Signature) != crypto.SignatureLength {
		return &entities.ProofVerification{Valid: false, Reason: "malformed signature"}
	}
	if v := a.ValidateAddress(p.Signer); !v.Valid {
		return &entities.ProofVerification{Valid: false, Reason: "malformed signer address"}
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, p.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(p.Message), sig)
	if err != nil {
		return &entities.ProofVerification{Valid: false, Reason: "recovery failed: " + err.Error()}
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(p.Signer) {
		return &entities.ProofVerification{Valid: false, Reason: "signer mismatch"}
	}
	return &entities.ProofVerification{Valid: true}
}

// HealthCheck probes the RPC endpoint
func (a *EVMAdapter) HealthCheck(ctx context.Context) error {
	return a.guard.do(ctx, "healthCheck", func(ctx context.Context) error {
		_, err := a.client.BlockNumber(ctx)
		return err
	})
}

// CallContract executes a read-only contract call; EVM chains have a
// programmable execution layer so this adapter carries the capability.
func (a *EVMAdapter) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	if !common.IsHexAddress(to) {
		return nil, fmt.Errorf("%w: bad contract address", domainerrors.ErrInvalidInput)
	}
	var out []byte
	err := a.guard.do(ctx, "callContract", func(ctx context.Context) error {
		addr := common.HexToAddress(to)
		var err error
		out, err = a.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
		return err
	})
	return out, err
}

// Close closes the underlying client
func (a *EVMAdapter) Close() {
	if a.client != nil {
		a.client.Close()
	}
}
