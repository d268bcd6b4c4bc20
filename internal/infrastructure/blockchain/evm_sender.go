package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
)

// EVMKeySender signs and broadcasts value transfers with a locally held key.
// It keeps a process-local idempotency map so a retried submission after a
// timeout reuses the already-broadcast transaction hash.
type EVMKeySender struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	mu   sync.Mutex
	sent map[string]string
}

// NewEVMKeySender dials the RPC endpoint and loads the hot wallet key
func NewEVMKeySender(rpcURL, hexKey string, chainID int64) (*EVMKeySender, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse sender key: %w", err)
	}
	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &EVMKeySender{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		sent:    make(map[string]string),
	}, nil
}

// Address returns the hot wallet address
func (s *EVMKeySender) Address() string {
	return s.from.Hex()
}

// Send broadcasts a value transfer to the destination address. Amounts are in
// wei. Resubmitting an already-sent idemKey returns the original hash.
func (s *EVMKeySender) Send(ctx context.Context, idemKey string, req *entities.TransferRequest) (string, error) {
	s.mu.Lock()
	if hash, ok := s.sent[idemKey]; ok {
		s.mu.Unlock()
		return hash, nil
	}
	s.mu.Unlock()

	if !common.IsHexAddress(req.DestAddress) {
		return "", fmt.Errorf("%w: destination is not a hex address", domainerrors.ErrInvalidInput)
	}
	value := req.Amount.BigInt()
	if value.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", domainerrors.ErrInvalidInput)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(req.DestAddress), value, gasLimitTransfer, gasPrice, nil)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("broadcast: %w", err)
	}

	hash := signed.Hash().Hex()
	s.mu.Lock()
	s.sent[idemKey] = hash
	s.mu.Unlock()
	return hash, nil
}
