package blockchain

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/ybbus/jsonrpc"

	"chain-bridge.backend/internal/domain/entities"
)

// ledger error code for an unknown entry hash
const ledgerRPCNotFound = -5

// LedgerJSONRPC implements LedgerRPC over the ledger service's JSON-RPC
// interface
type LedgerJSONRPC struct {
	client jsonrpc.RPCClient
}

// NewLedgerJSONRPC connects to the internal ledger service
func NewLedgerJSONRPC(url string) *LedgerJSONRPC {
	return &LedgerJSONRPC{client: jsonrpc.NewClient(url)}
}

func (c *LedgerJSONRPC) call(method string, out interface{}, params ...interface{}) error {
	resp, err := c.client.Call(method, params...)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		if resp.Error.Code == ledgerRPCNotFound {
			return ErrTxNotFound
		}
		return fmt.Errorf("%s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return resp.GetObject(out)
}

// Height returns the current ledger height
func (c *LedgerJSONRPC) Height(ctx context.Context) (int64, error) {
	var height int64
	if err := c.call("ledger_height", &height); err != nil {
		return 0, err
	}
	return height, nil
}

// GetBalance returns an account's balance for an asset
func (c *LedgerJSONRPC) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	var balance string
	if err := c.call("ledger_getBalance", &balance, address, asset); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}

// Submit writes a ledger entry keyed by idemKey; the ledger deduplicates
// resubmissions of the same key
func (c *LedgerJSONRPC) Submit(ctx context.Context, idemKey string, req *entities.TransferRequest) (string, error) {
	var txHash string
	err := c.call("ledger_submit", &txHash, map[string]interface{}{
		"idempotencyKey": idemKey,
		"from":           req.SourceAddress,
		"to":             req.DestAddress,
		"asset":          req.Asset,
		"amount":         req.Amount.String(),
	})
	if err != nil {
		return "", err
	}
	return txHash, nil
}

// GetTxHeight returns the height an entry was written at
func (c *LedgerJSONRPC) GetTxHeight(ctx context.Context, txHash string) (int64, error) {
	var height int64
	if err := c.call("ledger_getTxHeight", &height, txHash); err != nil {
		return 0, err
	}
	return height, nil
}

// Attest asks the ledger to sign an entry hash with its ed25519 key
func (c *LedgerJSONRPC) Attest(ctx context.Context, txHash string) ([]byte, string, error) {
	var result struct {
		Signature string `json:"signature"`
		Signer    string `json:"signer"`
	}
	if err := c.call("ledger_attest", &result, txHash); err != nil {
		return nil, "", err
	}
	sig, err := hex.DecodeString(result.Signature)
	if err != nil {
		return nil, "", fmt.Errorf("ledger returned non-hex signature")
	}
	return sig, result.Signer, nil
}
