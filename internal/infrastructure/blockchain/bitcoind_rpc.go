package blockchain

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/ybbus/jsonrpc"
)

// bitcoind error code for an unknown transaction or address
const btcRPCInvalidAddressOrKey = -5

// BitcoindRPC implements UTXORPC over the bitcoind JSON-RPC interface
type BitcoindRPC struct {
	client jsonrpc.RPCClient
}

// NewBitcoindRPC connects to a bitcoind-compatible node. The node must have
// txindex enabled for transaction lookups outside the wallet.
func NewBitcoindRPC(url, user, password string) *BitcoindRPC {
	if user == "" {
		return &BitcoindRPC{client: jsonrpc.NewClient(url)}
	}
	auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	return &BitcoindRPC{client: jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{
		CustomHeaders: map[string]string{"Authorization": "Basic " + auth},
	})}
}

func (c *BitcoindRPC) call(method string, out interface{}, params ...interface{}) error {
	resp, err := c.client.Call(method, params...)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		if resp.Error.Code == btcRPCInvalidAddressOrKey {
			return ErrTxNotFound
		}
		return fmt.Errorf("%s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return resp.GetObject(out)
}

// GetBlockCount returns the node's best block height
func (c *BitcoindRPC) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.call("getblockcount", &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetBalance returns the confirmed satoshi balance received by an address.
// The address must be watched by the node's wallet.
func (c *BitcoindRPC) GetBalance(ctx context.Context, address string) (int64, error) {
	var btc float64
	if err := c.call("getreceivedbyaddress", &btc, address, 1); err != nil {
		return 0, err
	}
	return decimal.NewFromFloat(btc).Shift(8).IntPart(), nil
}

// EstimateFeeRate returns the smart fee estimate in sat/vB
func (c *BitcoindRPC) EstimateFeeRate(ctx context.Context) (int64, error) {
	var result struct {
		FeeRate float64 `json:"feerate"`
	}
	if err := c.call("estimatesmartfee", &result, 6); err != nil {
		return 0, err
	}
	// feerate is BTC/kvB; floor to sat/vB with a minimum of 1.
	satPerVB := decimal.NewFromFloat(result.FeeRate).Shift(8).Div(decimal.NewFromInt(1000)).IntPart()
	if satPerVB < 1 {
		satPerVB = 1
	}
	return satPerVB, nil
}

// GetTxInfo looks up a transaction's inclusion; unknown txids map to
// ErrTxNotFound
func (c *BitcoindRPC) GetTxInfo(ctx context.Context, txID string) (*UTXOTxInfo, error) {
	var tx struct {
		Confirmations int64  `json:"confirmations"`
		BlockHash     string `json:"blockhash"`
	}
	if err := c.call("getrawtransaction", &tx, txID, true); err != nil {
		return nil, err
	}

	info := &UTXOTxInfo{Confirmations: tx.Confirmations, BlockHash: tx.BlockHash}
	if tx.BlockHash != "" {
		var header struct {
			Height int64 `json:"height"`
		}
		if err := c.call("getblockheader", &header, tx.BlockHash); err != nil {
			return nil, err
		}
		info.BlockHeight = header.Height
	}
	return info, nil
}

// GetBlockTxIDs returns the txids of a block in order
func (c *BitcoindRPC) GetBlockTxIDs(ctx context.Context, blockHash string) ([]string, error) {
	var block struct {
		Tx []string `json:"tx"`
	}
	if err := c.call("getblock", &block, blockHash, 1); err != nil {
		return nil, err
	}
	return block.Tx, nil
}
