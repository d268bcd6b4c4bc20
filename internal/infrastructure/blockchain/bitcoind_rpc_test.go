package blockchain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     interface{}     `json:"id"`
}

// newBitcoindServer serves canned results keyed by method name and records
// the Authorization header of the last request.
func newBitcoindServer(t *testing.T, results map[string]interface{}, lastAuth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*lastAuth = r.Header.Get("Authorization")

		var call rpcCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))

		result, ok := results[call.Method]
		if !ok {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      call.ID,
				"error":   map[string]interface{}{"code": -5, "message": "No such mempool or blockchain transaction"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      call.ID,
			"result":  result,
		})
	}))
}

func TestBitcoindRPC_GetBlockCount(t *testing.T) {
	var auth string
	srv := newBitcoindServer(t, map[string]interface{}{"getblockcount": 812345}, &auth)
	defer srv.Close()

	rpc := NewBitcoindRPC(srv.URL, "bridge", "hunter2")
	count, err := rpc.GetBlockCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(812345), count)
	// user:password must ride along as basic auth
	require.Equal(t, "Basic YnJpZGdlOmh1bnRlcjI=", auth)
}

func TestBitcoindRPC_NoAuthWhenUserEmpty(t *testing.T) {
	var auth string
	srv := newBitcoindServer(t, map[string]interface{}{"getblockcount": 1}, &auth)
	defer srv.Close()

	rpc := NewBitcoindRPC(srv.URL, "", "")
	_, err := rpc.GetBlockCount(context.Background())
	require.NoError(t, err)
	require.Empty(t, auth)
}

func TestBitcoindRPC_GetBalance(t *testing.T) {
	var auth string
	srv := newBitcoindServer(t, map[string]interface{}{"getreceivedbyaddress": 0.05}, &auth)
	defer srv.Close()

	rpc := NewBitcoindRPC(srv.URL, "", "")
	sats, err := rpc.GetBalance(context.Background(), "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx")
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000), sats)
}

func TestBitcoindRPC_EstimateFeeRate(t *testing.T) {
	var auth string
	srv := newBitcoindServer(t, map[string]interface{}{
		"estimatesmartfee": map[string]interface{}{"feerate": 0.00012},
	}, &auth)
	defer srv.Close()

	rpc := NewBitcoindRPC(srv.URL, "", "")
	rate, err := rpc.EstimateFeeRate(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12), rate)
}

func TestBitcoindRPC_EstimateFeeRate_FloorsToOne(t *testing.T) {
	var auth string
	srv := newBitcoindServer(t, map[string]interface{}{
		"estimatesmartfee": map[string]interface{}{"feerate": 0.00000001},
	}, &auth)
	defer srv.Close()

	rpc := NewBitcoindRPC(srv.URL, "", "")
	rate, err := rpc.EstimateFeeRate(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), rate)
}

func TestBitcoindRPC_GetTxInfo(t *testing.T) {
	var auth string
	srv := newBitcoindServer(t, map[string]interface{}{
		"getrawtransaction": map[string]interface{}{
			"confirmations": 7,
			"blockhash":     "00000000a1b2",
		},
		"getblockheader": map[string]interface{}{"height": 812300},
	}, &auth)
	defer srv.Close()

	rpc := NewBitcoindRPC(srv.URL, "", "")
	info, err := rpc.GetTxInfo(context.Background(), "deadbeef")
	require.NoError(t, err)
	require.Equal(t, int64(7), info.Confirmations)
	require.Equal(t, "00000000a1b2", info.BlockHash)
	require.Equal(t, int64(812300), info.BlockHeight)
}

func TestBitcoindRPC_UnknownTxMapsToNotFound(t *testing.T) {
	var auth string
	srv := newBitcoindServer(t, map[string]interface{}{}, &auth)
	defer srv.Close()

	rpc := NewBitcoindRPC(srv.URL, "", "")
	_, err := rpc.GetTxInfo(context.Background(), "ffff")
	require.ErrorIs(t, err, ErrTxNotFound)
}

func TestBitcoindRPC_GetBlockTxIDs(t *testing.T) {
	var auth string
	srv := newBitcoindServer(t, map[string]interface{}{
		"getblock": map[string]interface{}{"tx": []string{"aa", "bb", "cc"}},
	}, &auth)
	defer srv.Close()

	rpc := NewBitcoindRPC(srv.URL, "", "")
	txids, err := rpc.GetBlockTxIDs(context.Background(), "00000000a1b2")
	require.NoError(t, err)
	require.Equal(t, []string{"aa", "bb", "cc"}, txids)
}
