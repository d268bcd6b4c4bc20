package blockchain

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
)

type fakeLedgerRPC struct {
	height    int64
	balances  map[string]decimal.Decimal
	submitted map[string]string
	txHeights map[string]int64
	signKey   ed25519.PrivateKey
	signer    string
}

func (f *fakeLedgerRPC) Height(ctx context.Context) (int64, error) {
	return f.height, nil
}

func (f *fakeLedgerRPC) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	return f.balances[address], nil
}

func (f *fakeLedgerRPC) Submit(ctx context.Context, idemKey string, req *entities.TransferRequest) (string, error) {
	if hash, ok := f.submitted[idemKey]; ok {
		return hash, nil
	}
	hash := "entry-" + idemKey
	if f.submitted == nil {
		f.submitted = make(map[string]string)
	}
	f.submitted[idemKey] = hash
	return hash, nil
}

func (f *fakeLedgerRPC) GetTxHeight(ctx context.Context, txHash string) (int64, error) {
	h, ok := f.txHeights[txHash]
	if !ok {
		return 0, ErrTxNotFound
	}
	return h, nil
}

func (f *fakeLedgerRPC) Attest(ctx context.Context, txHash string) ([]byte, string, error) {
	return ed25519.Sign(f.signKey, []byte(txHash)), f.signer, nil
}

func newTestLedgerAdapter(t *testing.T) (*LedgerAdapter, *fakeLedgerRPC) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	rpc := &fakeLedgerRPC{
		height:    42,
		signKey:   priv,
		signer:    hex.EncodeToString(pub),
		txHeights: map[string]int64{},
	}
	cfg := testChainConfig("internal:ledger")
	cfg.Confirmations = 1
	return NewLedgerAdapter(cfg, rpc, nil), rpc
}

func TestLedgerValidateAddress(t *testing.T) {
	adapter, rpc := newTestLedgerAdapter(t)

	t.Run("pubkey hex", func(t *testing.T) {
		result := adapter.ValidateAddress(rpc.signer)
		require.True(t, result.Valid, result.Reason)
		require.Equal(t, rpc.signer, result.Normalized)
	})

	t.Run("uppercase normalizes", func(t *testing.T) {
		result := adapter.ValidateAddress(strings.ToUpper(rpc.signer))
		require.True(t, result.Valid)
		require.Equal(t, rpc.signer, result.Normalized)
	})

	t.Run("wrong length", func(t *testing.T) {
		require.False(t, adapter.ValidateAddress(rpc.signer[:32]).Valid)
	})

	t.Run("not hex", func(t *testing.T) {
		require.False(t, adapter.ValidateAddress("zz"+rpc.signer[2:]).Valid)
	})
}

func TestLedgerSubmitIsIdempotent(t *testing.T) {
	adapter, _ := newTestLedgerAdapter(t)
	req := &entities.TransferRequest{Amount: decimal.NewFromInt(100)}

	first, err := adapter.SubmitTransfer(t.Context(), "transfer-1", req)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := adapter.SubmitTransfer(t.Context(), "transfer-1", req)
	require.NoError(t, err)
	require.Equal(t, first.TxHash, second.TxHash)
}

func TestLedgerSubmitRejectsNonPositiveAmount(t *testing.T) {
	adapter, _ := newTestLedgerAdapter(t)
	_, err := adapter.SubmitTransfer(t.Context(), "transfer-1", &entities.TransferRequest{Amount: decimal.Zero})
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestLedgerTransferStatusIsImmediatelyFinal(t *testing.T) {
	adapter, rpc := newTestLedgerAdapter(t)
	rpc.txHeights["entry-1"] = 40

	status, err := adapter.GetTransferStatus(t.Context(), "entry-1")
	require.NoError(t, err)
	require.Equal(t, entities.TransferStateFinalized, status.State)
	require.Equal(t, int64(40), status.BlockNumber)

	status, err = adapter.GetTransferStatus(t.Context(), "missing")
	require.NoError(t, err)
	require.Equal(t, entities.TransferStatePending, status.State)
}

func TestLedgerAttestationRoundTrip(t *testing.T) {
	adapter, rpc := newTestLedgerAdapter(t)
	rpc.txHeights["entry-7"] = 41

	proof, err := adapter.FetchInclusionProof(t.Context(), "entry-7")
	require.NoError(t, err)
	require.Equal(t, entities.ProofKindSignature, proof.Kind)

	result, err := adapter.VerifyProof(t.Context(), proof)
	require.NoError(t, err)
	require.True(t, result.Valid, result.Reason)

	t.Run("tampered attestation", func(t *testing.T) {
		tampered := *proof.Signature
		tampered.Message = []byte("entry-8")
		result, err := adapter.VerifyProof(t.Context(), &entities.ProofVerificationRequest{
			Kind:      entities.ProofKindSignature,
			Signature: &tampered,
		})
		require.NoError(t, err)
		require.False(t, result.Valid)
	})

	t.Run("merkle never valid on ledger", func(t *testing.T) {
		result, err := adapter.VerifyProof(t.Context(), &entities.ProofVerificationRequest{
			Kind:   entities.ProofKindMerkle,
			Merkle: &entities.MerkleProof{LeafHash: []byte{1}, ExpectedRoot: []byte{1}},
		})
		require.NoError(t, err)
		require.False(t, result.Valid)
	})
}

func TestLedgerFeeIsZero(t *testing.T) {
	adapter, _ := newTestLedgerAdapter(t)
	estimate, err := adapter.EstimateFee(t.Context(), entities.TransferShape{Asset: AssetNative})
	require.NoError(t, err)
	require.True(t, estimate.Total.IsZero())
}
