package blockchain

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"chain-bridge.backend/internal/domain/entities"
)

func newTestEVMAdapter(t *testing.T) *EVMAdapter {
	t.Helper()
	return &EVMAdapter{
		cfg:   testChainConfig("eip155:84532"),
		guard: newRPCGuard(testChainConfig("eip155:84532")),
		zk:    NewZKVerifierRegistry(),
	}
}

func TestEVMValidateAddress(t *testing.T) {
	adapter := newTestEVMAdapter(t)

	// EIP-55 reference vector.
	const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	tests := []struct {
		name       string
		address    string
		valid      bool
		normalized string
	}{
		{"checksummed", checksummed, true, checksummed},
		{"all lowercase", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", true, checksummed},
		{"all uppercase body", "0x5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED", true, checksummed},
		{"bad checksum", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1Beaed", false, ""},
		{"too short", "0x5aAeb6053F3E94C9", false, ""},
		{"not hex", "hello-world", false, ""},
		{"empty", "", false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := adapter.ValidateAddress(tc.address)
			require.Equal(t, tc.valid, result.Valid, result.Reason)
			if tc.valid {
				require.Equal(t, tc.normalized, result.Normalized)
			} else {
				require.NotEmpty(t, result.Reason)
			}
		})
	}
}

func TestEVMVerifySignatureProof(t *testing.T) {
	adapter := newTestEVMAdapter(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message := []byte("lock tx 0xabc on eip155:84532")
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	require.NoError(t, err)

	t.Run("valid signature", func(t *testing.T) {
		result := adapter.verifySignature(&entities.SignatureProof{
			Message:   message,
			Signature: sig,
			Signer:    signer,
		})
		require.True(t, result.Valid, result.Reason)
	})

	t.Run("legacy recovery id", func(t *testing.T) {
		legacy := make([]byte, len(sig))
		copy(legacy, sig)
		legacy[crypto.RecoveryIDOffset] += 27
		result := adapter.verifySignature(&entities.SignatureProof{
			Message:   message,
			Signature: legacy,
			Signer:    signer,
		})
		require.True(t, result.Valid, result.Reason)
	})

	t.Run("tampered message", func(t *testing.T) {
		result := adapter.verifySignature(&entities.SignatureProof{
			Message:   []byte("lock tx 0xdef on eip155:84532"),
			Signature: sig,
			Signer:    signer,
		})
		require.False(t, result.Valid)
	})

	t.Run("wrong signer", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		result := adapter.verifySignature(&entities.SignatureProof{
			Message:   message,
			Signature: sig,
			Signer:    crypto.PubkeyToAddress(other.PublicKey).Hex(),
		})
		require.False(t, result.Valid)
		require.Equal(t, "signer mismatch", result.Reason)
	})

	t.Run("truncated signature", func(t *testing.T) {
		result := adapter.verifySignature(&entities.SignatureProof{
			Message:   message,
			Signature: sig[:32],
			Signer:    signer,
		})
		require.False(t, result.Valid)
	})
}

func TestEVMVerifyProofDispatch(t *testing.T) {
	adapter := newTestEVMAdapter(t)
	adapter.zk.Register("groth16-v1", stubZKVerifier{valid: true})

	leaves := [][]byte{keccakHash([]byte("t1")), keccakHash([]byte("t2"))}
	merkle, err := buildMerkleProof(keccakHash, leaves, leaves[0])
	require.NoError(t, err)

	result, err := adapter.VerifyProof(t.Context(), &entities.ProofVerificationRequest{
		Kind:   entities.ProofKindMerkle,
		Merkle: merkle,
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	result, err = adapter.VerifyProof(t.Context(), &entities.ProofVerificationRequest{
		Kind: entities.ProofKindZK,
		ZK:   &entities.ZKProof{CircuitID: "groth16-v1", Proof: []byte{1}},
	})
	require.NoError(t, err)
	require.True(t, result.Valid)

	_, err = adapter.VerifyProof(t.Context(), &entities.ProofVerificationRequest{Kind: "UNKNOWN"})
	require.Error(t, err)

	_, err = adapter.VerifyProof(t.Context(), nil)
	require.Error(t, err)
}

func TestEVMSubmitTransferRequiresSender(t *testing.T) {
	adapter := newTestEVMAdapter(t)
	_, err := adapter.SubmitTransfer(t.Context(), "idem-1", &entities.TransferRequest{})
	require.Error(t, err)
}
