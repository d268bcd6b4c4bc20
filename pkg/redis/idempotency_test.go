package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *IdempotencyStore {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	return NewIdempotencyStore("test:submit")
}

func TestIdempotencyStore_ClaimOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claimed, txHash, err := store.Claim(ctx, "transfer-1")
	require.NoError(t, err)
	require.True(t, claimed)
	require.Empty(t, txHash)

	// A concurrent attempt sees the claim in flight and must not submit.
	claimed, txHash, err = store.Claim(ctx, "transfer-1")
	require.NoError(t, err)
	require.False(t, claimed)
	require.Empty(t, txHash)
}

func TestIdempotencyStore_CompletedClaimReturnsHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claimed, _, err := store.Claim(ctx, "transfer-2")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, store.Complete(ctx, "transfer-2", "0xabc123"))

	claimed, txHash, err := store.Claim(ctx, "transfer-2")
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, "0xabc123", txHash)
}

func TestIdempotencyStore_ReleaseAllowsRetry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claimed, _, err := store.Claim(ctx, "transfer-3")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.Release(ctx, "transfer-3"))

	claimed, txHash, err := store.Claim(ctx, "transfer-3")
	require.NoError(t, err)
	require.True(t, claimed)
	require.Empty(t, txHash)
}

func TestIdempotencyStore_KeysAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	claimed, _, err := store.Claim(ctx, "transfer-a")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, _, err = store.Claim(ctx, "transfer-b")
	require.NoError(t, err)
	require.True(t, claimed)
}
