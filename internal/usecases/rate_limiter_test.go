package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chain-bridge.backend/internal/config"
	"chain-bridge.backend/internal/domain/entities"
)

func newTestRateLimiter(t *testing.T) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config.RateLimitConfig{
		Limit:           10,
		Window:          time.Minute,
		BurstMultiplier: 1.5,
		// Cleanup disabled; tests drive time manually.
	})
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiterBurstCeiling(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	// Limit 10 with 1.5x burst: 15 allowed, 16th denied.
	for i := 1; i <= 15; i++ {
		result := rl.CheckLimit(ctx, "addr-y", "")
		require.True(t, result.Allowed, "call %d", i)
	}

	result := rl.CheckLimit(ctx, "addr-y", "")
	require.True(t, result.Denied())
	require.Greater(t, result.RetryAfterSeconds, int64(0))
	require.Equal(t, "10", result.Headers[entities.HeaderRateLimitLimit])
	require.Equal(t, "0", result.Headers[entities.HeaderRateLimitRemaining])
	require.NotEmpty(t, result.Headers[entities.HeaderRetryAfter])
}

func TestRateLimiterRemainingIsMonotonic(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	prev := int(^uint(0) >> 1)
	for i := 0; i < 15; i++ {
		result := rl.CheckLimit(ctx, "addr-m", "")
		require.True(t, result.Allowed)
		require.LessOrEqual(t, result.Remaining, prev)
		prev = result.Remaining
	}
	require.Equal(t, 0, prev)
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	current := time.Now()
	rl.now = func() time.Time { return current }

	for i := 0; i < 15; i++ {
		require.True(t, rl.CheckLimit(ctx, "addr-w", "").Allowed)
	}
	require.True(t, rl.CheckLimit(ctx, "addr-w", "").Denied())

	// Once the oldest events age out, quota comes back.
	current = current.Add(61 * time.Second)
	result := rl.CheckLimit(ctx, "addr-w", "")
	require.True(t, result.Allowed)
	require.Equal(t, 14, result.Remaining)
}

func TestRateLimiterResetRestoresQuota(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		rl.CheckLimit(ctx, "addr-y", "")
	}
	require.True(t, rl.CheckLimit(ctx, "addr-y", "").Denied())

	cleared := rl.ResetLimit(ctx, "addr-y", "admin-1")
	require.Equal(t, 1, cleared)

	require.True(t, rl.CheckLimit(ctx, "addr-y", "").Allowed)
}

func TestRateLimiterResetClearsAllChainQualifiers(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	rl.CheckLimit(ctx, "addr-z", "")
	rl.CheckLimit(ctx, "addr-z", "eip155:84532")
	rl.CheckLimit(ctx, "addr-z", "bip122:testnet")

	require.Equal(t, 3, rl.ResetLimit(ctx, "addr-z", "admin-1"))
	require.Equal(t, 0, rl.Status("addr-z", "eip155:84532").CurrentCount)
}

func TestRateLimiterPerAddressIsolation(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 16; i++ {
		rl.CheckLimit(ctx, "addr-a", "")
	}
	require.True(t, rl.CheckLimit(ctx, "addr-a", "").Denied())

	result := rl.CheckLimit(ctx, "addr-b", "")
	require.True(t, result.Allowed)
	require.Equal(t, 14, result.Remaining)
}

func TestRateLimiterChainScopedCountersAreDistinct(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.True(t, rl.CheckLimit(ctx, "addr-c", "eip155:84532").Allowed)
	}
	require.True(t, rl.CheckLimit(ctx, "addr-c", "eip155:84532").Denied())

	// The chain-agnostic counter does not share quota.
	require.True(t, rl.CheckLimit(ctx, "addr-c", "").Allowed)
	require.True(t, rl.CheckLimit(ctx, "addr-c", "bip122:testnet").Allowed)
}

func TestRateLimiterEmptyAddressAlwaysDenied(t *testing.T) {
	rl := newTestRateLimiter(t)

	result := rl.CheckLimit(context.Background(), "", "")
	require.True(t, result.Denied())
	require.Greater(t, result.RetryAfterSeconds, int64(0))
}

func TestRateLimiterMutualExclusivity(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		result := rl.CheckLimit(ctx, "addr-x", "")
		require.NotEqual(t, result.Allowed, result.Denied())
	}
}

func TestRateLimiterStats(t *testing.T) {
	rl := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 0; i < 16; i++ {
		rl.CheckLimit(ctx, "addr-s", "")
	}
	rl.RecordTransfer("addr-s2", "")

	stats := rl.Stats()
	require.Equal(t, int64(17), stats.TotalRequests)
	require.Equal(t, int64(16), stats.AllowedRequests)
	require.Equal(t, int64(1), stats.DeniedRequests)
	require.InDelta(t, 16.0/17.0*100, stats.AllowedPercentage, 0.01)
}

func TestRateLimiterRecordTransferChargesQuota(t *testing.T) {
	rl := newTestRateLimiter(t)

	for i := 0; i < 15; i++ {
		rl.RecordTransfer("addr-r", "")
	}
	require.True(t, rl.CheckLimit(context.Background(), "addr-r", "").Denied())
	require.Equal(t, 15, rl.Status("addr-r", "").CurrentCount)
}

func TestRateLimiterIdleCleanup(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		Limit:           10,
		Window:          time.Minute,
		BurstMultiplier: 1.5,
		IdleTTL:         time.Minute,
	})
	t.Cleanup(rl.Stop)

	current := time.Now()
	rl.now = func() time.Time { return current }

	rl.CheckLimit(context.Background(), "addr-idle", "")
	current = current.Add(2 * time.Minute)
	rl.cleanupIdle()

	require.Equal(t, 0, rl.ResetLimit(context.Background(), "addr-idle", "test"))
}
