package usecases

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chain-bridge.backend/internal/config"
	"chain-bridge.backend/internal/domain/entities"
	"chain-bridge.backend/pkg/logger"
	"chain-bridge.backend/pkg/metrics"
)

const limiterShardCount = 32

type limiterEntry struct {
	mu sync.Mutex
	// events holds the admission timestamps inside the current window,
	// oldest first.
	events   []time.Time
	lastSeen time.Time
}

type limiterShard struct {
	mu      sync.RWMutex
	entries map[string]*limiterEntry
}

// RateLimiter is sliding-window admission control per (address, chain) key.
// An address with a chain qualifier and the same address without one are
// distinct counters and never share quota. Purely volume-based; attack
// semantics live in the detector.
type RateLimiter struct {
	cfg    config.RateLimitConfig
	shards [limiterShardCount]*limiterShard

	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	deniedRequests  atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}

	// now is injectable for window tests.
	now func() time.Time
}

// NewRateLimiter creates the limiter and starts its idle-counter cleanup
// loop. Callers own the returned limiter and must Stop it on shutdown.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg:    cfg,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	for i := range rl.shards {
		rl.shards[i] = &limiterShard{entries: make(map[string]*limiterEntry)}
	}
	if cfg.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// Stop terminates the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// effectiveLimit is the burst ceiling: the steady limit times the burst
// multiplier, never below the steady limit itself.
func (rl *RateLimiter) effectiveLimit() int {
	limit := rl.cfg.Limit
	if rl.cfg.BurstMultiplier > 1 {
		limit = int(float64(rl.cfg.Limit) * rl.cfg.BurstMultiplier)
	}
	return limit
}

func limiterKey(address, chainID string) string {
	return address + "|" + chainID
}

func (rl *RateLimiter) shardFor(key string) *limiterShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return rl.shards[h.Sum32()%limiterShardCount]
}

func (rl *RateLimiter) entryFor(key string) *limiterEntry {
	shard := rl.shardFor(key)

	shard.mu.RLock()
	entry, ok := shard.entries[key]
	shard.mu.RUnlock()
	if ok {
		return entry
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if entry, ok = shard.entries[key]; ok {
		return entry
	}
	entry = &limiterEntry{}
	shard.entries[key] = entry
	return entry
}

// pruneLocked drops events older than the window. Caller holds entry.mu.
func pruneLocked(entry *limiterEntry, cutoff time.Time) {
	drop := 0
	for drop < len(entry.events) && !entry.events[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		entry.events = append(entry.events[:0], entry.events[drop:]...)
	}
}

// CheckLimit performs one admission check and, when allowed, records the
// request against the key's window. An empty address is always denied.
func (rl *RateLimiter) CheckLimit(ctx context.Context, address, chainID string) *entities.RateLimitResult {
	rl.totalRequests.Add(1)

	if address == "" {
		rl.deniedRequests.Add(1)
		metrics.RateLimitChecksTotal.WithLabelValues("denied").Inc()
		return &entities.RateLimitResult{
			Allowed:           false,
			RetryAfterSeconds: int64(rl.cfg.Window / time.Second),
			Headers:           map[string]string{entities.HeaderRetryAfter: strconv.FormatInt(int64(rl.cfg.Window/time.Second), 10)},
		}
	}

	now := rl.now()
	limit := rl.effectiveLimit()
	entry := rl.entryFor(limiterKey(address, chainID))

	entry.mu.Lock()
	defer entry.mu.Unlock()
	pruneLocked(entry, now.Add(-rl.cfg.Window))
	entry.lastSeen = now

	if len(entry.events) >= limit {
		retryAfter := retryAfterSeconds(entry.events[0], now, rl.cfg.Window)
		rl.deniedRequests.Add(1)
		metrics.RateLimitChecksTotal.WithLabelValues("denied").Inc()
		return &entities.RateLimitResult{
			Allowed:           false,
			Remaining:         0,
			RetryAfterSeconds: retryAfter,
			Headers:           rl.headers(entry, now, 0, retryAfter),
		}
	}

	entry.events = append(entry.events, now)
	remaining := limit - len(entry.events)
	rl.allowedRequests.Add(1)
	metrics.RateLimitChecksTotal.WithLabelValues("allowed").Inc()
	return &entities.RateLimitResult{
		Allowed:   true,
		Remaining: remaining,
		Headers:   rl.headers(entry, now, remaining, 0),
	}
}

// RecordTransfer charges one event against the key without an admission
// decision, for call sites where the transfer is already happening.
func (rl *RateLimiter) RecordTransfer(address, chainID string) {
	if address == "" {
		return
	}
	now := rl.now()
	entry := rl.entryFor(limiterKey(address, chainID))

	entry.mu.Lock()
	defer entry.mu.Unlock()
	pruneLocked(entry, now.Add(-rl.cfg.Window))
	entry.events = append(entry.events, now)
	entry.lastSeen = now

	rl.totalRequests.Add(1)
	rl.allowedRequests.Add(1)
}

// Status is a point-in-time read of a key's counter
func (rl *RateLimiter) Status(address, chainID string) *entities.RateLimitStatus {
	now := rl.now()
	entry := rl.entryFor(limiterKey(address, chainID))

	entry.mu.Lock()
	defer entry.mu.Unlock()
	pruneLocked(entry, now.Add(-rl.cfg.Window))

	return &entities.RateLimitStatus{
		Address:      address,
		ChainID:      chainID,
		CurrentCount: len(entry.events),
		Limited:      len(entry.events) >= rl.effectiveLimit(),
	}
}

// ResetLimit clears every counter for the address, across all chain
// qualifiers. The acting operator is recorded for audit.
func (rl *RateLimiter) ResetLimit(ctx context.Context, address, actor string) int {
	prefix := address + "|"
	cleared := 0
	for _, shard := range rl.shards {
		shard.mu.Lock()
		for key := range shard.entries {
			if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
				delete(shard.entries, key)
				cleared++
			}
		}
		shard.mu.Unlock()
	}

	logger.Info(ctx, "rate limit reset",
		zap.String("address", address),
		zap.String("actor", actor),
		zap.Int("counters_cleared", cleared),
	)
	return cleared
}

// Stats returns the limiter's global counters
func (rl *RateLimiter) Stats() *entities.RateLimitStats {
	total := rl.totalRequests.Load()
	allowed := rl.allowedRequests.Load()
	stats := &entities.RateLimitStats{
		TotalRequests:   total,
		AllowedRequests: allowed,
		DeniedRequests:  rl.deniedRequests.Load(),
	}
	if total > 0 {
		stats.AllowedPercentage = float64(allowed) / float64(total) * 100
	}
	return stats
}

func (rl *RateLimiter) headers(entry *limiterEntry, now time.Time, remaining int, retryAfter int64) map[string]string {
	reset := now.Add(rl.cfg.Window)
	if len(entry.events) > 0 {
		reset = entry.events[0].Add(rl.cfg.Window)
	}
	h := map[string]string{
		entities.HeaderRateLimitLimit:     strconv.Itoa(rl.cfg.Limit),
		entities.HeaderRateLimitRemaining: strconv.Itoa(remaining),
		entities.HeaderRateLimitReset:     strconv.FormatInt(reset.Unix(), 10),
	}
	if retryAfter > 0 {
		h[entities.HeaderRetryAfter] = strconv.FormatInt(retryAfter, 10)
	}
	return h
}

// retryAfterSeconds derives the accurate time-to-retry from the oldest
// event's age inside the window, rounded up to a whole second.
func retryAfterSeconds(oldest, now time.Time, window time.Duration) int64 {
	wait := window - now.Sub(oldest)
	if wait <= 0 {
		return 1
	}
	secs := int64((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.cleanupIdle()
		}
	}
}

func (rl *RateLimiter) cleanupIdle() {
	cutoff := rl.now().Add(-rl.cfg.IdleTTL)
	for _, shard := range rl.shards {
		shard.mu.Lock()
		for key, entry := range shard.entries {
			entry.mu.Lock()
			idle := entry.lastSeen.Before(cutoff)
			entry.mu.Unlock()
			if idle {
				delete(shard.entries, key)
			}
		}
		shard.mu.Unlock()
	}
}
