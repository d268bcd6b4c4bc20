package blockchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"chain-bridge.backend/internal/domain/entities"
	domainerrors "chain-bridge.backend/internal/domain/errors"
	"chain-bridge.backend/pkg/logger"
	"chain-bridge.backend/pkg/metrics"

	"go.uber.org/zap"
)

// rpcGuard wraps outbound RPC calls with a per-adapter circuit breaker,
// request throttle, timeout, and bounded exponential-backoff retries.
// Each adapter owns its own guard so a tripped breaker on one chain never
// affects another.
type rpcGuard struct {
	chainID string
	cfg     entities.ChainAdapterConfig
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newRPCGuard(cfg entities.ChainAdapterConfig) *rpcGuard {
	limit := rate.Inf
	if cfg.RPCRateLimit > 0 {
		limit = rate.Limit(cfg.RPCRateLimit)
	}
	return &rpcGuard{
		chainID: cfg.ChainID,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    cfg.ChainID,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// do runs fn under the guard. InvalidInput errors fail fast and are never
// retried; everything else is retried per the adapter config and surfaced
// as ChainUnreachable once retries are exhausted.
func (g *rpcGuard) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.cfg.RetryBackoff << (attempt - 1)
			if backoff > g.cfg.RequestTimeout {
				backoff = g.cfg.RequestTimeout
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %s on %s: %v", domainerrors.ErrChainUnreachable, op, g.chainID, ctx.Err())
			case <-time.After(backoff):
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %s on %s: %v", domainerrors.ErrChainUnreachable, op, g.chainID, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, fn(callCtx)
		})
		cancel()

		if err == nil {
			metrics.AdapterCallsTotal.WithLabelValues(g.chainID, "ok").Inc()
			return nil
		}
		if errors.Is(err, domainerrors.ErrInvalidInput) {
			metrics.AdapterCallsTotal.WithLabelValues(g.chainID, "invalid").Inc()
			return err
		}

		lastErr = err
		logger.Warn(ctx, "chain RPC call failed",
			zap.String("chain", g.chainID),
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	metrics.AdapterCallsTotal.WithLabelValues(g.chainID, "unreachable").Inc()
	return fmt.Errorf("%w: %s on %s after %d attempts: %v",
		domainerrors.ErrChainUnreachable, op, g.chainID, g.cfg.MaxRetries+1, lastErr)
}
