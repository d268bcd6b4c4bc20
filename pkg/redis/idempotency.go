package redis

import (
	"context"
	"fmt"
	"time"
)

const (
	// submitLockDuration is how long a submission claim is held while the
	// chain call is in flight.
	submitLockDuration = 2 * time.Minute
	// submitRetentionDuration is how long a completed submission result is
	// remembered so a retry after timeout never double-submits.
	submitRetentionDuration = 24 * time.Hour

	statusProcessing = "processing"
)

// IdempotencyStore guards chain submissions so that retrying the same
// transfer id never produces a second on-chain transaction.
type IdempotencyStore struct {
	prefix string
}

// NewIdempotencyStore creates a store with the given key prefix
// (e.g. "bridge:submit").
func NewIdempotencyStore(prefix string) *IdempotencyStore {
	return &IdempotencyStore{prefix: prefix}
}

func (s *IdempotencyStore) key(idemKey string) string {
	return fmt.Sprintf("%s:%s", s.prefix, idemKey)
}

// Claim attempts to claim the key for processing. It returns:
//   - claimed=true when the caller owns the submission and must proceed;
//   - claimed=false with a non-empty txHash when a previous attempt already
//     completed, in which case that hash must be reused;
//   - claimed=false with an empty txHash when another attempt is in flight.
func (s *IdempotencyStore) Claim(ctx context.Context, idemKey string) (claimed bool, txHash string, err error) {
	ok, err := SetNX(ctx, s.key(idemKey), statusProcessing, submitLockDuration)
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}

	val, err := Get(ctx, s.key(idemKey))
	if err != nil {
		return false, "", err
	}
	if val == statusProcessing {
		return false, "", nil
	}
	return false, val, nil
}

// Complete records the transaction hash produced by a successful submission.
func (s *IdempotencyStore) Complete(ctx context.Context, idemKey, txHash string) error {
	return Set(ctx, s.key(idemKey), txHash, submitRetentionDuration)
}

// Release drops an in-flight claim after a failed submission so that a later
// retry may try again.
func (s *IdempotencyStore) Release(ctx context.Context, idemKey string) error {
	return Del(ctx, s.key(idemKey))
}
