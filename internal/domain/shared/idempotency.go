package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores processed event IDs to prevent duplicate processing
// of asynchronous side effects
type IdempotencyStore interface {
	// MarkProcessed marks an event as processed with a TTL.
	// Returns true if the event was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed checks if an event has already been processed
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// RequestLock serializes concurrent requests carrying the same idempotency key.
// Acquire returns a release func; ErrIdempotencyInFlight when another holder exists.
type RequestLock interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long processed event IDs are remembered
	TTL time.Duration

	// LockTTL bounds how long an in-flight request holds its key lock
	LockTTL time.Duration

	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		LockTTL: 30 * time.Second,
		Enabled: true,
	}
}

// NoopRequestLock never blocks; the idempotency record's unique key still
// rejects a concurrent duplicate at commit.
type NoopRequestLock struct{}

// Acquire always succeeds
func (NoopRequestLock) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
