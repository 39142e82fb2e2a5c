package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	requestLockPrefix = "lock:idem:"
	lockRetryStep     = 25 * time.Millisecond
)

// RedisRequestLock holds a short redis lock per idempotency key so a
// duplicate that arrives while the first request is still running waits
// briefly and then fails instead of racing it.
type RedisRequestLock struct {
	locker *redislock.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisRequestLock builds the lock. ttl bounds how long a crashed holder
// keeps the key; wait is how long a duplicate retries before giving up.
func NewRedisRequestLock(client *redis.Client, prefix string, ttl, wait time.Duration, logger *zap.Logger) *RedisRequestLock {
	return &RedisRequestLock{
		locker: redislock.New(client),
		prefix: prefix + requestLockPrefix,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

// Acquire obtains the lock for key. It returns shared.ErrIdempotencyInFlight
// when another holder keeps the key past the wait window.
func (l *RedisRequestLock) Acquire(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.locker.Obtain(waitCtx, l.prefix+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(lockRetryStep),
	})
	if errors.Is(err, redislock.ErrNotObtained) ||
		(errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return nil, shared.ErrIdempotencyInFlight
	}
	if err != nil {
		return nil, shared.NewTransientStorageError("Request lock store is unavailable", fmt.Errorf("obtain %s: %w", key, err))
	}

	return func() {
		// The request context may already be cancelled; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release request lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

var _ shared.RequestLock = (*RedisRequestLock)(nil)
