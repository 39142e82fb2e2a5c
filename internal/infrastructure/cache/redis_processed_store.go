package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
)

const processedKeyPrefix = "event:processed:"

// NewRedisClient connects to redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// RedisProcessedStore remembers handled event ids in redis so every replica
// skips an event another one already handled.
type RedisProcessedStore struct {
	client *redis.Client
	prefix string
}

// NewRedisProcessedStore wraps client; prefix namespaces the keys.
func NewRedisProcessedStore(client *redis.Client, prefix string) *RedisProcessedStore {
	return &RedisProcessedStore{client: client, prefix: prefix + processedKeyPrefix}
}

// MarkProcessed uses SET NX so exactly one caller wins per event id.
func (s *RedisProcessedStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event %s as processed: %w", eventID, err)
	}
	return ok, nil
}

// IsProcessed reports whether the event id key exists.
func (s *RedisProcessedStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check event %s: %w", eventID, err)
	}
	return n > 0, nil
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisProcessedStore) Close() error {
	return nil
}

var _ shared.IdempotencyStore = (*RedisProcessedStore)(nil)
