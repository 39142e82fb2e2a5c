package cache

import (
	"context"
	"fmt"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Stores bundles the redis-backed coordination primitives. Without redis the
// processed-event store is in-memory and the request lock is a no-op.
type Stores struct {
	Processed shared.IdempotencyStore
	Lock      shared.RequestLock
	client    *redis.Client
}

// Redis returns the shared client, nil when running without redis.
func (s *Stores) Redis() *redis.Client {
	return s.client
}

// Close releases the processed store and the redis client.
func (s *Stores) Close() error {
	err := s.Processed.Close()
	if s.client != nil {
		if cerr := s.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// StoreFactoryOption configures NewStores.
type StoreFactoryOption func(*storeFactory)

type storeFactory struct {
	logger        *zap.Logger
	allowFallback bool
	client        *redis.Client
}

// WithLogger sets the logger used for fallback warnings and lock releases.
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *storeFactory) { f.logger = logger }
}

// WithInMemoryFallback controls whether an unreachable redis degrades to the
// in-process stores instead of failing startup. Default true.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *storeFactory) { f.allowFallback = allow }
}

// WithClient uses an existing client instead of dialing one.
func WithClient(client *redis.Client) StoreFactoryOption {
	return func(f *storeFactory) { f.client = client }
}

// NewStores builds the processed-event store and request lock from config.
func NewStores(ctx context.Context, redisCfg config.RedisConfig, idemCfg config.IdempotencyConfig, opts ...StoreFactoryOption) (*Stores, error) {
	f := &storeFactory{logger: zap.NewNop(), allowFallback: true}
	for _, opt := range opts {
		opt(f)
	}

	client := f.client
	if client == nil && redisCfg.Enabled() {
		var err error
		client, err = NewRedisClient(ctx, redisCfg)
		if err != nil {
			if !f.allowFallback {
				return nil, fmt.Errorf("redis required but unavailable: %w", err)
			}
			f.logger.Warn("Redis unavailable, using in-process stores; duplicate event handling is possible across replicas",
				zap.Error(err))
		}
	}

	if client == nil {
		return &Stores{
			Processed: NewInMemoryProcessedStore(),
			Lock:      shared.NoopRequestLock{},
		}, nil
	}

	f.logger.Info("Using redis for processed events and request locks", zap.String("addr", client.Options().Addr))
	return &Stores{
		Processed: NewRedisProcessedStore(client, idemCfg.KeyPrefix),
		Lock:      NewRedisRequestLock(client, idemCfg.KeyPrefix, idemCfg.LockTTL, idemCfg.LockWait, f.logger),
		client:    client,
	}, nil
}
