package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appinv "github.com/erp/stockflow/internal/application/inventory"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	catalogKeyPrefix       = "catalog:"
	catalogInvalidationSub = "catalog:invalidate"
)

// CatalogCacheConfig sets the tier lifetimes. LocalTTL should stay well below
// SharedTTL since local entries only learn about changes through pub/sub.
type CatalogCacheConfig struct {
	LocalTTL  time.Duration
	SharedTTL time.Duration
	Prefix    string
}

type localEntry struct {
	value     string
	expiresAt time.Time
}

type invalidation struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	ProductID uuid.UUID `json:"product_id"`
}

var errProductAbsent = errors.New("product absent")

// CatalogCacheStats counts hits per tier.
type CatalogCacheStats struct {
	LocalHits   int64
	SharedHits  int64
	SourceLoads int64
}

// CatalogCache sits in front of the catalog port and caches which products
// exist. Local entries live in process memory, shared entries in redis.
// Invalidate drops both tiers and tells other replicas to drop their local
// entries. Prices are never cached.
type CatalogCache struct {
	source appinv.Catalog
	client *redis.Client
	cfg    CatalogCacheConfig
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	local map[string]localEntry

	localHits   atomic.Int64
	sharedHits  atomic.Int64
	sourceLoads atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewCatalogCache wraps source. client may be nil, in which case only the
// local tier is used.
func NewCatalogCache(source appinv.Catalog, client *redis.Client, cfg CatalogCacheConfig, logger *zap.Logger) *CatalogCache {
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 30 * time.Second
	}
	if cfg.SharedTTL <= 0 {
		cfg.SharedTTL = 10 * time.Minute
	}
	return &CatalogCache{
		source: source,
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		local:  make(map[string]localEntry),
	}
}

// Start subscribes to invalidations from other replicas. It returns once
// the subscription is confirmed; messages are handled until Close.
func (c *CatalogCache) Start(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pubsub := c.client.Subscribe(subCtx, c.channel())
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", c.channel(), err)
	}
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv invalidation
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					c.logger.Warn("Dropping malformed catalog invalidation", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				c.dropLocal(inv.TenantID, inv.ProductID)
			}
		}
	}()
	c.logger.Info("Subscribed to catalog invalidations", zap.String("channel", c.channel()))
	return nil
}

// Close stops the invalidation subscription.
func (c *CatalogCache) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

// ProductPrice always reads the source. Prices feed approval rule matching,
// where a stale value could select the wrong rule.
func (c *CatalogCache) ProductPrice(ctx context.Context, tenantID, productID uuid.UUID) (int64, error) {
	c.sourceLoads.Add(1)
	return c.source.ProductPrice(ctx, tenantID, productID)
}

// ProductExists caches positive answers only, so a product added to the
// catalog is visible on the next call.
func (c *CatalogCache) ProductExists(ctx context.Context, tenantID, productID uuid.UUID) (bool, error) {
	_, err := c.get(ctx, c.key(tenantID, productID, "exists"), func() (string, error) {
		ok, err := c.source.ProductExists(ctx, tenantID, productID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errProductAbsent
		}
		return "1", nil
	})
	if errors.Is(err, errProductAbsent) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate forgets everything cached for the product on every replica.
func (c *CatalogCache) Invalidate(ctx context.Context, tenantID, productID uuid.UUID) error {
	c.dropLocal(tenantID, productID)
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(tenantID, productID, "exists")).Err(); err != nil {
		return fmt.Errorf("drop cached product %s: %w", productID, err)
	}
	payload, err := json.Marshal(invalidation{TenantID: tenantID, ProductID: productID})
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.channel(), payload).Err(); err != nil {
		return fmt.Errorf("publish catalog invalidation: %w", err)
	}
	return nil
}

// Stats returns hit counters since construction.
func (c *CatalogCache) Stats() CatalogCacheStats {
	return CatalogCacheStats{
		LocalHits:   c.localHits.Load(),
		SharedHits:  c.sharedHits.Load(),
		SourceLoads: c.sourceLoads.Load(),
	}
}

func (c *CatalogCache) get(ctx context.Context, key string, load func() (string, error)) (string, error) {
	if v, ok := c.getLocal(key); ok {
		c.localHits.Add(1)
		return v, nil
	}

	if c.client != nil {
		v, err := c.client.Get(ctx, key).Result()
		switch {
		case err == nil:
			c.sharedHits.Add(1)
			c.setLocal(key, v)
			return v, nil
		case !errors.Is(err, redis.Nil):
			// Redis trouble degrades to the source.
			c.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	v, err := load()
	if err != nil {
		return "", err
	}
	c.sourceLoads.Add(1)
	c.setLocal(key, v)
	if c.client != nil {
		if err := c.client.Set(ctx, key, v, c.cfg.SharedTTL).Err(); err != nil {
			c.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return v, nil
}

func (c *CatalogCache) getLocal(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.local[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (c *CatalogCache) setLocal(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = localEntry{value: value, expiresAt: c.now().Add(c.cfg.LocalTTL)}
}

func (c *CatalogCache) dropLocal(tenantID, productID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.local, c.key(tenantID, productID, "exists"))
}

func (c *CatalogCache) key(tenantID, productID uuid.UUID, field string) string {
	return c.cfg.Prefix + catalogKeyPrefix + tenantID.String() + ":" + productID.String() + ":" + field
}

func (c *CatalogCache) channel() string {
	return c.cfg.Prefix + catalogInvalidationSub
}

var _ appinv.Catalog = (*CatalogCache)(nil)
