package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/logger"
	"github.com/erp/stockflow/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxIdempotencyKeyLength bounds client supplied keys
const MaxIdempotencyKeyLength = 128

// IdempotencyRecord is the stored outcome of one keyed mutation
type IdempotencyRecord struct {
	TenantID    uuid.UUID
	Scope       string
	Key         string
	RequestHash string
	Response    []byte
	CreatedAt   time.Time
}

// IdempotencyRepository stores keyed results in the mutation's own transaction
type IdempotencyRepository interface {
	// Find returns the record for (tenant, scope, key), nil when absent
	Find(ctx context.Context, tenantID uuid.UUID, scope, key string) (*IdempotencyRecord, error)

	// Save inserts a record; a duplicate key is a conflict
	Save(ctx context.Context, record *IdempotencyRecord) error
}

// Mutation describes one write submitted to the Executor
type Mutation struct {
	TenantID uuid.UUID
	// Scope names the operation, so one key may be reused across operations
	Scope string
	// Key is the client's idempotency key; empty disables replay
	Key string
	// Request is fingerprinted to detect a key reused with different input
	Request any
}

func (m Mutation) lockKey() string {
	return "idem:" + m.TenantID.String() + ":" + m.Scope + ":" + m.Key
}

// Fingerprint returns the sha256 hex digest of v's JSON encoding
func Fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint request: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Effects collects what a transaction wants done once it has committed.
// A retried attempt starts from an empty Effects.
type Effects struct {
	events  []shared.DomainEvent
	audits  []AuditEvent
	metrics []func(context.Context, *telemetry.StockMetrics)
}

// Publish queues domain events
func (fx *Effects) Publish(events ...shared.DomainEvent) {
	fx.events = append(fx.events, events...)
}

// PublishFrom queues and clears the pending events of an aggregate
func (fx *Effects) PublishFrom(agg shared.AggregateRoot) {
	fx.events = append(fx.events, agg.GetDomainEvents()...)
	agg.ClearDomainEvents()
}

// Audit queues an audit event
func (fx *Effects) Audit(event AuditEvent) {
	fx.audits = append(fx.audits, event)
}

// Measure queues a metric recording
func (fx *Effects) Measure(record func(context.Context, *telemetry.StockMetrics)) {
	fx.metrics = append(fx.metrics, record)
}

// Events returns the queued events
func (fx *Effects) Events() []shared.DomainEvent {
	return fx.events
}

// Executor runs mutations in a transaction scope with idempotent replay and
// dispatches their effects after commit
type Executor struct {
	scope     TransactionScope
	lock      shared.RequestLock
	publisher shared.EventPublisher
	audit     AuditSink
	metrics   *telemetry.StockMetrics
	logger    *zap.Logger
}

// NewExecutor creates an Executor without request lock, publisher or audit sink
func NewExecutor(scope TransactionScope, logger *zap.Logger) *Executor {
	return &Executor{
		scope:  scope,
		lock:   shared.NoopRequestLock{},
		logger: logger,
	}
}

// SetRequestLock sets the lock serializing concurrent requests with the same key
func (x *Executor) SetRequestLock(lock shared.RequestLock) {
	x.lock = lock
}

// SetEventPublisher sets the event publisher for publishing domain events
func (x *Executor) SetEventPublisher(publisher shared.EventPublisher) {
	x.publisher = publisher
}

// SetAuditSink sets the audit sink
func (x *Executor) SetAuditSink(sink AuditSink) {
	x.audit = sink
}

// SetMetrics sets the stock metrics
func (x *Executor) SetMetrics(metrics *telemetry.StockMetrics) {
	x.metrics = metrics
}

// Metrics returns the configured stock metrics, possibly nil
func (x *Executor) Metrics() *telemetry.StockMetrics {
	return x.metrics
}

// Execute runs fn for m. With a key, a stored result for the same request is
// returned without running fn, and a stored result for a different request is
// a conflict. Otherwise fn's result is stored in the same transaction.
func Execute[T any](ctx context.Context, x *Executor, m Mutation, fn func(ctx context.Context, repos TransactionalRepositories, fx *Effects) (T, error)) (T, error) {
	var zero T
	var hash string
	if m.Key != "" {
		if len(m.Key) > MaxIdempotencyKeyLength {
			return zero, shared.NewValidationError("INVALID_IDEMPOTENCY_KEY", "Idempotency key is too long")
		}
		var err error
		if hash, err = Fingerprint(m.Request); err != nil {
			return zero, err
		}
		release, err := x.lock.Acquire(ctx, m.lockKey())
		if err != nil {
			return zero, err
		}
		defer release()
	}

	var (
		result   T
		fx       *Effects
		replayed bool
	)
	err := x.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		fx = &Effects{}
		replayed = false
		if m.Key != "" {
			rec, err := repos.Idempotency().Find(ctx, m.TenantID, m.Scope, m.Key)
			if err != nil {
				return err
			}
			if rec != nil {
				if rec.RequestHash != hash {
					return shared.ErrIdempotencyMismatch
				}
				var stored T
				if err := json.Unmarshal(rec.Response, &stored); err != nil {
					return fmt.Errorf("decode stored result for key %q: %w", m.Key, err)
				}
				result = stored
				replayed = true
				return nil
			}
		}

		out, err := fn(ctx, repos, fx)
		if err != nil {
			return err
		}
		result = out
		if m.Key == "" {
			return nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode result for key %q: %w", m.Key, err)
		}
		return repos.Idempotency().Save(ctx, &IdempotencyRecord{
			TenantID:    m.TenantID,
			Scope:       m.Scope,
			Key:         m.Key,
			RequestHash: hash,
			Response:    data,
			CreatedAt:   time.Now().UTC(),
		})
	})
	if err != nil {
		return zero, err
	}
	if replayed {
		x.metrics.IdempotentReplay(ctx)
		logger.L(ctx).Debug("Replayed idempotent result", zap.String("scope", m.Scope), zap.String("key", m.Key))
		return result, nil
	}
	x.dispatch(ctx, fx)
	return result, nil
}

func (x *Executor) dispatch(ctx context.Context, fx *Effects) {
	for _, record := range fx.metrics {
		record(ctx, x.metrics)
	}
	if x.publisher != nil && len(fx.events) > 0 {
		if err := x.publisher.Publish(ctx, fx.events...); err != nil {
			x.logger.Error("Failed to publish domain events", zap.Error(err), zap.Int("count", len(fx.events)))
		}
	}
	if x.audit == nil {
		return
	}
	correlationID := logger.GetRequestID(ctx)
	for _, ev := range fx.audits {
		if ev.CorrelationID == "" {
			ev.CorrelationID = correlationID
		}
		if err := x.audit.RecordEvent(ctx, ev); err != nil {
			x.logger.Warn("Failed to record audit event",
				zap.Error(err),
				zap.String("entity_type", ev.EntityType),
				zap.String("entity_id", ev.EntityID.String()),
				zap.String("action", ev.Action),
			)
		}
	}
}
