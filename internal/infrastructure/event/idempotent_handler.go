package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyMetrics tracks idempotency-related statistics
type IdempotencyMetrics struct {
	// EventsProcessed counts events handled for the first time
	EventsProcessed atomic.Int64

	// EventsDuplicate counts redeliveries that were skipped
	EventsDuplicate atomic.Int64

	// EventsFailed counts events whose handler gave up
	EventsFailed atomic.Int64
}

// Stats returns a snapshot of the current metrics
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: m.EventsProcessed.Load(),
		EventsDuplicate: m.EventsDuplicate.Load(),
		EventsFailed:    m.EventsFailed.Load(),
	}
}

// IdempotencyStats is a snapshot of idempotency metrics
type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsFailed    int64 `json:"events_failed"`
}

// IdempotentHandler runs the wrapped handler at most once per event. The
// processed key combines the handler name and the event id, so several
// wrapped handlers sharing one store each see every event.
type IdempotentHandler struct {
	handler  shared.EventHandler
	name     string
	store    shared.IdempotencyStore
	config   shared.IdempotencyConfig
	logger   *zap.Logger
	metrics  *IdempotencyMetrics
	attempts int
	backoff  time.Duration
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the idempotency configuration
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithIdempotencyMetrics shares a metrics collector between handlers
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// WithRetry retries a failing handler up to attempts times in total,
// doubling backoff between tries.
func WithRetry(attempts int, backoff time.Duration) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		if attempts > 0 {
			h.attempts = attempts
		}
		h.backoff = backoff
	}
}

// NewIdempotentHandler wraps handler
func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler:  handler,
		name:     handlerName(handler),
		store:    store,
		config:   shared.DefaultIdempotencyConfig(),
		logger:   logger,
		metrics:  &IdempotencyMetrics{},
		attempts: 1,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name reports the wrapped handler's name
func (h *IdempotentHandler) Name() string {
	return h.name
}

// EventTypes returns the event types of the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

func (h *IdempotentHandler) processedKey(event shared.DomainEvent) string {
	return h.name + ":" + event.EventID().String()
}

// Handle marks the event as processed and then runs the wrapped handler.
// The mark is kept when the handler fails, so a failing event is not
// retried by redelivery before the TTL expires.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.run(ctx, event)
	}

	key := h.processedKey(event)
	fields := []zap.Field{
		zap.String("handler", h.name),
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	}

	isNew, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		// A duplicate is cheaper than a lost event.
		h.logger.Warn("Processed-event store unavailable, handling anyway", append(fields, zap.Error(err))...)
	case !isNew:
		h.metrics.EventsDuplicate.Add(1)
		h.logger.Debug("Duplicate event skipped", fields...)
		return nil
	}

	if err := h.run(ctx, event); err != nil {
		h.metrics.EventsFailed.Add(1)
		return err
	}
	h.metrics.EventsProcessed.Add(1)
	return nil
}

func (h *IdempotentHandler) run(ctx context.Context, event shared.DomainEvent) error {
	wait := h.backoff
	var err error
	for attempt := 1; attempt <= h.attempts; attempt++ {
		if err = h.handler.Handle(ctx, event); err == nil {
			return nil
		}
		if attempt == h.attempts {
			break
		}
		h.logger.Warn("Event handler failed, retrying",
			zap.String("handler", h.name),
			zap.String("event_id", event.EventID().String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}

// GetMetrics returns the metrics for this handler
func (h *IdempotentHandler) GetMetrics() *IdempotencyMetrics {
	return h.metrics
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
