// Package event delivers committed domain events to in-process handlers.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrBusStopped is returned by Start on a bus that was already stopped.
var ErrBusStopped = errors.New("event bus stopped")

// BusConfig sizes the worker pool.
type BusConfig struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
}

// DefaultBusConfig returns a small pool suitable for a single replica.
func DefaultBusConfig() BusConfig {
	return BusConfig{Workers: 4, QueueSize: 1024, HandlerTimeout: 30 * time.Second}
}

// BusStats counts deliveries since the bus was created.
type BusStats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Inline    int64 `json:"inline"`
}

type delivery struct {
	ctx     context.Context
	handler shared.EventHandler
	event   shared.DomainEvent
}

// AsyncEventBus hands every (event, handler) pair to a pool of workers.
// Before Start, and whenever the queue is full, delivery happens inline on
// the publishing goroutine. Handler errors and panics are logged and never
// reach the publisher.
type AsyncEventBus struct {
	cfg    BusConfig
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	wildcard []shared.EventHandler

	// queueMu guards queue against send-after-close during Stop.
	queueMu sync.RWMutex
	queue   chan delivery
	running bool
	stopped bool
	group   *errgroup.Group

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	inline    atomic.Int64
}

// NewAsyncEventBus creates a bus; zero config fields take defaults.
func NewAsyncEventBus(cfg BusConfig, logger *zap.Logger) *AsyncEventBus {
	def := DefaultBusConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	return &AsyncEventBus{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string][]shared.EventHandler),
	}
}

// Subscribe registers handler for eventTypes, or for the handler's own
// EventTypes when none are given. A handler with no types receives every event.
func (b *AsyncEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		b.wildcard = append(b.wildcard, handler)
	}
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], handler)
	}
	b.logger.Debug("Handler subscribed",
		zap.String("handler", handlerName(handler)),
		zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes handler from every event type.
func (b *AsyncEventBus) Unsubscribe(handler shared.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = without(b.wildcard, handler)
	for et, hs := range b.handlers {
		if rest := without(hs, handler); len(rest) > 0 {
			b.handlers[et] = rest
		} else {
			delete(b.handlers, et)
		}
	}
}

func without(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	out := handlers[:0:0]
	for _, h := range handlers {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

// handlersFor returns type-specific handlers followed by wildcard ones.
func (b *AsyncEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]shared.EventHandler, 0, len(b.handlers[eventType])+len(b.wildcard))
	out = append(out, b.handlers[eventType]...)
	return append(out, b.wildcard...)
}

// Start launches the workers. Handlers run under the publisher's context
// values without its cancellation; use Stop to shut down.
func (b *AsyncEventBus) Start(_ context.Context) error {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if b.stopped {
		return ErrBusStopped
	}
	if b.running {
		return nil
	}
	b.queue = make(chan delivery, b.cfg.QueueSize)
	b.group = &errgroup.Group{}
	queue := b.queue
	for range b.cfg.Workers {
		b.group.Go(func() error {
			for d := range queue {
				b.deliver(d)
			}
			return nil
		})
	}
	b.running = true
	b.logger.Info("Event bus started",
		zap.Int("workers", b.cfg.Workers),
		zap.Int("queue_size", b.cfg.QueueSize))
	return nil
}

// Stop drains the queue and waits for the workers, or returns ctx's error
// once ctx expires. Events published after Stop are delivered inline.
func (b *AsyncEventBus) Stop(ctx context.Context) error {
	b.queueMu.Lock()
	if !b.running {
		b.stopped = true
		b.queueMu.Unlock()
		return nil
	}
	b.running = false
	b.stopped = true
	close(b.queue)
	group := b.group
	b.queueMu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("Event bus stopped", zap.Any("stats", b.Stats()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus stop: %w", ctx.Err())
	}
}

// Publish queues every event for its handlers. It never returns a handler
// error; callers have already committed.
func (b *AsyncEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	detached := context.WithoutCancel(ctx)
	for _, event := range events {
		b.published.Add(1)
		for _, h := range b.handlersFor(event.EventType()) {
			d := delivery{ctx: detached, handler: h, event: event}
			if !b.enqueue(d) {
				b.inline.Add(1)
				b.deliver(d)
			}
		}
	}
	return nil
}

func (b *AsyncEventBus) enqueue(d delivery) bool {
	b.queueMu.RLock()
	defer b.queueMu.RUnlock()
	if !b.running {
		return false
	}
	select {
	case b.queue <- d:
		return true
	default:
		b.logger.Warn("Event queue full, delivering inline",
			zap.String("event_type", d.event.EventType()),
			zap.String("handler", handlerName(d.handler)))
		return false
	}
}

func (b *AsyncEventBus) deliver(d delivery) {
	ctx, cancel := context.WithTimeout(d.ctx, b.cfg.HandlerTimeout)
	defer cancel()

	log := logger.WithLogger(ctx, b.logger).With(
		zap.String("event_type", d.event.EventType()),
		zap.String("event_id", d.event.EventID().String()),
		zap.String("handler", handlerName(d.handler)),
	)
	if err := b.safeHandle(ctx, d); err != nil {
		b.failed.Add(1)
		log.Error("Event handler failed", zap.Error(err))
		return
	}
	b.delivered.Add(1)
}

func (b *AsyncEventBus) safeHandle(ctx context.Context, d delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return d.handler.Handle(ctx, d.event)
}

// Stats returns the delivery counters.
func (b *AsyncEventBus) Stats() BusStats {
	return BusStats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
		Inline:    b.inline.Load(),
	}
}

// NamedHandler is implemented by handlers that report a stable name.
type NamedHandler interface {
	Name() string
}

func handlerName(h shared.EventHandler) string {
	if n, ok := h.(NamedHandler); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}

var _ shared.EventBus = (*AsyncEventBus)(nil)
