package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/logger"
	"github.com/erp/stockflow/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type panicHandler struct{}

func (panicHandler) Handle(context.Context, shared.DomainEvent) error { panic("boom") }
func (panicHandler) EventTypes() []string                             { return []string{"test.event"} }

// blockingHandler holds every delivery until release is closed.
type blockingHandler struct {
	release chan struct{}
	mu      sync.Mutex
	entered int
	seen    int
	ctxErr  error
}

func (h *blockingHandler) Handle(ctx context.Context, _ shared.DomainEvent) error {
	h.mu.Lock()
	h.entered++
	h.mu.Unlock()
	select {
	case <-h.release:
	case <-ctx.Done():
		h.mu.Lock()
		h.ctxErr = ctx.Err()
		h.mu.Unlock()
		return ctx.Err()
	}
	h.mu.Lock()
	h.seen++
	h.mu.Unlock()
	return nil
}

func (h *blockingHandler) EventTypes() []string { return []string{"test.event"} }

func (h *blockingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seen
}

func (h *blockingHandler) inFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entered - h.seen
}

func (h *blockingHandler) err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctxErr
}

func newBus(t *testing.T, cfg BusConfig) *AsyncEventBus {
	t.Helper()
	return NewAsyncEventBus(cfg, zaptest.NewLogger(t))
}

func TestAsyncEventBus_InlineBeforeStart(t *testing.T) {
	bus := newBus(t, BusConfig{})
	handler := testutil.NewMockEventHandler("test.event")
	bus.Subscribe(handler)

	event := testutil.NewTestEvent("test.event", uuid.New())
	require.NoError(t, bus.Publish(context.Background(), event, testutil.NewTestEvent("other", uuid.New())))

	require.Equal(t, 1, handler.HandledCount())
	assert.Equal(t, event, handler.Handled()[0])
	assert.Equal(t, BusStats{Published: 2, Delivered: 1, Inline: 1}, bus.Stats())
}

func TestAsyncEventBus_Routing(t *testing.T) {
	bus := newBus(t, BusConfig{})
	typed := testutil.NewMockEventHandler("a")
	both := testutil.NewMockEventHandler("a", "b")
	wildcard := testutil.NewMockEventHandler()
	bus.Subscribe(typed)
	bus.Subscribe(both)
	bus.Subscribe(wildcard)
	explicit := testutil.NewMockEventHandler("ignored")
	bus.Subscribe(explicit, "c")

	ctx := context.Background()
	tenant := uuid.New()
	require.NoError(t, bus.Publish(ctx,
		testutil.NewTestEvent("a", tenant),
		testutil.NewTestEvent("b", tenant),
		testutil.NewTestEvent("c", tenant),
		testutil.NewTestEvent("ignored", tenant),
	))

	assert.Equal(t, 1, typed.HandledCount())
	assert.Equal(t, 2, both.HandledCount())
	assert.Equal(t, 4, wildcard.HandledCount())
	assert.Equal(t, 1, explicit.HandledCount())

	bus.Unsubscribe(both)
	bus.Unsubscribe(wildcard)
	require.NoError(t, bus.Publish(ctx, testutil.NewTestEvent("a", tenant)))
	assert.Equal(t, 2, typed.HandledCount())
	assert.Equal(t, 2, both.HandledCount())
	assert.Equal(t, 4, wildcard.HandledCount())
}

func TestAsyncEventBus_FailuresDoNotReachPublisher(t *testing.T) {
	bus := newBus(t, BusConfig{})
	failing := testutil.NewMockEventHandler("test.event")
	failing.SetError(errors.New("handler failed"))
	after := testutil.NewMockEventHandler("test.event")
	bus.Subscribe(failing)
	bus.Subscribe(panicHandler{})
	bus.Subscribe(after)

	require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("test.event", uuid.New())))
	assert.Equal(t, 1, after.HandledCount(), "later handlers still run")
	stats := bus.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Delivered)
}

func TestAsyncEventBus_WorkersDeliverAfterStart(t *testing.T) {
	bus := newBus(t, BusConfig{Workers: 2, QueueSize: 16})
	handler := testutil.NewMockEventHandler("test.event")
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Start(context.Background()), "start is idempotent")

	for range 10 {
		require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("test.event", uuid.New())))
	}
	assert.True(t, testutil.WaitForEventCount(t, handler, 10, 2*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))
	assert.Equal(t, int64(0), bus.Stats().Inline)

	assert.ErrorIs(t, bus.Start(context.Background()), ErrBusStopped)
	require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("test.event", uuid.New())))
	assert.Equal(t, 11, handler.HandledCount(), "after stop delivery is inline")
}

func TestAsyncEventBus_PublishDoesNotWaitForHandlers(t *testing.T) {
	bus := newBus(t, BusConfig{Workers: 1, QueueSize: 4})
	handler := &blockingHandler{release: make(chan struct{})}
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))

	reqCtx, cancelReq := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(reqCtx, testutil.NewTestEvent("test.event", uuid.New())))
	cancelReq()

	close(handler.release)
	require.Eventually(t, func() bool { return handler.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, handler.err(), "request cancellation does not reach the handler")
	require.NoError(t, bus.Stop(context.Background()))
}

func TestAsyncEventBus_FullQueueDeliversInline(t *testing.T) {
	bus := newBus(t, BusConfig{Workers: 1, QueueSize: 1})
	blocker := &blockingHandler{release: make(chan struct{})}
	bus.Subscribe(blocker)
	require.NoError(t, bus.Start(context.Background()))

	// The worker takes the first event and blocks; the second fills the queue.
	require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("test.event", uuid.New())))
	require.Eventually(t, func() bool { return len(bus.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("test.event", uuid.New())))

	done := make(chan struct{})
	go func() {
		_ = bus.Publish(context.Background(), testutil.NewTestEvent("test.event", uuid.New()))
		close(done)
	}()
	// One delivery blocks the worker, the other blocks the publisher inline.
	require.Eventually(t, func() bool { return blocker.inFlight() == 2 }, time.Second, time.Millisecond)
	close(blocker.release)
	<-done

	require.NoError(t, bus.Stop(context.Background()))
	assert.Equal(t, 3, blocker.count())
	assert.Equal(t, int64(1), bus.Stats().Inline)
}

func TestAsyncEventBus_HandlerTimeout(t *testing.T) {
	bus := newBus(t, BusConfig{HandlerTimeout: 20 * time.Millisecond})
	handler := &blockingHandler{release: make(chan struct{})}
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("test.event", uuid.New())))
	assert.ErrorIs(t, handler.err(), context.DeadlineExceeded)
	assert.Equal(t, int64(1), bus.Stats().Failed)
}

func TestAsyncEventBus_StopHonoursDeadline(t *testing.T) {
	bus := newBus(t, BusConfig{Workers: 1, HandlerTimeout: time.Minute})
	handler := &blockingHandler{release: make(chan struct{})}
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), testutil.NewTestEvent("test.event", uuid.New())))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)
	close(handler.release)
}

func TestAsyncEventBus_HandlersSeeRequestFields(t *testing.T) {
	bus := NewAsyncEventBus(BusConfig{}, zap.NewNop())
	capture := &requestIDCapture{}
	bus.Subscribe(capture)

	ctx, _ := logger.WithRequestID(context.Background(), zap.NewNop(), "req-42")
	require.NoError(t, bus.Publish(ctx, testutil.NewTestEvent("test.event", uuid.New())))
	assert.Equal(t, "req-42", capture.got)
}

type requestIDCapture struct {
	got string
}

func (c *requestIDCapture) Handle(ctx context.Context, _ shared.DomainEvent) error {
	c.got = logger.GetRequestID(ctx)
	return nil
}

func (c *requestIDCapture) EventTypes() []string { return nil }
