package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clientpulse/backend/internal/domain/insight"
	"github.com/clientpulse/backend/internal/domain/priority"
	"github.com/clientpulse/backend/internal/domain/shared"
	"github.com/clientpulse/backend/internal/domain/signal"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEvent is the minimal event bus tests publish.
type testEvent struct {
	shared.BaseDomainEvent
	Detail string `json:"detail"`
}

func newTestEvent(eventType string, tenantID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Signal", uuid.New(), tenantID),
		Detail:          "sessions dropped below threshold",
	}
}

// testHandler records what the bus hands it and can be told to fail.
type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{
		eventTypes: eventTypes,
		handled:    make([]shared.DomainEvent, 0),
	}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) setError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler := newTestHandler(signal.EventTypeSignalReceived)
	bus.Subscribe(handler, signal.EventTypeSignalReceived)

	event := newTestEvent(signal.EventTypeSignalReceived, uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 1)
	assert.Equal(t, event, handler.getHandled()[0])
}

func TestInMemoryEventBus_Publish_MultipleEvents(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler := newTestHandler(signal.EventTypeSignalReceived)
	bus.Subscribe(handler, signal.EventTypeSignalReceived)

	event1 := newTestEvent(signal.EventTypeSignalReceived, uuid.New())
	event2 := newTestEvent(signal.EventTypeSignalReceived, uuid.New())
	err := bus.Publish(context.Background(), event1, event2)

	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 2)
}

func TestInMemoryEventBus_Publish_MultipleHandlers(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler1 := newTestHandler(insight.EventTypeInsightCreated)
	handler2 := newTestHandler(insight.EventTypeInsightCreated)
	bus.Subscribe(handler1, insight.EventTypeInsightCreated)
	bus.Subscribe(handler2, insight.EventTypeInsightCreated)

	event := newTestEvent(insight.EventTypeInsightCreated, uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, handler1.getHandled(), 1)
	assert.Len(t, handler2.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_WildcardHandler(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	wildcardHandler := newTestHandler() // no declared types, receives everything
	bus.Subscribe(wildcardHandler)

	event := newTestEvent(priority.EventTypePriorityActed, uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, wildcardHandler.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_HandlerError(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler1 := newTestHandler(signal.EventTypeSignalDiscarded)
	handler1.setError(errors.New("observer offline"))
	handler2 := newTestHandler(signal.EventTypeSignalDiscarded)
	bus.Subscribe(handler1, signal.EventTypeSignalDiscarded)
	bus.Subscribe(handler2, signal.EventTypeSignalDiscarded)

	event := newTestEvent(signal.EventTypeSignalDiscarded, uuid.New())
	err := bus.Publish(context.Background(), event)

	// A failing observer never fails the publisher, and later handlers run
	require.NoError(t, err)
	assert.Len(t, handler1.getHandled(), 1)
	assert.Len(t, handler2.getHandled(), 1)
}

type panickingHandler struct{}

func (h *panickingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	panic("observer bug")
}

func (h *panickingHandler) EventTypes() []string {
	return []string{signal.EventTypeSignalReceived}
}

func TestInMemoryEventBus_Publish_HandlerPanic(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	bus.Subscribe(&panickingHandler{}, signal.EventTypeSignalReceived)
	survivor := newTestHandler(signal.EventTypeSignalReceived)
	bus.Subscribe(survivor, signal.EventTypeSignalReceived)

	event := newTestEvent(signal.EventTypeSignalReceived, uuid.New())
	err := bus.Publish(context.Background(), event)

	// The panic is contained; later handlers still run
	require.NoError(t, err)
	assert.Len(t, survivor.getHandled(), 1)
}

func TestInMemoryEventBus_Publish_NoMatchingHandlers(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler := newTestHandler(priority.EventTypePriorityExpired)
	bus.Subscribe(handler, priority.EventTypePriorityExpired)

	event := newTestEvent(signal.EventTypeSignalReceived, uuid.New())
	err := bus.Publish(context.Background(), event)

	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 0)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	handler := newTestHandler(signal.EventTypeSignalReceived)
	bus.Subscribe(handler, signal.EventTypeSignalReceived)

	event1 := newTestEvent(signal.EventTypeSignalReceived, uuid.New())
	_ = bus.Publish(context.Background(), event1)
	assert.Len(t, handler.getHandled(), 1)

	bus.Unsubscribe(handler)

	event2 := newTestEvent(signal.EventTypeSignalReceived, uuid.New())
	_ = bus.Publish(context.Background(), event2)
	assert.Len(t, handler.getHandled(), 1, "no delivery after unsubscribe")
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	logger := zap.NewNop()
	bus := NewInMemoryEventBus(logger)

	ctx := context.Background()
	err := bus.Start(ctx)
	require.NoError(t, err)

	// Publishing works once the bus is started
	handler := newTestHandler(signal.EventTypeSignalReceived)
	bus.Subscribe(handler, signal.EventTypeSignalReceived)
	event := newTestEvent(signal.EventTypeSignalReceived, uuid.New())
	err = bus.Publish(ctx, event)
	require.NoError(t, err)
	assert.Len(t, handler.getHandled(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = bus.Stop(ctx)
	require.NoError(t, err)
}
