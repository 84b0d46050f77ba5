package shared

import "context"

// EventHandler consumes domain events dispatched by the bus.
type EventHandler interface {
	// Handle processes a single event. Errors are logged by the bus, not
	// propagated to the publisher.
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes names the event types this handler wants. An empty slice
	// subscribes the handler to everything.
	EventTypes() []string
}

// EventPublisher is the producing half of the bus.
type EventPublisher interface {
	// Publish dispatches one or more domain events to subscribed handlers.
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber is the consuming half of the bus.
type EventSubscriber interface {
	// Subscribe registers a handler for the named event types, or for every
	// event when none are named.
	Subscribe(handler EventHandler, eventTypes ...string)
	// Unsubscribe removes a handler from all its subscriptions.
	Unsubscribe(handler EventHandler)
}

// EventBus wires publishers to subscribers with a managed lifecycle.
type EventBus interface {
	EventPublisher
	EventSubscriber
	// Start readies the bus for dispatching.
	Start(ctx context.Context) error
	// Stop waits for in-flight dispatches and shuts the bus down.
	Stop(ctx context.Context) error
}
