package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/thrumwood/thrumwood/internal/logger"
)

// Type represents the type of an event
type Type string

// Event types published by the harvest engine.
const (
	SessionStarted  Type = "session.started"
	SessionEnded    Type = "session.ended"
	CycleProduced   Type = "cycle.produced"
	VitalisDepleted Type = "vitalis.depleted"
	ItemsMoved      Type = "items.moved"
)

// Event represents a generic event in the system
type Event struct {
	Version string      `json:"version"`
	Type    Type        `json:"type"`
	Payload interface{} `json:"payload"`
}

// SchemaVersion is the current event schema version.
const SchemaVersion = "1.0"

// New builds an event with the current schema version.
func New(t Type, payload interface{}) Event {
	return Event{Version: SchemaVersion, Type: t, Payload: payload}
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for an event bus
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType Type, handler Handler)
}

// MemoryBus is an in-memory implementation of the event bus. Handlers
// run synchronously on the publisher's goroutine; handler errors are
// collected, never propagated as panics.
type MemoryBus struct {
	handlers map[Type][]Handler
	mu       sync.RWMutex
}

// NewMemoryBus creates a new MemoryBus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[Type][]Handler),
	}
}

// Publish publishes an event to all subscribers
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers, ok := b.handlers[event.Type]
	b.mu.RUnlock()

	if !ok {
		return nil
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d handler error(s) for %s: %v", len(errs), event.Type, errs)
	}
	return nil
}

// Subscribe subscribes a handler to an event type
func (b *MemoryBus) Subscribe(eventType Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// PublishAsync publishes without blocking the caller and logs any
// handler failure. Used on hot paths where a slow observer must not
// stall the session or sweep logic.
func PublishAsync(ctx context.Context, bus Bus, e Event) {
	go func() {
		asyncCtx := context.WithoutCancel(ctx)
		if err := bus.Publish(asyncCtx, e); err != nil {
			logger.FromContext(asyncCtx).Error("Event publish failed", "type", e.Type, "error", err)
		}
	}()
}
