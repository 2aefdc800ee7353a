// Package memory provides an in-process domain event bus. Events are
// delivered synchronously to subscribers registered for their type.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/scanguard/internal/domain/events"
)

// HandlerFunc processes a delivered event.
type HandlerFunc func(ctx context.Context, env events.EventEnvelope) error

var _ events.DomainEventPublisher = (*Bus)(nil)

// Bus is an in-memory events.DomainEventPublisher suitable for single-process
// deployments and tests.
type Bus struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]HandlerFunc
	all      []HandlerFunc
}

// NewBus creates a Bus with no subscribers.
func NewBus() *Bus {
	return &Bus{handlers: make(map[events.EventType][]HandlerFunc)}
}

// Subscribe registers h for the given event types. With no types, h receives
// every event.
func (b *Bus) Subscribe(h HandlerFunc, types ...events.EventType) error {
	if h == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		b.all = append(b.all, h)
		return nil
	}
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], h)
	}
	return nil
}

// PublishDomainEvent delivers event to its subscribers in registration order.
// Handler errors are joined and returned after every handler has run.
func (b *Bus) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	params := events.ApplyOptions(opts)
	env := events.EventEnvelope{
		Type:      event.EventType(),
		Key:       params.Key,
		Headers:   params.Headers,
		Timestamp: event.OccurredAt(),
		Payload:   event,
	}

	b.mu.RLock()
	handlers := make([]HandlerFunc, 0, len(b.handlers[env.Type])+len(b.all))
	handlers = append(handlers, b.handlers[env.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
