// Package eventbus delivers decoded domain events to in-process consumers.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// EventHandler consumes one event.
type EventHandler func(ctx context.Context, event any) error

// EventBus routes events to handlers by Go type name.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler EventHandler)
}

var ErrNilEvent = errors.New("eventbus: nil event")

// InMemoryBus calls every handler of an event's type synchronously, in
// subscription order.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]EventHandler)}
}

// Publish runs all handlers for event even when one fails. The returned error
// joins every handler failure, so the caller can retry the whole delivery.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)

	b.mu.RLock()
	handlers := b.handlers[eventType]
	b.mu.RUnlock()

	var errs []error
	for _, handle := range handlers {
		if err := handle(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", eventType, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe adds handler for eventType. Empty types and nil handlers are
// ignored.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy on write: Publish iterates the old slice without holding the lock.
	current := b.handlers[eventType]
	next := make([]EventHandler, len(current), len(current)+1)
	copy(next, current)
	b.handlers[eventType] = append(next, handler)
}

// EventType names the dynamic type of event, dereferencing pointers, so a
// value and a pointer to it route to the same handlers.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf is EventType for a static type.
func EventTypeOf[T any]() string {
	return reflect.TypeFor[T]().String()
}
