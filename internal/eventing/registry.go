package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"irec-issuer/internal/eventing/eventbus"
)

// ErrUnknownEventType is returned for envelopes whose type was never
// registered. The dispatcher dead-letters such records.
var ErrUnknownEventType = errors.New("eventing: unknown event type")

// Registry resolves envelope type names back to Go types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]reflect.Type)}
}

// Register records the types of samples. Pointer samples register their
// element type; decoded events are always values.
func (r *Registry) Register(samples ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sample := range samples {
		if sample == nil {
			continue
		}
		t := reflect.TypeOf(sample)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		r.types[eventbus.EventType(sample)] = t
	}
}

// DecodePayload returns the event carried by env as a value of its
// registered type.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	target := reflect.New(t)
	if err := json.Unmarshal(env.Payload, target.Interface()); err != nil {
		return nil, fmt.Errorf("eventing: decode %s %s: %w", env.EventType, env.EventID, err)
	}
	return target.Elem().Interface(), nil
}
