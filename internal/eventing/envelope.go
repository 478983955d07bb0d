package eventing

import (
	"encoding/json"
	"errors"
	"time"

	"irec-issuer/internal/eventing/eventbus"
)

const currentSchemaVersion = 1

// Envelope is the outbox representation of an event: the JSON payload plus
// the metadata consumers need for idempotency and tracing.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	Actor         string          `json:"actor"`
	AggregateID   string          `json:"aggregate_id"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta holds envelope fields supplied by the publisher or the event itself.
// Zero fields are filled with defaults.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	Actor         string
	AggregateID   string
	SchemaVersion int
}

// Described is implemented by events that know their own id, aggregate and
// occurrence time.
type Described interface {
	Describe() Meta
}

// BuildEnvelope encodes event. Fields set in meta win over the event's own
// description; a missing event id gets a random one, which also serves as
// the correlation id of a new causal chain.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}
	if d, ok := event.(Described); ok {
		meta = meta.merge(d.Describe())
	}
	if meta.EventID == "" {
		meta.EventID = NewEventID()
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = meta.EventID
	}
	if meta.OccurredAt.IsZero() {
		meta.OccurredAt = time.Now()
	}
	if meta.SchemaVersion == 0 {
		meta.SchemaVersion = currentSchemaVersion
	}
	return Envelope{
		EventID:       meta.EventID,
		EventType:     eventbus.EventType(event),
		OccurredAt:    meta.OccurredAt.UTC(),
		CorrelationID: meta.CorrelationID,
		Actor:         meta.Actor,
		AggregateID:   meta.AggregateID,
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}, nil
}

// merge fills the zero fields of m from fallback.
func (m Meta) merge(fallback Meta) Meta {
	if m.EventID == "" {
		m.EventID = fallback.EventID
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = fallback.OccurredAt
	}
	if m.CorrelationID == "" {
		m.CorrelationID = fallback.CorrelationID
	}
	if m.Actor == "" {
		m.Actor = fallback.Actor
	}
	if m.AggregateID == "" {
		m.AggregateID = fallback.AggregateID
	}
	if m.SchemaVersion == 0 {
		m.SchemaVersion = fallback.SchemaVersion
	}
	return m
}
