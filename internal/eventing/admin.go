package eventing

import (
	"context"
	"time"
)

// OutboxStats summarises the outbox for operators. Exhausted records are
// failed ones that will no longer be dispatched; Oldest is the creation time
// of the oldest undelivered record.
type OutboxStats struct {
	Pending   int       `json:"pending"`
	Sent      int       `json:"sent"`
	Retrying  int       `json:"retrying"`
	Exhausted int       `json:"exhausted"`
	Oldest    time.Time `json:"oldest,omitzero"`
}

// DeadLetter is one undeliverable event.
type DeadLetter struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	Error       string    `json:"error"`
	Attempts    int       `json:"attempts"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// OutboxInspector reports outbox delivery state.
type OutboxInspector interface {
	Stats(ctx context.Context) (OutboxStats, error)
}

// DeadLetterQueue lists dead letters and hands them back to the outbox.
type DeadLetterQueue interface {
	List(ctx context.Context, limit int) ([]DeadLetter, error)
	Requeue(ctx context.Context, eventID string) error
}
