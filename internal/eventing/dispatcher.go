package eventing

import (
	"context"
	"time"

	"irec-issuer/internal/observability/metrics"
)

const defaultDispatchBatch = 50

// EventBus is what the dispatcher delivers decoded events to.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// OutboxStore is the dispatcher's view of the outbox.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore keeps the last failure of every event that could not be
// delivered, with a running attempt count.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord is one stored envelope. Attempts counts failed deliveries.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
	Attempts int
}

// DispatchResult summarises one Dispatch call.
type DispatchResult struct {
	Requested int
	Claimed   int
	Sent      int
	Failed    int
	DLQ       int
}

// Dispatcher moves outbox records onto the in-process bus. A record whose
// handlers fail is marked failed and recorded in the DLQ; the outbox store
// decides whether it is handed out again.
type Dispatcher struct {
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
}

// NewDispatcher constructs a dispatcher. dlq may be nil.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore) *Dispatcher {
	return &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq}
}

// Dispatch delivers up to limit records. Handler failures are counted in the
// result; the returned error reports storage failures only.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (result DispatchResult, err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.ResultSuccess
		if err != nil || result.Failed > 0 {
			outcome = metrics.ResultError
		}
		metrics.ObserveOutboxDispatch(outcome, time.Since(start), result.Sent, result.Failed, result.DLQ)
	}()

	if limit <= 0 {
		limit = defaultDispatchBatch
	}
	result.Requested = limit
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		return result, err
	}
	result.Claimed = len(records)

	for _, record := range records {
		if deliverErr := d.deliver(ctx, record.Envelope); deliverErr != nil {
			result.Failed++
			if markErr := d.outbox.MarkFailed(ctx, record.ID); markErr != nil && err == nil {
				err = markErr
			}
			if d.dlq != nil && d.dlq.RecordFailure(ctx, record.Envelope, deliverErr) == nil {
				result.DLQ++
			}
			continue
		}
		if markErr := d.outbox.MarkSent(ctx, record.ID); markErr != nil {
			// Delivered but not marked: the record comes back and consumers
			// skip it through processed_events.
			result.Failed++
			if err == nil {
				err = markErr
			}
			continue
		}
		result.Sent++
	}
	return result, err
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) error {
	event, err := d.registry.DecodePayload(env)
	if err != nil {
		return err
	}
	return d.bus.Publish(WithEnvelope(ctx, env), event)
}
