package eventing

import (
	"context"
	"fmt"
	"time"

	"irec-issuer/internal/eventing/eventbus"
	"irec-issuer/internal/observability/metrics"
)

// ProcessedStore remembers which events a consumer has completed.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe registers handler for eventType under consumerName. With a
// non-nil store, redelivered events the consumer already completed are
// acknowledged without running handler again.
func Subscribe(bus eventbus.EventBus, eventType, consumerName string, handler eventbus.EventHandler, store ProcessedStore) {
	bus.Subscribe(eventType, WrapHandler(consumerName, handler, store))
}

// WrapHandler adds consumer lag metrics and, when store is set, per-consumer
// idempotency keyed by the envelope's event id. A handler error leaves the
// event unmarked so the outbox can deliver it again.
func WrapHandler(consumerName string, handler eventbus.EventHandler, store ProcessedStore) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if ok && !env.OccurredAt.IsZero() {
			metrics.ObserveConsumerLag(consumerName, time.Since(env.OccurredAt))
		}
		if store == nil || !ok || env.EventID == "" {
			return handler(ctx, event)
		}

		done, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return fmt.Errorf("%s: check %s: %w", consumerName, env.EventID, err)
		}
		if done {
			return nil
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		if err := store.MarkProcessed(ctx, env.EventID, consumerName); err != nil {
			return fmt.Errorf("%s: mark %s: %w", consumerName, env.EventID, err)
		}
		return nil
	}
}
