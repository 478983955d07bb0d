package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"irec-issuer/internal/observability/metrics"
)

const slowPublishThreshold = 50 * time.Millisecond

// OutboxWriter stores envelopes for later delivery.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Publisher turns domain events into outbox records. Nothing is delivered at
// publish time; the Dispatcher picks records up later.
type Publisher struct {
	outbox OutboxWriter
	logger *zap.Logger
}

// NewPublisher constructs a publisher. A nil logger discards output.
func NewPublisher(outbox OutboxWriter, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{outbox: outbox, logger: logger}
}

// Publish stores event with the metadata found in ctx (see MetaFromContext).
func (p *Publisher) Publish(ctx context.Context, event any) (err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		outcome := metrics.ResultSuccess
		if err != nil {
			outcome = metrics.ResultError
		}
		metrics.ObserveOutboxPublish(outcome, elapsed)
		if elapsed > slowPublishThreshold {
			p.logger.Warn("slow outbox publish", zap.Duration("duration", elapsed), zap.Error(err))
		}
	}()

	env, err := BuildEnvelope(event, MetaFromContext(ctx))
	if err != nil {
		return err
	}
	if _, err = p.outbox.Insert(ctx, env); err != nil {
		return err
	}
	p.logger.Debug("event stored",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("aggregate_id", env.AggregateID),
	)
	return nil
}
