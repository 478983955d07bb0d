package eventing

import "context"

type ctxKey int

const (
	envelopeKey ctxKey = iota
	actorKey
	correlationKey
	eventIDKey
)

// WithEnvelope attaches the envelope being delivered to ctx.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey, env)
}

// EnvelopeFromContext returns the envelope being delivered, if any.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey).(Envelope)
	return env, ok
}

// WithActor records who caused the next published event.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// WithCorrelationID sets the correlation id of the next published event.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey, correlationID)
}

// WithEventID pins the id of the next published event. Publishing twice with
// the same id stores the event once.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDKey, eventID)
}

// MetaFromContext collects publish metadata from ctx. Without an explicit
// correlation id, the envelope being delivered donates its own, so follow-up
// events published by a consumer stay correlated with their cause.
func MetaFromContext(ctx context.Context) Meta {
	meta := Meta{
		Actor:         stringValue(ctx, actorKey),
		CorrelationID: stringValue(ctx, correlationKey),
		EventID:       stringValue(ctx, eventIDKey),
	}
	if meta.CorrelationID == "" {
		if env, ok := EnvelopeFromContext(ctx); ok {
			meta.CorrelationID = env.CorrelationID
		}
	}
	return meta
}

func stringValue(ctx context.Context, key ctxKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}
