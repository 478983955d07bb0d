package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"irec-issuer/internal/eventing"
)

const defaultDLQTable = "dead_letter_events"

var errNilDLQDB = errors.New("dlq store: nil db")

// DLQStore keeps one row per undeliverable event in dead_letter_events.
// Issuance failures carry the certification request id as aggregate_id.
type DLQStore struct {
	db          *sql.DB
	table       string
	outboxTable string
}

// DLQOption configures the DLQ store.
type DLQOption func(*DLQStore)

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db *sql.DB, opts ...DLQOption) *DLQStore {
	store := &DLQStore{db: db, table: defaultDLQTable, outboxTable: defaultOutboxTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithRequeueOutboxTable names the outbox table Requeue resets.
func WithRequeueOutboxTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.outboxTable = table
		}
	}
}

// RecordFailure upserts the dead letter for env. A repeated failure keeps the
// first_seen_at of the original, bumps attempts and stores the latest error.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errNilDLQDB
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dlq store: encode %s: %w", env.EventID, err)
	}
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (event_id, event_type, aggregate_id, payload, error, first_seen_at, last_seen_at, attempts)
VALUES ($1, $2, $3, $4, $5, $6, $6, 1)
ON CONFLICT (event_id) DO UPDATE SET
	error = EXCLUDED.error,
	payload = EXCLUDED.payload,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %[1]s.attempts + 1`, s.table)
	_, err = s.db.ExecContext(ctx, query, env.EventID, env.EventType, env.AggregateID, payload, message, time.Now().UTC())
	return err
}

// List returns the most recently failed dead letters first.
func (s *DLQStore) List(ctx context.Context, limit int) ([]eventing.DeadLetter, error) {
	if s == nil || s.db == nil {
		return nil, errNilDLQDB
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT event_id, event_type, aggregate_id, error, attempts, first_seen_at, last_seen_at
FROM %s
ORDER BY last_seen_at DESC
LIMIT $1`, s.table)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("dlq store: list: %w", err)
	}
	defer rows.Close()

	var letters []eventing.DeadLetter
	for rows.Next() {
		var d eventing.DeadLetter
		if err := rows.Scan(&d.EventID, &d.EventType, &d.AggregateID, &d.Error, &d.Attempts, &d.FirstSeenAt, &d.LastSeenAt); err != nil {
			return nil, err
		}
		letters = append(letters, d)
	}
	return letters, rows.Err()
}

// Requeue makes the outbox record of eventID deliverable again with a fresh
// attempt budget and drops its dead letter, in one transaction. It returns
// eventing.ErrUnknownEventID when no outbox record has that event id.
func (s *DLQStore) Requeue(ctx context.Context, eventID string) error {
	if s == nil || s.db == nil {
		return errNilDLQDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET status = 'pending', attempts = 0, sent_at = NULL WHERE event_id = $1`, s.outboxTable), eventID)
	if err != nil {
		return fmt.Errorf("dlq store: requeue %s: %w", eventID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: %s", eventing.ErrUnknownEventID, eventID)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE event_id = $1`, s.table), eventID); err != nil {
		return fmt.Errorf("dlq store: requeue %s: %w", eventID, err)
	}
	return tx.Commit()
}
