package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultProcessedTable = "processed_events"

var errProcessedArgs = errors.New("processed store: event id and consumer name are required")

// ProcessedStore remembers which (event_id, consumer_name) pairs were handled
// so redelivered outbox records are skipped by consumers.
type ProcessedStore struct {
	db    *sql.DB
	table string
}

// ProcessedOption configures the processed store.
type ProcessedOption func(*ProcessedStore)

// NewProcessedStore constructs a processed store.
func NewProcessedStore(db *sql.DB, opts ...ProcessedOption) *ProcessedStore {
	store := &ProcessedStore{db: db, table: defaultProcessedTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// WithProcessedTable overrides the table name.
func WithProcessedTable(table string) ProcessedOption {
	return func(store *ProcessedStore) {
		if table != "" {
			store.table = table
		}
	}
}

func (s *ProcessedStore) check(eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errProcessedArgs
	}
	return nil
}

// HasProcessed reports whether consumerName already handled eventID.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := s.check(eventID, consumerName); err != nil {
		return false, err
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE event_id = $1 AND consumer_name = $2)`, s.table)
	if err := s.db.QueryRowContext(ctx, query, eventID, consumerName).Scan(&exists); err != nil {
		return false, fmt.Errorf("processed store: lookup %s/%s: %w", consumerName, eventID, err)
	}
	return exists, nil
}

// MarkProcessed records eventID as handled by consumerName. Marking twice is
// a no-op.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if err := s.check(eventID, consumerName); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, s.table)
	if _, err := s.db.ExecContext(ctx, query, eventID, consumerName, time.Now().UTC()); err != nil {
		return fmt.Errorf("processed store: mark %s/%s: %w", consumerName, eventID, err)
	}
	return nil
}

// PurgeBefore deletes markers older than cutoff whose outbox record has
// already been sent, and returns the number of rows removed. Markers for
// records that may still be redelivered are kept.
func (s *ProcessedStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("processed store: nil db")
	}
	query := fmt.Sprintf(`
DELETE FROM %s p
WHERE p.processed_at < $1
  AND NOT EXISTS (
	SELECT 1 FROM event_outbox o
	WHERE o.event_id = p.event_id AND o.status <> 'sent'
  )`, s.table)
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("processed store: purge: %w", err)
	}
	return res.RowsAffected()
}
