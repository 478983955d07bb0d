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

const (
	defaultOutboxTable       = "event_outbox"
	defaultOutboxMaxAttempts = 5
	defaultOutboxBatch       = 50
)

var errNilOutboxDB = errors.New("outbox store: nil db")

// OutboxStore keeps published envelopes in event_outbox until the dispatcher
// has delivered them. Records are keyed by a random id; event_id is unique so
// republishing the same event is ignored.
type OutboxStore struct {
	db          *sql.DB
	table       string
	maxAttempts int
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable, maxAttempts: defaultOutboxMaxAttempts}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithMaxAttempts bounds how often a failed record is handed out again.
func WithMaxAttempts(attempts int) OutboxOption {
	return func(store *OutboxStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// Insert stores env as a pending record and returns the record id.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errNilOutboxDB
	}
	if env.EventID == "" {
		return "", errors.New("outbox store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("outbox store: encode %s: %w", env.EventType, err)
	}
	id := eventing.NewEventID()
	query := fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, payload, status, attempts)
VALUES ($1, $2, $3, $4, 'pending', 0)
ON CONFLICT (event_id) DO NOTHING`, s.table)
	if _, err := s.db.ExecContext(ctx, query, id, env.EventID, env.EventType, payload); err != nil {
		return "", fmt.Errorf("outbox store: insert %s: %w", env.EventID, err)
	}
	return id, nil
}

// ListPending returns up to limit deliverable records, oldest first: pending
// ones and failed ones with attempts left.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNilOutboxDB
	}
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	query := fmt.Sprintf(`
SELECT id, payload, attempts
FROM %s
WHERE status = 'pending' OR (status = 'failed' AND attempts < $2)
ORDER BY created_at, id
LIMIT $1`, s.table)
	rows, err := s.db.QueryContext(ctx, query, limit, s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("outbox store: list pending: %w", err)
	}
	defer rows.Close()

	records := make([]eventing.OutboxRecord, 0, limit)
	for rows.Next() {
		var (
			record  eventing.OutboxRecord
			payload []byte
		)
		if err := rows.Scan(&record.ID, &payload, &record.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &record.Envelope); err != nil {
			return nil, fmt.Errorf("outbox store: decode %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// MarkSent marks a record delivered.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.update(ctx, id, `SET status = 'sent', sent_at = $2`, time.Now().UTC())
}

// MarkFailed marks a record failed and counts the attempt.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	return s.update(ctx, id, `SET status = 'failed', attempts = attempts + 1`)
}

func (s *OutboxStore) update(ctx context.Context, id, set string, args ...any) error {
	if s == nil || s.db == nil {
		return errNilOutboxDB
	}
	query := fmt.Sprintf(`UPDATE %s %s WHERE id = $1`, s.table, set)
	if _, err := s.db.ExecContext(ctx, query, append([]any{id}, args...)...); err != nil {
		return fmt.Errorf("outbox store: update %s: %w", id, err)
	}
	return nil
}

// Stats counts records by delivery state.
func (s *OutboxStore) Stats(ctx context.Context) (eventing.OutboxStats, error) {
	var stats eventing.OutboxStats
	if s == nil || s.db == nil {
		return stats, errNilOutboxDB
	}
	query := fmt.Sprintf(`
SELECT
	COUNT(*) FILTER (WHERE status = 'pending'),
	COUNT(*) FILTER (WHERE status = 'sent'),
	COUNT(*) FILTER (WHERE status = 'failed' AND attempts < $1),
	COUNT(*) FILTER (WHERE status = 'failed' AND attempts >= $1),
	MIN(created_at) FILTER (WHERE status <> 'sent')
FROM %s`, s.table)
	var oldest sql.NullTime
	if err := s.db.QueryRowContext(ctx, query, s.maxAttempts).Scan(
		&stats.Pending, &stats.Sent, &stats.Retrying, &stats.Exhausted, &oldest,
	); err != nil {
		return stats, fmt.Errorf("outbox store: stats: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = oldest.Time
	}
	return stats, nil
}
