package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const auditColumns = `id, actor, address, role, action, resource_type, resource_id,
	COALESCE(metadata::text, ''), payload_digest, ip, user_agent, created_at`

// Repository persists audit entries in the audit_logs table.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository. A nil db yields nil.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log inserts entry, filling in the id, timestamp and payload digest when
// they are missing.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, actor, address, role, action, resource_type, resource_id,
	metadata, payload_digest, ip, user_agent, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.Actor, entry.Address, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit repo: insert %s %s: %w", entry.Action, entry.ResourceID, err)
	}
	return nil
}

// ListByResource returns the history of one resource, oldest first. An empty
// resourceID lists every entry of resourceType.
func (r *Repository) ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+auditColumns+`
FROM audit_logs
WHERE resource_type = $1 AND ($2 = '' OR resource_id = $2)
ORDER BY created_at, id
LIMIT $3`, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit repo: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			metadata string
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Address, &e.Role, &e.Action, &e.ResourceType, &e.ResourceID,
			&metadata, &e.PayloadDigest, &e.IP, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		if metadata != "" {
			e.Metadata = []byte(metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
