package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	certification "irec-issuer/internal/certification/domain"
)

const requestColumns = `id, device_id, owner, from_time, to_time, energy::text, files, approved, revoked,
	is_private, COALESCE(issued_certificate_id, 0), issuance_error, created_at, updated_at, approved_at, revoked_at`

// RequestRepository is a Postgres implementation of certification.Repository.
type RequestRepository struct {
	db *sql.DB
}

// NewRequestRepository constructs a repository.
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a request. The device/owner pair is serialized with a
// transaction-scoped advisory lock so the overlap check and insert are atomic.
func (r *RequestRepository) Create(ctx context.Context, req *certification.Request) error {
	if r == nil || r.db == nil {
		return errors.New("certification repo: nil db")
	}
	if req == nil {
		return errors.New("certification repo: nil request")
	}
	files, err := json.Marshal(nonNilFiles(req.Files))
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, req.DeviceID+"|"+req.Owner); err != nil {
		return err
	}
	var conflict bool
	if err := tx.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM certification_requests
	WHERE device_id = $1 AND owner = $2 AND NOT revoked
		AND from_time < $4 AND $3 < to_time
)`, req.DeviceID, req.Owner, req.FromTime, req.ToTime).Scan(&conflict); err != nil {
		return err
	}
	if conflict {
		return certification.ErrConflictingPeriod
	}

	err = tx.QueryRowContext(ctx, `
INSERT INTO certification_requests (
	device_id, owner, from_time, to_time, energy, files, is_private, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5::numeric, $6, $7, $8, $9
)
RETURNING id`, req.DeviceID, req.Owner, req.FromTime, req.ToTime, certification.FormatEnergy(req.Energy),
		files, req.IsPrivate, req.CreatedAt, req.UpdatedAt).Scan(&req.ID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Get fetches a request by id.
func (r *RequestRepository) Get(ctx context.Context, id int64) (*certification.Request, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("certification repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+requestColumns+`
FROM certification_requests
WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, certification.ErrNotFound
	}
	return req, err
}

// List returns requests matching filter ordered by id.
func (r *RequestRepository) List(ctx context.Context, filter certification.ListFilter) ([]*certification.Request, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("certification repo: nil db")
	}
	var (
		clauses []string
		args    []any
	)
	if filter.Owner != "" {
		args = append(args, filter.Owner)
		clauses = append(clauses, fmt.Sprintf("owner = $%d", len(args)))
	}
	if filter.DeviceID != "" {
		args = append(args, filter.DeviceID)
		clauses = append(clauses, fmt.Sprintf("device_id = $%d", len(args)))
	}
	switch filter.Status {
	case certification.StatusPending:
		clauses = append(clauses, "NOT approved AND NOT revoked")
	case certification.StatusApproved:
		clauses = append(clauses, "approved AND NOT revoked")
	case certification.StatusRevoked:
		clauses = append(clauses, "revoked")
	}
	query := `SELECT ` + requestColumns + ` FROM certification_requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*certification.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// UpdateStatus writes approval flags only while the row is in the expected status.
func (r *RequestRepository) UpdateStatus(ctx context.Context, req *certification.Request, expected certification.Status) error {
	if r == nil || r.db == nil {
		return errors.New("certification repo: nil db")
	}
	wantApproved, wantRevoked := statusFlags(expected)
	result, err := r.db.ExecContext(ctx, `
UPDATE certification_requests
SET approved = $2, revoked = $3, approved_at = $4, revoked_at = $5, updated_at = $6
WHERE id = $1 AND approved = $7 AND revoked = $8`,
		req.ID, req.Approved, req.Revoked, nullTime(req.ApprovedAt), nullTime(req.RevokedAt), req.UpdatedAt,
		wantApproved, wantRevoked)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM certification_requests WHERE id = $1)`, req.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return certification.ErrNotFound
		}
		return certification.ErrConcurrentUpdate
	}
	return nil
}

// SetIssued links the minted certificate.
func (r *RequestRepository) SetIssued(ctx context.Context, id, certificateID int64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("certification repo: nil db")
	}
	return expectOne(r.db.ExecContext(ctx, `
UPDATE certification_requests
SET issued_certificate_id = $2, issuance_error = '', updated_at = $3
WHERE id = $1`, id, certificateID, at.UTC()))
}

// SetIssuanceError records the last issuer failure.
func (r *RequestRepository) SetIssuanceError(ctx context.Context, id int64, message string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("certification repo: nil db")
	}
	return expectOne(r.db.ExecContext(ctx, `
UPDATE certification_requests
SET issuance_error = $2, updated_at = $3
WHERE id = $1`, id, message, at.UTC()))
}

// Delete removes a pending request.
func (r *RequestRepository) Delete(ctx context.Context, id int64) error {
	if r == nil || r.db == nil {
		return errors.New("certification repo: nil db")
	}
	return expectOne(r.db.ExecContext(ctx, `
DELETE FROM certification_requests
WHERE id = $1 AND NOT approved AND NOT revoked`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*certification.Request, error) {
	var (
		req        certification.Request
		energy     string
		files      []byte
		approvedAt sql.NullTime
		revokedAt  sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.DeviceID, &req.Owner, &req.FromTime, &req.ToTime, &energy, &files,
		&req.Approved, &req.Revoked, &req.IsPrivate, &req.IssuedCertificateID, &req.IssuanceError,
		&req.CreatedAt, &req.UpdatedAt, &approvedAt, &revokedAt); err != nil {
		return nil, err
	}
	parsed, err := certification.ParseEnergy(energy)
	if err != nil {
		return nil, fmt.Errorf("certification repo: stored energy: %w", err)
	}
	req.Energy = parsed
	if len(files) > 0 {
		if err := json.Unmarshal(files, &req.Files); err != nil {
			return nil, fmt.Errorf("certification repo: stored files: %w", err)
		}
	}
	req.FromTime = req.FromTime.UTC()
	req.ToTime = req.ToTime.UTC()
	if approvedAt.Valid {
		req.ApprovedAt = approvedAt.Time.UTC()
	}
	if revokedAt.Valid {
		req.RevokedAt = revokedAt.Time.UTC()
	}
	return &req, nil
}

func statusFlags(status certification.Status) (approved, revoked bool) {
	switch status {
	case certification.StatusApproved:
		return true, false
	case certification.StatusRevoked:
		return false, true
	default:
		return false, false
	}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nonNilFiles(files []string) []string {
	if files == nil {
		return []string{}
	}
	return files
}

func expectOne(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return certification.ErrNotFound
	}
	return nil
}
