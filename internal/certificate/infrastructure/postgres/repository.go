package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	certificate "irec-issuer/internal/certificate/domain"
)

const certificateColumns = `id, device_id, generation_start_time, generation_end_time, creation_time,
	creation_block_hash, tx_hash, issued_privately, owner, public_volume::text, private_volume::text,
	certification_request_id`

// CertificateRepository is a Postgres implementation of certificate.Repository.
type CertificateRepository struct {
	db *sql.DB
}

// NewCertificateRepository constructs a repository.
func NewCertificateRepository(db *sql.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Save inserts a certificate; an existing id is left untouched.
func (r *CertificateRepository) Save(ctx context.Context, c *certificate.Certificate) error {
	if r == nil || r.db == nil {
		return errors.New("certificate repo: nil db")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO certificates (
	id, device_id, generation_start_time, generation_end_time, creation_time,
	creation_block_hash, tx_hash, issued_privately, owner, public_volume, private_volume,
	certification_request_id
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric, $12
)
ON CONFLICT (id) DO NOTHING`, c.ID, c.DeviceID, c.GenerationStartTime.UTC(), c.GenerationEndTime.UTC(), c.CreationTime.UTC(),
		c.CreationBlockHash, c.TxHash, c.IssuedPrivately, c.Owner, volumeText(c.Energy.PublicVolume), volumeText(c.Energy.PrivateVolume),
		c.CertificationRequestID)
	return err
}

// Get fetches a certificate by id.
func (r *CertificateRepository) Get(ctx context.Context, id int64) (*certificate.Certificate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("certificate repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE id = $1`, id)
	c, err := scanCertificate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, certificate.ErrNotFound
	}
	return c, err
}

// List returns certificates held by owner, or all when owner is empty.
func (r *CertificateRepository) List(ctx context.Context, owner string) ([]*certificate.Certificate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("certificate repo: nil db")
	}
	var (
		rows *sql.Rows
		err  error
	)
	if owner == "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+certificateColumns+` FROM certificates ORDER BY id`)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE owner = $1 ORDER BY id`, owner)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*certificate.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*certificate.Certificate, error) {
	var (
		c               certificate.Certificate
		public, private string
	)
	if err := row.Scan(&c.ID, &c.DeviceID, &c.GenerationStartTime, &c.GenerationEndTime, &c.CreationTime,
		&c.CreationBlockHash, &c.TxHash, &c.IssuedPrivately, &c.Owner, &public, &private,
		&c.CertificationRequestID); err != nil {
		return nil, err
	}
	var ok bool
	if c.Energy.PublicVolume, ok = new(big.Int).SetString(public, 10); !ok {
		return nil, fmt.Errorf("certificate repo: stored public volume %q", public)
	}
	if c.Energy.PrivateVolume, ok = new(big.Int).SetString(private, 10); !ok {
		return nil, fmt.Errorf("certificate repo: stored private volume %q", private)
	}
	c.GenerationStartTime = c.GenerationStartTime.UTC()
	c.GenerationEndTime = c.GenerationEndTime.UTC()
	c.CreationTime = c.CreationTime.UTC()
	return &c, nil
}

func volumeText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
