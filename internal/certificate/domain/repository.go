package certificate

import "context"

// Repository persists issued certificates.
type Repository interface {
	// Save stores c. Saving an id that already exists is a no-op.
	Save(ctx context.Context, c *Certificate) error
	Get(ctx context.Context, id int64) (*Certificate, error)
	// List returns certificates held by owner; empty owner lists all.
	List(ctx context.Context, owner string) ([]*Certificate, error)
}
