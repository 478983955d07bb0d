package certification

import (
	"context"
	"time"
)

// ListFilter narrows request listings. Zero values match everything.
type ListFilter struct {
	Owner    string
	DeviceID string
	Status   Status
}

// Matches reports whether req passes the filter.
func (f ListFilter) Matches(req *Request) bool {
	if f.Owner != "" && f.Owner != req.Owner {
		return false
	}
	if f.DeviceID != "" && f.DeviceID != req.DeviceID {
		return false
	}
	if f.Status != "" && f.Status != req.Status() {
		return false
	}
	return true
}

// Repository persists certification requests.
type Repository interface {
	// Create inserts req and assigns its ID. Returns ErrConflictingPeriod when
	// a live request for the same device and owner overlaps the period.
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id int64) (*Request, error)
	List(ctx context.Context, filter ListFilter) ([]*Request, error)
	// UpdateStatus persists the approval flags of req only if the stored row is
	// still in the expected status. Returns ErrConcurrentUpdate otherwise.
	UpdateStatus(ctx context.Context, req *Request, expected Status) error
	SetIssued(ctx context.Context, id, certificateID int64, at time.Time) error
	SetIssuanceError(ctx context.Context, id int64, message string, at time.Time) error
	// Delete removes a pending request. It undoes a Create whose event could
	// not be stored. Returns ErrNotFound when no pending request has id.
	Delete(ctx context.Context, id int64) error
}
