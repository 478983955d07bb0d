package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	certification "irec-issuer/internal/certification/domain"
)

// Repository is an in-memory certification request store.
type Repository struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*certification.Request
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{items: make(map[int64]*certification.Request)}
}

// Create inserts req after an overlap check under the store lock.
func (r *Repository) Create(_ context.Context, req *certification.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Overlaps(req) {
			return certification.ErrConflictingPeriod
		}
	}
	r.nextID++
	req.ID = r.nextID
	r.items[req.ID] = clone(req)
	return nil
}

// Get returns a copy of the stored request.
func (r *Repository) Get(_ context.Context, id int64) (*certification.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[id]
	if !ok {
		return nil, certification.ErrNotFound
	}
	return clone(req), nil
}

// List returns matching requests ordered by id.
func (r *Repository) List(_ context.Context, filter certification.ListFilter) ([]*certification.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*certification.Request, 0, len(r.items))
	for _, req := range r.items {
		if filter.Matches(req) {
			out = append(out, clone(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStatus writes approval flags when the stored status matches expected.
func (r *Repository) UpdateStatus(_ context.Context, req *certification.Request, expected certification.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[req.ID]
	if !ok {
		return certification.ErrNotFound
	}
	if stored.Status() != expected {
		return certification.ErrConcurrentUpdate
	}
	stored.Approved = req.Approved
	stored.Revoked = req.Revoked
	stored.ApprovedAt = req.ApprovedAt
	stored.RevokedAt = req.RevokedAt
	stored.UpdatedAt = req.UpdatedAt
	return nil
}

// SetIssued links the minted certificate and clears any issuance error.
func (r *Repository) SetIssued(_ context.Context, id, certificateID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return certification.ErrNotFound
	}
	stored.IssuedCertificateID = certificateID
	stored.IssuanceError = ""
	stored.UpdatedAt = at.UTC()
	return nil
}

// Delete removes a pending request. Approved or revoked requests are
// reported as not found.
func (r *Repository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok || stored.Status() != certification.StatusPending {
		return certification.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

// SetIssuanceError records the last issuer failure.
func (r *Repository) SetIssuanceError(_ context.Context, id int64, message string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return certification.ErrNotFound
	}
	stored.IssuanceError = message
	stored.UpdatedAt = at.UTC()
	return nil
}

func clone(req *certification.Request) *certification.Request {
	out := *req
	if req.Energy != nil {
		out.Energy = new(big.Int).Set(req.Energy)
	}
	out.Files = append([]string(nil), req.Files...)
	return &out
}
