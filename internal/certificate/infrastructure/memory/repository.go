package memory

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"

	certificate "irec-issuer/internal/certificate/domain"
)

// Repository is an in-memory certificate store.
type Repository struct {
	mu    sync.RWMutex
	items map[int64]*certificate.Certificate
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{items: make(map[int64]*certificate.Certificate)}
}

// Save stores c unless the id is already present.
func (r *Repository) Save(_ context.Context, c *certificate.Certificate) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[c.ID]; ok {
		return nil
	}
	r.items[c.ID] = clone(c)
	return nil
}

// Get returns a copy of the certificate.
func (r *Repository) Get(_ context.Context, id int64) (*certificate.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return nil, certificate.ErrNotFound
	}
	return clone(c), nil
}

// List returns certificates held by owner ordered by id.
func (r *Repository) List(_ context.Context, owner string) ([]*certificate.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*certificate.Certificate, 0, len(r.items))
	for _, c := range r.items {
		if owner == "" || strings.EqualFold(c.Owner, owner) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(c *certificate.Certificate) *certificate.Certificate {
	out := *c
	if c.Energy.PublicVolume != nil {
		out.Energy.PublicVolume = new(big.Int).Set(c.Energy.PublicVolume)
	}
	if c.Energy.PrivateVolume != nil {
		out.Energy.PrivateVolume = new(big.Int).Set(c.Energy.PrivateVolume)
	}
	return &out
}
