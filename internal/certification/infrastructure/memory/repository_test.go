package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certification "irec-issuer/internal/certification/domain"
)

func newRequest(t *testing.T, from, to int64) *certification.Request {
	t.Helper()
	req, err := certification.NewRequest(certification.NewRequestParams{
		DeviceID: "device-1",
		Owner:    "0x1111111111111111111111111111111111111111",
		FromTime: time.Unix(from, 0),
		ToTime:   time.Unix(to, 0),
		Energy:   "100",
	}, time.Now())
	require.NoError(t, err)
	return req
}

func TestRepository_CreateRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	first := newRequest(t, 100, 200)
	require.NoError(t, repo.Create(ctx, first))
	assert.Equal(t, int64(1), first.ID)

	assert.ErrorIs(t, repo.Create(ctx, newRequest(t, 150, 250)), certification.ErrConflictingPeriod)
	require.NoError(t, repo.Create(ctx, newRequest(t, 200, 300)))

	first.Revoked = true
	require.NoError(t, repo.UpdateStatus(ctx, first, certification.StatusPending))
	require.NoError(t, repo.Create(ctx, newRequest(t, 150, 199)))
}

func TestRepository_UpdateStatusConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	req := newRequest(t, 100, 200)
	require.NoError(t, repo.Create(ctx, req))

	require.NoError(t, req.Approve(time.Now()))
	require.NoError(t, repo.UpdateStatus(ctx, req, certification.StatusPending))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, req, certification.StatusPending), certification.ErrConcurrentUpdate)

	stored, err := repo.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, certification.StatusApproved, stored.Status())

	_, err = repo.Get(ctx, 99)
	assert.ErrorIs(t, err, certification.ErrNotFound)
}

func TestRepository_Issuance(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()
	req := newRequest(t, 100, 200)
	require.NoError(t, repo.Create(ctx, req))

	require.NoError(t, repo.SetIssuanceError(ctx, req.ID, "issuer down", time.Now()))
	stored, _ := repo.Get(ctx, req.ID)
	assert.Equal(t, "issuer down", stored.IssuanceError)

	require.NoError(t, repo.SetIssued(ctx, req.ID, 42, time.Now()))
	stored, _ = repo.Get(ctx, req.ID)
	assert.Equal(t, int64(42), stored.IssuedCertificateID)
	assert.Empty(t, stored.IssuanceError)

	list, err := repo.List(ctx, certification.ListFilter{DeviceID: "device-1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRepository_DeleteOnlyPending(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository()

	pending := newRequest(t, 100, 200)
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Delete(ctx, pending.ID))
	_, err := repo.Get(ctx, pending.ID)
	assert.ErrorIs(t, err, certification.ErrNotFound)

	approved := newRequest(t, 100, 200)
	require.NoError(t, repo.Create(ctx, approved))
	approved.Approved = true
	require.NoError(t, repo.UpdateStatus(ctx, approved, certification.StatusPending))
	assert.ErrorIs(t, repo.Delete(ctx, approved.ID), certification.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, 999), certification.ErrNotFound)
}
