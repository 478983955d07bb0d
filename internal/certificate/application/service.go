package application

import (
	"context"
	"errors"
	"time"

	"irec-issuer/internal/auth"
	certificate "irec-issuer/internal/certificate/domain"
	"irec-issuer/internal/observability/metrics"
)

// EnergyDTO is the certified volume as decimal Wh strings.
type EnergyDTO struct {
	PublicVolume  string `json:"publicVolume"`
	PrivateVolume string `json:"privateVolume"`
}

// CertificateDTO is the wire representation of a certificate.
type CertificateDTO struct {
	ID                     int64     `json:"id"`
	DeviceID               string    `json:"deviceId"`
	GenerationStartTime    int64     `json:"generationStartTime"`
	GenerationEndTime      int64     `json:"generationEndTime"`
	CreationTime           int64     `json:"creationTime"`
	CreationBlockHash      string    `json:"creationBlockHash"`
	TxHash                 string    `json:"txHash"`
	IssuedPrivately        bool      `json:"issuedPrivately"`
	IsOwned                bool      `json:"isOwned"`
	Owner                  string    `json:"owner"`
	Energy                 EnergyDTO `json:"energy"`
	CertificationRequestID int64     `json:"certificationRequestId"`
}

// View maps a certificate to the caller's view of it.
func View(c *certificate.Certificate, caller string, privileged bool) CertificateDTO {
	energy := c.VisibleEnergy(caller, privileged)
	return CertificateDTO{
		ID:                     c.ID,
		DeviceID:               c.DeviceID,
		GenerationStartTime:    c.GenerationStartTime.Unix(),
		GenerationEndTime:      c.GenerationEndTime.Unix(),
		CreationTime:           c.CreationTime.Unix(),
		CreationBlockHash:      c.CreationBlockHash,
		TxHash:                 c.TxHash,
		IssuedPrivately:        c.IssuedPrivately,
		IsOwned:                c.IsOwnedBy(caller),
		Owner:                  c.Owner,
		Energy:                 EnergyDTO{PublicVolume: energy.PublicVolume.String(), PrivateVolume: energy.PrivateVolume.String()},
		CertificationRequestID: c.CertificationRequestID,
	}
}

// Service serves certificate queries.
type Service struct {
	repo certificate.Repository
}

// NewService constructs a certificate service.
func NewService(repo certificate.Repository) (*Service, error) {
	if repo == nil {
		return nil, errors.New("certificate service: nil repo")
	}
	return &Service{repo: repo}, nil
}

// Get returns a certificate as seen by the caller.
func (s *Service) Get(ctx context.Context, id int64) (CertificateDTO, error) {
	c, err := s.Find(ctx, id)
	if err != nil {
		return CertificateDTO{}, err
	}
	return View(c, auth.AddressFromContext(ctx), auth.IsPrivileged(ctx)), nil
}

// Find returns the domain certificate, for rendering exports.
func (s *Service) Find(ctx context.Context, id int64) (c *certificate.Certificate, err error) {
	start := time.Now()
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObserveRequestOperation("certificate_get", result, time.Since(start))
	}()
	return s.repo.Get(ctx, id)
}

// List returns the caller's certificates. Issuers and admins see all.
func (s *Service) List(ctx context.Context) ([]CertificateDTO, error) {
	caller := auth.AddressFromContext(ctx)
	privileged := auth.IsPrivileged(ctx)
	owner := caller
	if privileged {
		owner = ""
	}
	if owner == "" && !privileged {
		return []CertificateDTO{}, nil
	}
	items, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]CertificateDTO, 0, len(items))
	for _, c := range items {
		out = append(out, View(c, caller, privileged))
	}
	return out, nil
}
