package certification

import (
	"math/big"
	"strings"
	"time"
)

// Status is the derived lifecycle state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRevoked  Status = "revoked"
)

// ParseStatus validates a status filter value.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(value)) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusRevoked:
		return StatusRevoked, true
	default:
		return "", false
	}
}

// Request is a claim that a device generated Energy Wh within [FromTime, ToTime).
type Request struct {
	ID                  int64
	DeviceID            string
	Owner               string
	FromTime            time.Time
	ToTime              time.Time
	Energy              *big.Int
	Files               []string
	Approved            bool
	Revoked             bool
	IsPrivate           bool
	IssuedCertificateID int64
	IssuanceError       string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ApprovedAt          time.Time
	RevokedAt           time.Time
}

// NewRequestParams carries unvalidated request input.
type NewRequestParams struct {
	DeviceID  string
	Owner     string
	FromTime  time.Time
	ToTime    time.Time
	Energy    string
	Files     []string
	IsPrivate bool
}

// NewRequest validates params and returns a pending request.
func NewRequest(params NewRequestParams, now time.Time) (*Request, error) {
	deviceID := strings.TrimSpace(params.DeviceID)
	if deviceID == "" {
		return nil, ErrInvalidDevice
	}
	owner, err := NormalizeAddress(params.Owner)
	if err != nil {
		return nil, err
	}
	if params.FromTime.IsZero() || params.ToTime.IsZero() || !params.FromTime.Before(params.ToTime) {
		return nil, ErrInvalidPeriod
	}
	energy, err := ParseEnergy(params.Energy)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(params.Files))
	for _, file := range params.Files {
		if file = strings.TrimSpace(file); file != "" {
			files = append(files, file)
		}
	}
	now = now.UTC()
	return &Request{
		DeviceID:  deviceID,
		Owner:     owner,
		FromTime:  params.FromTime.UTC(),
		ToTime:    params.ToTime.UTC(),
		Energy:    energy,
		Files:     files,
		IsPrivate: params.IsPrivate,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Status derives the lifecycle state from the approval flags.
func (r *Request) Status() Status {
	switch {
	case r.Revoked:
		return StatusRevoked
	case r.Approved:
		return StatusApproved
	default:
		return StatusPending
	}
}

// Approve moves a pending request to approved.
func (r *Request) Approve(now time.Time) error {
	switch r.Status() {
	case StatusApproved:
		return ErrAlreadyApproved
	case StatusRevoked:
		return ErrAlreadyRevoked
	}
	now = now.UTC()
	r.Approved = true
	r.ApprovedAt = now
	r.UpdatedAt = now
	return nil
}

// Revoke moves a pending request to revoked. Approved requests already have a
// certificate in flight and cannot be revoked.
func (r *Request) Revoke(now time.Time) error {
	switch r.Status() {
	case StatusRevoked:
		return ErrAlreadyRevoked
	case StatusApproved:
		return ErrAlreadyApproved
	}
	now = now.UTC()
	r.Revoked = true
	r.RevokedAt = now
	r.UpdatedAt = now
	return nil
}

// Overlaps reports whether two live requests claim the same device, owner and
// part of the same period.
func (r *Request) Overlaps(other *Request) bool {
	if r == nil || other == nil {
		return false
	}
	if r.Revoked || other.Revoked {
		return false
	}
	if r.DeviceID != other.DeviceID || !strings.EqualFold(r.Owner, other.Owner) {
		return false
	}
	return PeriodsOverlap(r.FromTime, r.ToTime, other.FromTime, other.ToTime)
}

// PeriodsOverlap reports whether [aFrom, aTo) and [bFrom, bTo) intersect.
func PeriodsOverlap(aFrom, aTo, bFrom, bTo time.Time) bool {
	return aFrom.Before(bTo) && bFrom.Before(aTo)
}

// CertificateVolumes splits the energy into public and private volumes.
func (r *Request) CertificateVolumes() (public, private *big.Int) {
	energy := new(big.Int)
	if r.Energy != nil {
		energy.Set(r.Energy)
	}
	if r.IsPrivate {
		return new(big.Int), energy
	}
	return energy, new(big.Int)
}

// AwaitingIssuance reports whether an approved request still lacks a certificate.
func (r *Request) AwaitingIssuance() bool {
	return r.Approved && r.IssuedCertificateID == 0
}
