package events

import (
	"strconv"
	"time"

	"irec-issuer/internal/eventing"
)

// CertificationRequestCreated is emitted when a request is submitted.
type CertificationRequestCreated struct {
	EventID    string    `json:"event_id"`
	RequestID  int64     `json:"request_id"`
	DeviceID   string    `json:"device_id"`
	Owner      string    `json:"owner"`
	FromTime   time.Time `json:"from_time"`
	ToTime     time.Time `json:"to_time"`
	Energy     string    `json:"energy"`
	IsPrivate  bool      `json:"is_private"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CertificationRequestApproved is emitted when an issuer approves a request.
// The issuance consumer mints the certificate from it.
type CertificationRequestApproved struct {
	EventID    string    `json:"event_id"`
	RequestID  int64     `json:"request_id"`
	DeviceID   string    `json:"device_id"`
	Owner      string    `json:"owner"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CertificationRequestRevoked is emitted when an issuer revokes a request.
type CertificationRequestRevoked struct {
	EventID    string    `json:"event_id"`
	RequestID  int64     `json:"request_id"`
	DeviceID   string    `json:"device_id"`
	Owner      string    `json:"owner"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CertificateIssued is emitted once the issuer has minted a certificate.
type CertificateIssued struct {
	EventID       string    `json:"event_id"`
	CertificateID int64     `json:"certificate_id"`
	RequestID     int64     `json:"request_id"`
	DeviceID      string    `json:"device_id"`
	Owner         string    `json:"owner"`
	TxHash        string    `json:"tx_hash"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CertificateIssuanceFailed is emitted when the issuer call fails.
type CertificateIssuanceFailed struct {
	EventID    string    `json:"event_id"`
	RequestID  int64     `json:"request_id"`
	DeviceID   string    `json:"device_id"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func requestMeta(eventID string, requestID int64, at time.Time) eventing.Meta {
	return eventing.Meta{
		EventID:     eventID,
		AggregateID: strconv.FormatInt(requestID, 10),
		OccurredAt:  at,
	}
}

func (e CertificationRequestCreated) Describe() eventing.Meta {
	return requestMeta(e.EventID, e.RequestID, e.OccurredAt)
}

func (e CertificationRequestApproved) Describe() eventing.Meta {
	return requestMeta(e.EventID, e.RequestID, e.OccurredAt)
}

func (e CertificationRequestRevoked) Describe() eventing.Meta {
	return requestMeta(e.EventID, e.RequestID, e.OccurredAt)
}

// Describe keys issued certificates by the request they settle, so the whole
// lifecycle of a request shares one aggregate id.
func (e CertificateIssued) Describe() eventing.Meta {
	return requestMeta(e.EventID, e.RequestID, e.OccurredAt)
}

func (e CertificateIssuanceFailed) Describe() eventing.Meta {
	return requestMeta(e.EventID, e.RequestID, e.OccurredAt)
}

// All returns a sample of every event type for registry registration.
func All() []any {
	return []any{
		CertificationRequestCreated{},
		CertificationRequestApproved{},
		CertificationRequestRevoked{},
		CertificateIssued{},
		CertificateIssuanceFailed{},
	}
}

// TransitionEventID derives a stable event id for a one-time request
// transition so duplicate publishes collapse in the outbox.
func TransitionEventID(kind string, requestID int64) string {
	return "certification-request-" + kind + "-" + strconv.FormatInt(requestID, 10)
}
