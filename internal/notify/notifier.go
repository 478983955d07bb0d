// Package notify tells operators about issuance outcomes through a chat
// webhook.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	certevents "irec-issuer/internal/certification/application/events"
)

// ConsumerName identifies the notifier in processed_events.
const ConsumerName = "issuance-notifier"

const (
	KindIssued = "issued"
	KindFailed = "failed"
)

// Message describes one issuance outcome.
type Message struct {
	Kind          string
	RequestID     int64
	CertificateID int64
	DeviceID      string
	Owner         string
	TxHash        string
	Error         string
	OccurredAt    time.Time
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, content string) error
}

// IssuanceNotifier renders issuance events and hands them to a Sender. A
// send error is returned so the outbox retries the notification.
type IssuanceNotifier struct {
	sender   Sender
	template *Template
	logger   *zap.Logger
}

// NewIssuanceNotifier constructs a notifier. A nil template uses
// DefaultTemplate.
func NewIssuanceNotifier(sender Sender, template *Template, logger *zap.Logger) (*IssuanceNotifier, error) {
	if sender == nil {
		return nil, errors.New("issuance notifier: nil sender")
	}
	if template == nil {
		var err error
		if template, err = NewTemplate(""); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssuanceNotifier{sender: sender, template: template, logger: logger}, nil
}

// HandleIssued notifies about a minted certificate.
func (n *IssuanceNotifier) HandleIssued(ctx context.Context, event any) error {
	e, ok := event.(certevents.CertificateIssued)
	if !ok {
		return nil
	}
	return n.notify(ctx, Message{
		Kind:          KindIssued,
		RequestID:     e.RequestID,
		CertificateID: e.CertificateID,
		DeviceID:      e.DeviceID,
		Owner:         e.Owner,
		TxHash:        e.TxHash,
		OccurredAt:    e.OccurredAt,
	})
}

// HandleFailed notifies about a failed issuer call.
func (n *IssuanceNotifier) HandleFailed(ctx context.Context, event any) error {
	e, ok := event.(certevents.CertificateIssuanceFailed)
	if !ok {
		return nil
	}
	return n.notify(ctx, Message{
		Kind:       KindFailed,
		RequestID:  e.RequestID,
		DeviceID:   e.DeviceID,
		Error:      e.Error,
		OccurredAt: e.OccurredAt,
	})
}

func (n *IssuanceNotifier) notify(ctx context.Context, msg Message) error {
	content, err := n.template.Render(msg)
	if err != nil {
		n.logger.Error("render issuance notification", zap.Int64("request_id", msg.RequestID), zap.Error(err))
		return nil
	}
	if err := n.sender.Send(ctx, content); err != nil {
		n.logger.Warn("issuance notification failed",
			zap.String("kind", msg.Kind),
			zap.Int64("request_id", msg.RequestID),
			zap.Error(err),
		)
		return err
	}
	return nil
}
