package interfaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	certificate "irec-issuer/internal/certificate/domain"
	certevents "irec-issuer/internal/certification/application/events"
	certification "irec-issuer/internal/certification/domain"
	"irec-issuer/internal/eventing"
	"irec-issuer/internal/issuer"
	"irec-issuer/internal/observability/metrics"
)

// IssuerConsumerName identifies the consumer in processed_events.
const IssuerConsumerName = "certificate-issuer"

// IssuerAPI mints certificates on chain.
type IssuerAPI interface {
	Issue(ctx context.Context, req issuer.IssueRequest) (issuer.Issued, error)
	FindByRequest(ctx context.Context, requestID int64) (issuer.Issued, bool, error)
}

// EventPublisher writes domain events to the outbox.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// IssuerConsumer mints a certificate for every approved request.
type IssuerConsumer struct {
	requests     certification.Repository
	certificates certificate.Repository
	issuer       IssuerAPI
	publisher    EventPublisher
	logger       *zap.Logger
	now          func() time.Time
}

// NewIssuerConsumer constructs a consumer.
func NewIssuerConsumer(requests certification.Repository, certificates certificate.Repository, api IssuerAPI, publisher EventPublisher, logger *zap.Logger) (*IssuerConsumer, error) {
	if requests == nil || certificates == nil || api == nil || publisher == nil {
		return nil, errors.New("issuer consumer: nil dependency")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssuerConsumer{
		requests:     requests,
		certificates: certificates,
		issuer:       api,
		publisher:    publisher,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// HandleApproved handles CertificationRequestApproved events. A returned error
// leaves the outbox record failed so the worker retries it.
func (c *IssuerConsumer) HandleApproved(ctx context.Context, event any) error {
	evt, ok := event.(certevents.CertificationRequestApproved)
	if !ok {
		if ptr, ok := event.(*certevents.CertificationRequestApproved); ok && ptr != nil {
			evt = *ptr
		} else {
			return nil
		}
	}
	logger := c.logger.With(zap.Int64("request_id", evt.RequestID))

	req, err := c.requests.Get(ctx, evt.RequestID)
	if errors.Is(err, certification.ErrNotFound) {
		logger.Warn("approved request missing, skipping issuance")
		metrics.IncIssuance(metrics.IssuanceSkipped)
		return nil
	}
	if err != nil {
		return err
	}
	if !req.Approved || req.Revoked {
		logger.Warn("request not approved, skipping issuance", zap.String("status", string(req.Status())))
		metrics.IncIssuance(metrics.IssuanceSkipped)
		return nil
	}
	if req.IssuedCertificateID != 0 {
		return c.republishIssued(ctx, logger, req.IssuedCertificateID)
	}

	issued, err := c.issue(ctx, req)
	if err != nil {
		logger.Error("certificate issuance failed", zap.Error(err))
		metrics.IncIssuance(metrics.IssuanceFailed)
		if recErr := c.requests.SetIssuanceError(ctx, req.ID, err.Error(), c.now()); recErr != nil {
			logger.Error("record issuance error", zap.Error(recErr))
		}
		if pubErr := c.publishFailed(ctx, req, err.Error()); pubErr != nil {
			logger.Error("publish issuance failure", zap.Error(pubErr))
		}
		return fmt.Errorf("issue certificate for request %d: %w", req.ID, err)
	}

	public, private := req.CertificateVolumes()
	cert := &certificate.Certificate{
		ID:                     issued.ID,
		DeviceID:               req.DeviceID,
		GenerationStartTime:    req.FromTime,
		GenerationEndTime:      req.ToTime,
		CreationTime:           issued.CreationTime(),
		CreationBlockHash:      issued.BlockHash,
		TxHash:                 issued.TxHash,
		IssuedPrivately:        req.IsPrivate,
		Owner:                  req.Owner,
		Energy:                 certificate.Energy{PublicVolume: public, PrivateVolume: private},
		CertificationRequestID: req.ID,
	}
	if cert.CreationTime.IsZero() {
		cert.CreationTime = c.now().UTC()
	}
	if err := c.certificates.Save(ctx, cert); err != nil {
		return err
	}
	if err := c.requests.SetIssued(ctx, req.ID, cert.ID, c.now()); err != nil {
		return err
	}
	metrics.IncIssuance(metrics.IssuanceIssued)
	logger.Info("certificate issued", zap.Int64("certificate_id", cert.ID), zap.String("tx_hash", cert.TxHash))
	return c.publishIssued(ctx, cert)
}

// issue calls the issuer. A conflict means an earlier attempt minted the
// certificate but did not record it, so the existing one is fetched instead.
func (c *IssuerConsumer) issue(ctx context.Context, req *certification.Request) (issuer.Issued, error) {
	issued, err := c.issuer.Issue(ctx, issuer.IssueRequest{
		To:        req.Owner,
		DeviceID:  req.DeviceID,
		FromTime:  req.FromTime.Unix(),
		ToTime:    req.ToTime.Unix(),
		Energy:    certification.FormatEnergy(req.Energy),
		IsPrivate: req.IsPrivate,
		RequestID: req.ID,
	})
	if !errors.Is(err, issuer.ErrAlreadyIssued) {
		return issued, err
	}
	existing, found, findErr := c.issuer.FindByRequest(ctx, req.ID)
	if findErr != nil {
		return issuer.Issued{}, errors.Join(err, findErr)
	}
	if !found {
		return issuer.Issued{}, err
	}
	return existing, nil
}

// republishIssued covers a delivery that linked the certificate but failed to
// store CertificateIssued. The event id is stable, so a copy that did reach
// the outbox is not duplicated.
func (c *IssuerConsumer) republishIssued(ctx context.Context, logger *zap.Logger, certificateID int64) error {
	metrics.IncIssuance(metrics.IssuanceSkipped)
	cert, err := c.certificates.Get(ctx, certificateID)
	if errors.Is(err, certificate.ErrNotFound) {
		logger.Warn("linked certificate missing", zap.Int64("certificate_id", certificateID))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Debug("certificate already linked", zap.Int64("certificate_id", certificateID))
	return c.publishIssued(ctx, cert)
}

func (c *IssuerConsumer) publishIssued(ctx context.Context, cert *certificate.Certificate) error {
	eventID := fmt.Sprintf("certificate-issued-%d", cert.ID)
	issued := certevents.CertificateIssued{
		EventID:       eventID,
		CertificateID: cert.ID,
		RequestID:     cert.CertificationRequestID,
		DeviceID:      cert.DeviceID,
		Owner:         cert.Owner,
		TxHash:        cert.TxHash,
		OccurredAt:    c.now().UTC(),
	}
	ctx = eventing.WithEventID(ctx, eventID)
	return c.publisher.Publish(ctx, issued)
}

func (c *IssuerConsumer) publishFailed(ctx context.Context, req *certification.Request, message string) error {
	// One failure event per request: retries of the same request collapse in
	// the outbox.
	eventID := certevents.TransitionEventID("issuance-failed", req.ID)
	failed := certevents.CertificateIssuanceFailed{
		EventID:    eventID,
		RequestID:  req.ID,
		DeviceID:   req.DeviceID,
		Error:      message,
		OccurredAt: c.now().UTC(),
	}
	ctx = eventing.WithEventID(ctx, eventID)
	return c.publisher.Publish(ctx, failed)
}
