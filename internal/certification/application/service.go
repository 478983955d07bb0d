package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"irec-issuer/internal/auth"
	certevents "irec-issuer/internal/certification/application/events"
	certification "irec-issuer/internal/certification/domain"
	"irec-issuer/internal/eventing"
	"irec-issuer/internal/observability/metrics"
)

// EventPublisher writes domain events to the outbox.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// CreateRequest is the POST body for a certification request. Times are unix
// seconds and energy is a decimal Wh string.
type CreateRequest struct {
	DeviceID  string   `json:"deviceId"`
	Owner     string   `json:"owner,omitempty"`
	FromTime  int64    `json:"fromTime"`
	ToTime    int64    `json:"toTime"`
	Energy    string   `json:"energy"`
	Files     []string `json:"files"`
	IsPrivate bool     `json:"isPrivate"`
}

// RequestDTO is the wire representation of a certification request.
type RequestDTO struct {
	ID                  int64    `json:"id"`
	DeviceID            string   `json:"deviceId"`
	Owner               string   `json:"owner"`
	FromTime            int64    `json:"fromTime"`
	ToTime              int64    `json:"toTime"`
	Energy              string   `json:"energy"`
	Files               []string `json:"files"`
	Approved            bool     `json:"approved"`
	Revoked             bool     `json:"revoked"`
	IsPrivate           bool     `json:"isPrivate"`
	Status              string   `json:"status"`
	IssuedCertificateID *int64   `json:"issuedCertificateId"`
	IssuanceError       string   `json:"issuanceError,omitempty"`
	Created             int64    `json:"created"`
}

// ToDTO maps a domain request to its wire form.
func ToDTO(req *certification.Request) RequestDTO {
	files := req.Files
	if files == nil {
		files = []string{}
	}
	dto := RequestDTO{
		ID:            req.ID,
		DeviceID:      req.DeviceID,
		Owner:         req.Owner,
		FromTime:      req.FromTime.Unix(),
		ToTime:        req.ToTime.Unix(),
		Energy:        certification.FormatEnergy(req.Energy),
		Files:         files,
		Approved:      req.Approved,
		Revoked:       req.Revoked,
		IsPrivate:     req.IsPrivate,
		Status:        string(req.Status()),
		IssuanceError: req.IssuanceError,
		Created:       req.CreatedAt.Unix(),
	}
	if req.IssuedCertificateID != 0 {
		id := req.IssuedCertificateID
		dto.IssuedCertificateID = &id
	}
	return dto
}

// ListQuery is the caller-supplied listing filter.
type ListQuery struct {
	Owner    string
	DeviceID string
	Status   string
}

// Service handles certification request workflows.
type Service struct {
	repo      certification.Repository
	publisher EventPublisher
	now       func() time.Time
}

// NewService constructs a certification request service.
func NewService(repo certification.Repository, publisher EventPublisher) (*Service, error) {
	if repo == nil {
		return nil, errors.New("certification service: nil repo")
	}
	if publisher == nil {
		return nil, errors.New("certification service: nil publisher")
	}
	return &Service{repo: repo, publisher: publisher, now: time.Now}, nil
}

// Create validates and stores a request, then publishes CertificationRequestCreated.
func (s *Service) Create(ctx context.Context, in CreateRequest) (dto RequestDTO, err error) {
	defer s.observe("create", time.Now(), &err)

	owner, err := resolveOwner(ctx, in.Owner)
	if err != nil {
		return RequestDTO{}, err
	}
	req, err := certification.NewRequest(certification.NewRequestParams{
		DeviceID:  in.DeviceID,
		Owner:     owner,
		FromTime:  unixTime(in.FromTime),
		ToTime:    unixTime(in.ToTime),
		Energy:    in.Energy,
		Files:     in.Files,
		IsPrivate: in.IsPrivate,
	}, s.now())
	if err != nil {
		return RequestDTO{}, err
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return RequestDTO{}, err
	}

	event := certevents.CertificationRequestCreated{
		EventID:    certevents.TransitionEventID("created", req.ID),
		RequestID:  req.ID,
		DeviceID:   req.DeviceID,
		Owner:      req.Owner,
		FromTime:   req.FromTime,
		ToTime:     req.ToTime,
		Energy:     certification.FormatEnergy(req.Energy),
		IsPrivate:  req.IsPrivate,
		OccurredAt: req.CreatedAt,
	}
	if err := s.publish(ctx, event.EventID, event); err != nil {
		if undoErr := s.repo.Delete(ctx, req.ID); undoErr != nil {
			return RequestDTO{}, errors.Join(err, fmt.Errorf("certification: undo create: %w", undoErr))
		}
		return RequestDTO{}, err
	}
	return ToDTO(req), nil
}

// List returns requests visible to the caller.
func (s *Service) List(ctx context.Context, query ListQuery) (items []RequestDTO, err error) {
	defer s.observe("list", time.Now(), &err)

	requests, err := s.listDomain(ctx, query)
	if err != nil {
		return nil, err
	}
	items = make([]RequestDTO, 0, len(requests))
	for _, req := range requests {
		items = append(items, ToDTO(req))
	}
	return items, nil
}

// ListRequests is List without the DTO mapping, for exports.
func (s *Service) ListRequests(ctx context.Context, query ListQuery) ([]*certification.Request, error) {
	return s.listDomain(ctx, query)
}

func (s *Service) listDomain(ctx context.Context, query ListQuery) ([]*certification.Request, error) {
	filter := certification.ListFilter{DeviceID: strings.TrimSpace(query.DeviceID)}
	if query.Status != "" {
		status, ok := certification.ParseStatus(query.Status)
		if !ok {
			return nil, fmt.Errorf("%w: %q", certification.ErrInvalidStatus, query.Status)
		}
		filter.Status = status
	}
	if query.Owner != "" {
		owner, err := certification.NormalizeAddress(query.Owner)
		if err != nil {
			return nil, err
		}
		filter.Owner = owner
	}
	if !auth.IsPrivileged(ctx) {
		caller := auth.AddressFromContext(ctx)
		if filter.Owner != "" && filter.Owner != caller {
			return nil, auth.ErrForbidden
		}
		filter.Owner = caller
	}
	return s.repo.List(ctx, filter)
}

// Get returns a single request.
func (s *Service) Get(ctx context.Context, id int64) (dto RequestDTO, err error) {
	defer s.observe("get", time.Now(), &err)

	req, err := s.load(ctx, id)
	if err != nil {
		return RequestDTO{}, err
	}
	return ToDTO(req), nil
}

// Approve moves a pending request to approved and queues certificate issuance.
func (s *Service) Approve(ctx context.Context, id int64) (dto RequestDTO, err error) {
	defer s.observe("approve", time.Now(), &err)

	req, err := s.transition(ctx, id, "approved",
		func(r *certification.Request, now time.Time) error { return r.Approve(now) },
		func(r *certification.Request) { r.Approved = false; r.ApprovedAt = time.Time{} },
		func(r *certification.Request) any {
			return certevents.CertificationRequestApproved{
				EventID:    certevents.TransitionEventID("approved", r.ID),
				RequestID:  r.ID,
				DeviceID:   r.DeviceID,
				Owner:      r.Owner,
				OccurredAt: r.ApprovedAt,
			}
		},
	)
	if err != nil {
		return RequestDTO{}, err
	}
	return ToDTO(req), nil
}

// Revoke moves a pending request to revoked.
func (s *Service) Revoke(ctx context.Context, id int64) (dto RequestDTO, err error) {
	defer s.observe("revoke", time.Now(), &err)

	req, err := s.transition(ctx, id, "revoked",
		func(r *certification.Request, now time.Time) error { return r.Revoke(now) },
		func(r *certification.Request) { r.Revoked = false; r.RevokedAt = time.Time{} },
		func(r *certification.Request) any {
			return certevents.CertificationRequestRevoked{
				EventID:    certevents.TransitionEventID("revoked", r.ID),
				RequestID:  r.ID,
				DeviceID:   r.DeviceID,
				Owner:      r.Owner,
				OccurredAt: r.RevokedAt,
			}
		},
	)
	if err != nil {
		return RequestDTO{}, err
	}
	return ToDTO(req), nil
}

// transition applies a one-way state change with a conditional update, then
// publishes the matching event. A failed publish reverts the stored state.
func (s *Service) transition(
	ctx context.Context,
	id int64,
	kind string,
	apply func(*certification.Request, time.Time) error,
	revert func(*certification.Request),
	build func(*certification.Request) any,
) (*certification.Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(req, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, req, certification.StatusPending); err != nil {
		if !errors.Is(err, certification.ErrConcurrentUpdate) {
			return nil, err
		}
		// Lost the race; report what the winner did.
		current, getErr := s.repo.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if applyErr := apply(current, s.now()); applyErr != nil {
			return nil, applyErr
		}
		return nil, err
	}

	event := build(req)
	if err := s.publish(ctx, certevents.TransitionEventID(kind, req.ID), event); err != nil {
		reverted := *req
		revert(&reverted)
		if undoErr := s.repo.UpdateStatus(ctx, &reverted, req.Status()); undoErr != nil {
			return nil, errors.Join(err, fmt.Errorf("certification: revert %s: %w", kind, undoErr))
		}
		return nil, err
	}
	return req, nil
}

func (s *Service) load(ctx context.Context, id int64) (*certification.Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.IsPrivileged(ctx) && req.Owner != auth.AddressFromContext(ctx) {
		return nil, auth.ErrForbidden
	}
	return req, nil
}

func (s *Service) publish(ctx context.Context, eventID string, event any) error {
	ctx = eventing.WithEventID(ctx, eventID)
	if actor := auth.ActorFromContext(ctx); actor != "" {
		ctx = eventing.WithActor(ctx, actor)
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("certification: publish: %w", err)
	}
	return nil
}

func (s *Service) observe(operation string, start time.Time, errp *error) {
	result := metrics.ResultSuccess
	if errp != nil && *errp != nil {
		result = metrics.ResultError
	}
	metrics.ObserveRequestOperation(operation, result, time.Since(start))
}

// resolveOwner picks the request owner. Callers below issuer can only submit
// for their own address.
func resolveOwner(ctx context.Context, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if auth.IsPrivileged(ctx) {
		if requested == "" {
			return auth.AddressFromContext(ctx), nil
		}
		return requested, nil
	}
	caller := auth.AddressFromContext(ctx)
	if requested == "" {
		return caller, nil
	}
	if !strings.EqualFold(requested, caller) {
		return "", auth.ErrForbidden
	}
	return requested, nil
}

func unixTime(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
