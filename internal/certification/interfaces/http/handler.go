package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apihttp "irec-issuer/internal/api/http"
	"irec-issuer/internal/audit"
	"irec-issuer/internal/auth"
	certapp "irec-issuer/internal/certification/application"
	certification "irec-issuer/internal/certification/domain"
	"irec-issuer/internal/observability/metrics"
)

// Handler provides certification request HTTP endpoints.
type Handler struct {
	service     *certapp.Service
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *certapp.Service, auditLogger audit.Logger, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("certification handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

// Register mounts /irec/certification-request routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/irec/certification-request", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/export.xlsx", h.exportXLSX)
		r.Get("/{id}", h.get)
		r.Put("/{id}/approve", h.approve)
		r.Put("/{id}/revoke", h.revoke)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req certapp.CreateRequest
	if err := apihttp.DecodeJSON(r, &req); err != nil {
		apihttp.WriteError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	dto, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.audit(r, "certification_request.create", dto)
	apihttp.WriteJSON(w, http.StatusCreated, dto)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), listQuery(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dto, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, dto)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dto, err := h.service.Approve(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.audit(r, "certification_request.approve", dto)
	apihttp.WriteJSON(w, http.StatusOK, dto)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dto, err := h.service.Revoke(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.audit(r, "certification_request.revoke", dto)
	apihttp.WriteJSON(w, http.StatusOK, dto)
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("xlsx", result, time.Since(start))
	}()

	requests, err := h.service.ListRequests(r.Context(), listQuery(r))
	if err != nil {
		result = metrics.ResultError
		h.respondError(w, err)
		return
	}
	data, err := BuildRequestsXLSX(requests)
	if err != nil {
		result = metrics.ResultError
		h.respondError(w, err)
		return
	}
	apihttp.WriteFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "certification-requests.xlsx", data)
}

func (h *Handler) audit(r *http.Request, action string, dto certapp.RequestDTO) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"deviceId": dto.DeviceID,
		"owner":    dto.Owner,
		"status":   dto.Status,
	})
	err := h.auditLogger.Log(r.Context(), audit.FromRequest(r, audit.Entry{
		Actor:        auth.ActorFromContext(r.Context()),
		Address:      auth.AddressFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "certification_request",
		ResourceID:   strconv.FormatInt(dto.ID, 10),
		Metadata:     payload,
	}))
	if err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case certification.IsValidation(err), certification.IsTransition(err):
		apihttp.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, certification.ErrConflictingPeriod), errors.Is(err, certification.ErrConcurrentUpdate):
		apihttp.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, certification.ErrNotFound):
		apihttp.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		apihttp.WriteError(w, http.StatusForbidden, "forbidden")
	default:
		h.logger.Error("certification request failed", zap.Error(err))
		apihttp.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func listQuery(r *http.Request) certapp.ListQuery {
	q := r.URL.Query()
	return certapp.ListQuery{
		Owner:    q.Get("owner"),
		DeviceID: q.Get("device_id"),
		Status:   q.Get("status"),
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		apihttp.WriteError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
