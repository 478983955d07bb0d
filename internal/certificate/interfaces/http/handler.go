package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apihttp "irec-issuer/internal/api/http"
	"irec-issuer/internal/auth"
	certificateapp "irec-issuer/internal/certificate/application"
	certificate "irec-issuer/internal/certificate/domain"
	"irec-issuer/internal/observability/metrics"
)

// Handler provides certificate HTTP endpoints.
type Handler struct {
	service *certificateapp.Service
	logger  *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *certificateapp.Service, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("certificate handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}, nil
}

// Register mounts /certificate routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/certificate", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/export.pdf", h.exportPDF)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
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

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport("pdf", result, time.Since(start))
	}()

	id, ok := pathID(w, r)
	if !ok {
		result = metrics.ResultError
		return
	}
	cert, err := h.service.Find(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		h.respondError(w, err)
		return
	}
	view := certificateapp.View(cert, auth.AddressFromContext(r.Context()), auth.IsPrivileged(r.Context()))
	data, err := BuildCertificatePDF(view)
	if err != nil {
		result = metrics.ResultError
		h.respondError(w, err)
		return
	}
	apihttp.WriteFile(w, "application/pdf", fmt.Sprintf("certificate-%d.pdf", id), data)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, certificate.ErrNotFound):
		apihttp.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		apihttp.WriteError(w, http.StatusForbidden, "forbidden")
	default:
		h.logger.Error("certificate request failed", zap.Error(err))
		apihttp.WriteError(w, http.StatusInternalServerError, "internal error")
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
