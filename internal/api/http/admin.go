package apihttp

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"irec-issuer/internal/audit"
	"irec-issuer/internal/auth"
	"irec-issuer/internal/eventing"
)

const (
	timeLayout       = time.RFC3339
	defaultListLimit = 50
	maxListLimit     = 500
)

// AdminHandler exposes outbox health and dead-letter recovery to admins.
type AdminHandler struct {
	outbox      eventing.OutboxInspector
	dlq         eventing.DeadLetterQueue
	auditLogger audit.Logger
	logger      *zap.Logger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(outbox eventing.OutboxInspector, dlq eventing.DeadLetterQueue, auditLogger audit.Logger, logger *zap.Logger) (*AdminHandler, error) {
	if outbox == nil || dlq == nil {
		return nil, errors.New("admin handler: nil outbox or dlq")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{outbox: outbox, dlq: dlq, auditLogger: auditLogger, logger: logger}, nil
}

// Register mounts the admin routes.
func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin/outbox", func(r chi.Router) {
		r.Get("/", h.stats)
		r.Get("/dead-letters", h.deadLetters)
		r.Get("/dead-letters.csv", h.exportDeadLettersCSV)
		r.Post("/dead-letters/{eventID}/requeue", h.requeue)
	})
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.outbox.Stats(r.Context())
	if err != nil {
		h.internalError(w, "outbox stats", err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) deadLetters(w http.ResponseWriter, r *http.Request) {
	letters, ok := h.listDeadLetters(w, r)
	if !ok {
		return
	}
	if letters == nil {
		letters = []eventing.DeadLetter{}
	}
	WriteJSON(w, http.StatusOK, letters)
}

func (h *AdminHandler) exportDeadLettersCSV(w http.ResponseWriter, r *http.Request) {
	letters, ok := h.listDeadLetters(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="dead-letters.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"event_id",
		"event_type",
		"aggregate_id",
		"attempts",
		"first_seen_at",
		"last_seen_at",
		"error",
	})
	for _, d := range letters {
		_ = writer.Write([]string{
			d.EventID,
			d.EventType,
			d.AggregateID,
			strconv.Itoa(d.Attempts),
			formatTime(d.FirstSeenAt),
			formatTime(d.LastSeenAt),
			d.Error,
		})
	}
	writer.Flush()
}

func (h *AdminHandler) requeue(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if err := h.dlq.Requeue(r.Context(), eventID); err != nil {
		if errors.Is(err, eventing.ErrUnknownEventID) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.internalError(w, "requeue dead letter", err)
		return
	}
	h.logger.Info("dead letter requeued", zap.String("event_id", eventID), zap.String("actor", auth.ActorFromContext(r.Context())))
	h.audit(r, eventID)
	WriteJSON(w, http.StatusOK, map[string]string{"eventId": eventID, "status": "pending"})
}

func (h *AdminHandler) listDeadLetters(w http.ResponseWriter, r *http.Request) ([]eventing.DeadLetter, bool) {
	limit, err := parseLimit(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	letters, err := h.dlq.List(r.Context(), limit)
	if err != nil {
		h.internalError(w, "list dead letters", err)
		return nil, false
	}
	return letters, true
}

func (h *AdminHandler) audit(r *http.Request, eventID string) {
	if h.auditLogger == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]string{"eventId": eventID})
	err := h.auditLogger.Log(r.Context(), audit.FromRequest(r, audit.Entry{
		Actor:        auth.ActorFromContext(r.Context()),
		Address:      auth.AddressFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "outbox.requeue",
		ResourceType: "outbox_event",
		ResourceID:   eventID,
		Metadata:     metadata,
	}))
	if err != nil {
		h.logger.Warn("audit log failed", zap.String("action", "outbox.requeue"), zap.Error(err))
	}
}

func (h *AdminHandler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", zap.Error(err))
	WriteError(w, http.StatusInternalServerError, "internal error")
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 || limit > maxListLimit {
		return 0, errors.New("limit must be between 1 and " + strconv.Itoa(maxListLimit))
	}
	return limit, nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}
