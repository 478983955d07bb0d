package apihttp

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"irec-issuer/internal/auth"
)

// Routes is implemented by bounded-context handlers.
type Routes interface {
	Register(r chi.Router)
}

// RouterConfig wires the root router.
type RouterConfig struct {
	Auth   *auth.Middleware
	Logger *zap.Logger
	DB     *sql.DB
	Routes []Routes
}

// NewRouter builds the service router: public health and metrics endpoints
// plus authenticated bounded-context routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(cfg.DB))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(cfg.Auth.Wrap)
		}
		for _, routes := range cfg.Routes {
			if routes != nil {
				routes.Register(r)
			}
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "")
	})
	return LoggingMiddleware(r, cfg.Logger)
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				WriteError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
