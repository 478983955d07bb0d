package apihttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irec-issuer/internal/auth"
)

type pingRoutes struct{}

func (pingRoutes) Register(r chi.Router) {
	r.Get("/certificate", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, []string{})
	})
}

func newTestRouter() http.Handler {
	mw := auth.NewMiddleware([]byte("secret"), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	return NewRouter(RouterConfig{Auth: mw, Routes: []Routes{pingRoutes{}}})
}

func TestRouter_Health(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestRouter_ProtectedRoutesNeedToken(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/certificate", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 401, body.StatusCode)
	assert.Equal(t, "Unauthorized", body.Error)
}

func TestRouter_NotFoundEnvelope(t *testing.T) {
	router := NewRouter(RouterConfig{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "Cannot GET /nope", body.Message)
}

func TestWriteError_DefaultMessage(t *testing.T) {
	resp := httptest.NewRecorder()
	WriteError(resp, http.StatusConflict, "")
	assert.JSONEq(t, `{"statusCode":409,"error":"Conflict","message":"Conflict"}`, resp.Body.String())
}
