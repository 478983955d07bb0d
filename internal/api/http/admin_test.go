package apihttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irec-issuer/internal/audit"
	"irec-issuer/internal/auth"
	"irec-issuer/internal/eventing"
	"irec-issuer/internal/eventing/infrastructure/memory"
)

const adminSecret = "admin-secret"

type adminFixture struct {
	router  http.Handler
	outbox  *memory.OutboxStore
	dlq     *memory.DLQStore
	audit   *audit.MemoryLogger
	eventID string
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	ctx := context.Background()
	outbox := memory.NewOutboxStore(1)
	dlq := memory.NewDLQStore(outbox)
	env := eventing.Envelope{EventID: "evt-7", EventType: "events.CertificationRequestApproved", AggregateID: "7", Payload: []byte(`{}`)}
	id, err := outbox.Insert(ctx, env)
	require.NoError(t, err)
	require.NoError(t, outbox.MarkFailed(ctx, id))
	require.NoError(t, dlq.RecordFailure(ctx, env, errors.New("issuer: status 502")))

	auditLogger := &audit.MemoryLogger{}
	handler, err := NewAdminHandler(outbox, dlq, auditLogger, nil)
	require.NoError(t, err)
	mw := auth.NewMiddleware([]byte(adminSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	return &adminFixture{
		router:  NewRouter(RouterConfig{Auth: mw, Routes: []Routes{handler}}),
		outbox:  outbox,
		dlq:     dlq,
		audit:   auditLogger,
		eventID: env.EventID,
	}
}

func (f *adminFixture) do(t *testing.T, method, path string, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	address := ""
	if role == auth.RoleUser {
		address = "0x1111111111111111111111111111111111111111"
	}
	token, err := auth.IssueJWT([]byte(adminSecret), "ops", address, role, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	f := newAdminFixture(t)
	for _, role := range []auth.Role{auth.RoleUser, auth.RoleIssuer} {
		resp := f.do(t, http.MethodGet, "/admin/outbox", role)
		assert.Equal(t, http.StatusForbidden, resp.Code, role)
		resp = f.do(t, http.MethodPost, "/admin/outbox/dead-letters/"+f.eventID+"/requeue", role)
		assert.Equal(t, http.StatusForbidden, resp.Code, role)
	}
}

func TestAdmin_StatsAndDeadLetters(t *testing.T) {
	f := newAdminFixture(t)

	resp := f.do(t, http.MethodGet, "/admin/outbox", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	var stats eventing.OutboxStats
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Exhausted)
	assert.Equal(t, 0, stats.Pending)

	resp = f.do(t, http.MethodGet, "/admin/outbox/dead-letters?limit=10", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	var letters []eventing.DeadLetter
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &letters))
	require.Len(t, letters, 1)
	assert.Equal(t, "7", letters[0].AggregateID)
	assert.Equal(t, 1, letters[0].Attempts)

	resp = f.do(t, http.MethodGet, "/admin/outbox/dead-letters?limit=0", auth.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdmin_DeadLettersCSV(t *testing.T) {
	f := newAdminFixture(t)
	resp := f.do(t, http.MethodGet, "/admin/outbox/dead-letters.csv", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.HasPrefix(resp.Header().Get("Content-Type"), "text/csv"))

	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "event_id", records[0][0])
	assert.Equal(t, []string{"evt-7", "events.CertificationRequestApproved", "7", "1"}, records[1][:4])
	assert.Equal(t, "issuer: status 502", records[1][6])
}

func TestAdmin_Requeue(t *testing.T) {
	f := newAdminFixture(t)

	resp := f.do(t, http.MethodPost, "/admin/outbox/dead-letters/"+f.eventID+"/requeue", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, f.dlq.Len())
	stats, err := f.outbox.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "outbox.requeue", entries[0].Action)
	assert.Equal(t, f.eventID, entries[0].ResourceID)
	assert.Equal(t, "admin", entries[0].Role)

	resp = f.do(t, http.MethodPost, "/admin/outbox/dead-letters/evt-missing/requeue", auth.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
