package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apihttp "irec-issuer/internal/api/http"
	"irec-issuer/internal/audit"
	"irec-issuer/internal/auth"
	certapp "irec-issuer/internal/certification/application"
	"irec-issuer/internal/certification/infrastructure/memory"
	"irec-issuer/internal/eventing"
	evmemory "irec-issuer/internal/eventing/infrastructure/memory"
)

const (
	ownerA = "0x1111111111111111111111111111111111111111"
	ownerB = "0x2222222222222222222222222222222222222222"
)

var secret = []byte("handler-secret")

type fixture struct {
	router http.Handler
	audit  *audit.MemoryLogger
	outbox *evmemory.OutboxStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	outbox := evmemory.NewOutboxStore(5)
	svc, err := certapp.NewService(memory.NewRepository(), eventing.NewPublisher(outbox, nil))
	require.NoError(t, err)
	auditLogger := &audit.MemoryLogger{}
	handler, err := NewHandler(svc, auditLogger, nil)
	require.NoError(t, err)
	router := apihttp.NewRouter(apihttp.RouterConfig{
		Auth:   auth.NewMiddleware(secret, auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)),
		Routes: []apihttp.Routes{handler},
	})
	return &fixture{router: router, audit: auditLogger, outbox: outbox}
}

func token(t *testing.T, address string, role auth.Role) string {
	t.Helper()
	signed, err := auth.IssueJWT(secret, "subject-"+string(role), address, role, time.Hour)
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp := httptest.NewRecorder()
	f.router.ServeHTTP(resp, req)
	return resp
}

func createBody(from, to int64) map[string]any {
	return map[string]any{
		"deviceId":  "device-1",
		"fromTime":  from,
		"toTime":    to,
		"energy":    "1000000",
		"files":     []string{"file-1"},
		"isPrivate": false,
	}
}

func decodeDTO(t *testing.T, resp *httptest.ResponseRecorder) certapp.RequestDTO {
	t.Helper()
	var dto certapp.RequestDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &dto), resp.Body.String())
	return dto
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) apihttp.ErrorBody {
	t.Helper()
	var body apihttp.ErrorBody
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body), resp.Body.String())
	return body
}

func TestHandler_CreateAndGet(t *testing.T) {
	f := newFixture(t)
	user := token(t, ownerA, auth.RoleUser)

	resp := f.do(t, http.MethodPost, "/irec/certification-request", user, createBody(1000, 2000))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decodeDTO(t, resp)
	assert.Equal(t, ownerA, created.Owner)
	assert.Equal(t, "1000000", created.Energy)
	assert.Equal(t, []string{"file-1"}, created.Files)
	assert.False(t, created.Approved)
	assert.Nil(t, created.IssuedCertificateID)

	resp = f.do(t, http.MethodGet, "/irec/certification-request/1", user, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, created, decodeDTO(t, resp))

	resp = f.do(t, http.MethodGet, "/irec/certification-request", user, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var list []certapp.RequestDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "certification_request.create", entries[0].Action)
	assert.Equal(t, "1", entries[0].ResourceID)
	assert.Equal(t, 1, f.outbox.CountByStatus("pending"))
}

func TestHandler_CreateErrors(t *testing.T) {
	f := newFixture(t)
	user := token(t, ownerA, auth.RoleUser)

	resp := f.do(t, http.MethodPost, "/irec/certification-request", user, createBody(1000, 2000))
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = f.do(t, http.MethodPost, "/irec/certification-request", user, createBody(1500, 2500))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, 409, decodeError(t, resp).StatusCode)

	bad := createBody(1000, 2000)
	bad["energy"] = "lots"
	resp = f.do(t, http.MethodPost, "/irec/certification-request", user, bad)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "Bad Request", decodeError(t, resp).Error)

	unknown := createBody(3000, 4000)
	unknown["colour"] = "green"
	resp = f.do(t, http.MethodPost, "/irec/certification-request", user, unknown)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	other := createBody(5000, 6000)
	other["owner"] = ownerB
	resp = f.do(t, http.MethodPost, "/irec/certification-request", user, other)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(t, http.MethodPost, "/irec/certification-request", "", createBody(7000, 8000))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestHandler_GetErrors(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/irec/certification-request", token(t, ownerA, auth.RoleUser), createBody(1000, 2000))
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = f.do(t, http.MethodGet, "/irec/certification-request/1", token(t, ownerB, auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(t, http.MethodGet, "/irec/certification-request/42", token(t, ownerA, auth.RoleUser), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = f.do(t, http.MethodGet, "/irec/certification-request/abc", token(t, ownerA, auth.RoleUser), nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandler_ApproveLifecycle(t *testing.T) {
	f := newFixture(t)
	user := token(t, ownerA, auth.RoleUser)
	issuer := token(t, "", auth.RoleIssuer)

	resp := f.do(t, http.MethodPost, "/irec/certification-request", user, createBody(1000, 2000))
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = f.do(t, http.MethodPut, "/irec/certification-request/1/approve", user, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = f.do(t, http.MethodPut, "/irec/certification-request/1/approve", issuer, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	dto := decodeDTO(t, resp)
	assert.True(t, dto.Approved)
	assert.Equal(t, "approved", dto.Status)

	resp = f.do(t, http.MethodPut, "/irec/certification-request/1/approve", issuer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, http.MethodPut, "/irec/certification-request/1/revoke", issuer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = f.do(t, http.MethodPut, "/irec/certification-request/9/approve", issuer, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandler_RevokeTwice(t *testing.T) {
	f := newFixture(t)
	issuer := token(t, "", auth.RoleIssuer)

	resp := f.do(t, http.MethodPost, "/irec/certification-request", token(t, ownerA, auth.RoleUser), createBody(1000, 2000))
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = f.do(t, http.MethodPut, "/irec/certification-request/1/revoke", issuer, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decodeDTO(t, resp).Revoked)

	resp = f.do(t, http.MethodPut, "/irec/certification-request/1/revoke", issuer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, decodeError(t, resp).Message, "already revoked")
}

func TestHandler_ExportXLSX(t *testing.T) {
	f := newFixture(t)
	user := token(t, ownerA, auth.RoleUser)
	resp := f.do(t, http.MethodPost, "/irec/certification-request", user, createBody(1000, 2000))
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = f.do(t, http.MethodGet, "/irec/certification-request/export.xlsx", user, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "certification-requests.xlsx")

	book, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	owner, err := book.GetCellValue("requests", "C2")
	require.NoError(t, err)
	assert.Equal(t, ownerA, owner)
	status, err := book.GetCellValue("requests", "H2")
	require.NoError(t, err)
	assert.Equal(t, "pending", status)
}
