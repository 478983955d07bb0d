package http

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "irec-issuer/internal/api/http"
	"irec-issuer/internal/auth"
	certificateapp "irec-issuer/internal/certificate/application"
	certificate "irec-issuer/internal/certificate/domain"
	"irec-issuer/internal/certificate/infrastructure/memory"
)

const (
	ownerA = "0x1111111111111111111111111111111111111111"
	ownerB = "0x2222222222222222222222222222222222222222"
)

var secret = []byte("certificate-secret")

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewRepository()
	require.NoError(t, repo.Save(context.Background(), &certificate.Certificate{
		ID:                     3,
		DeviceID:               "device-1",
		GenerationStartTime:    time.Unix(1000, 0),
		GenerationEndTime:      time.Unix(2000, 0),
		CreationTime:           time.Unix(3000, 0),
		CreationBlockHash:      "0xblock",
		TxHash:                 "0xtx",
		IssuedPrivately:        true,
		Owner:                  ownerA,
		Energy:                 certificate.Energy{PublicVolume: big.NewInt(0), PrivateVolume: big.NewInt(1000000)},
		CertificationRequestID: 1,
	}))
	svc, err := certificateapp.NewService(repo)
	require.NoError(t, err)
	handler, err := NewHandler(svc, nil)
	require.NoError(t, err)
	return apihttp.NewRouter(apihttp.RouterConfig{
		Auth:   auth.NewMiddleware(secret, auth.NewDefaultPolicy(nil, nil)),
		Routes: []apihttp.Routes{handler},
	})
}

func get(t *testing.T, router http.Handler, path, address string) *httptest.ResponseRecorder {
	t.Helper()
	signed, err := auth.IssueJWT(secret, "sub", address, auth.RoleUser, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHandler_GetCertificate(t *testing.T) {
	router := newRouter(t)

	resp := get(t, router, "/certificate/3", ownerA)
	require.Equal(t, http.StatusOK, resp.Code)
	var dto certificateapp.CertificateDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &dto))
	assert.True(t, dto.IsOwned)
	assert.True(t, dto.IssuedPrivately)
	assert.Equal(t, "1000000", dto.Energy.PrivateVolume)
	assert.Equal(t, "0", dto.Energy.PublicVolume)

	resp = get(t, router, "/certificate/3", ownerB)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &dto))
	assert.False(t, dto.IsOwned)
	assert.Equal(t, "0", dto.Energy.PrivateVolume)

	resp = get(t, router, "/certificate/4", ownerA)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = get(t, router, "/certificate/x", ownerA)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandler_ListCertificates(t *testing.T) {
	router := newRouter(t)

	resp := get(t, router, "/certificate", ownerA)
	require.Equal(t, http.StatusOK, resp.Code)
	var items []certificateapp.CertificateDTO
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	resp = get(t, router, "/certificate", ownerB)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &items))
	assert.Empty(t, items)
}

func TestHandler_ExportPDF(t *testing.T) {
	router := newRouter(t)

	resp := get(t, router, "/certificate/3/export.pdf", ownerA)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")))

	resp = get(t, router, "/certificate/8/export.pdf", ownerA)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
