package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "0x1111111111111111111111111111111111111111"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/irec/certification-request", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Contains(t, resp.Body.String(), `"statusCode":401`)
}

func TestAuthMiddleware_UserForbiddenApprove(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, testOwner, "user")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(okHandler())

	for _, path := range []string{
		"/irec/certification-request/7/approve",
		"/irec/certification-request/7/revoke",
	} {
		req := httptest.NewRequest(http.MethodPut, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusForbidden, resp.Code, path)
	}
}

func TestAuthMiddleware_IssuerAllowedApprove(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "", "issuer")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))

	var gotRole Role
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPut, "/irec/certification-request/7/approve", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, RoleIssuer, gotRole)
}

func TestAuthMiddleware_UserIdentityInContext(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "0xABCDEFabcdef0000000000000000000000000000", "user")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))

	var address, subject string
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address = AddressFromContext(r.Context())
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/certificate/3", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "0xabcdefabcdef0000000000000000000000000000", address)
	assert.Equal(t, "user-1", subject)
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAuthMiddleware_WrongSecret(t *testing.T) {
	token := mustToken(t, []byte("other"), testOwner, "user")
	mw := NewMiddleware([]byte("test-secret"), NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/certificate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestParseJWT_RejectsUnknownRole(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, testOwner, "viewer")
	_, err := ParseJWT(token, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueJWT_RoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, err := IssueJWT(secret, "ops", "", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "ops", claims.Subject)
}

func mustToken(t *testing.T, secret []byte, address, role string) string {
	t.Helper()
	claims := Claims{
		Address: address,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestPolicy_RequiredRole(t *testing.T) {
	p := NewDefaultPolicy(nil, nil)
	cases := []struct {
		method, path string
		want         Role
	}{
		{http.MethodPut, "/irec/certification-request/12/approve", RoleIssuer},
		{http.MethodPut, "/irec/certification-request/12/revoke/", RoleIssuer},
		{http.MethodGet, "/irec/certification-request/12/approve", RoleUser},
		{http.MethodPost, "/irec/certification-request", RoleUser},
		{http.MethodGet, "/certificate/9/export.pdf", RoleUser},
		{http.MethodGet, "/admin/outbox", RoleAdmin},
		{http.MethodPost, "/admin/outbox/dead-letters/evt-1/requeue", RoleAdmin},
		{http.MethodGet, "/administrator", RoleUser},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		assert.Equal(t, tc.want, p.RequiredRole(req), "%s %s", tc.method, tc.path)
	}
}

func TestRole_Satisfies(t *testing.T) {
	assert.True(t, RoleAdmin.Satisfies(RoleIssuer))
	assert.True(t, RoleIssuer.Satisfies(RoleIssuer))
	assert.False(t, RoleUser.Satisfies(RoleIssuer))
	assert.False(t, Role("").Satisfies(RoleUser))

	role, ok := NormalizeRole(" Issuer ")
	require.True(t, ok)
	assert.Equal(t, RoleIssuer, role)
}

func TestIssueJWT_UserNeedsAddress(t *testing.T) {
	_, err := IssueJWT([]byte("test-secret"), "sub", "", RoleUser, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		Address: testOwner,
		Role:    "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)

	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/certificate", nil)
	req.Header.Set("Authorization", "bearer "+signed)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
