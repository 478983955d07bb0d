package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Middleware authenticates bearer tokens and enforces a Policy.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap rejects unauthenticated requests with 401 and under-privileged ones
// with 403. Accepted requests carry the caller's Identity in their context.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		id, err := m.authenticate(r)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !id.Role.Satisfies(m.Policy.RequiredRole(r)) {
			writeAuthError(w, http.StatusForbidden, "Forbidden")
			return
		}
		ctx := WithIdentity(r.Context(), id.Address, id.Role, id.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) authenticate(r *http.Request) (Identity, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return Identity{}, ErrMissingToken
	}
	claims, err := ParseJWT(token, m.Secret)
	if err != nil {
		return Identity{}, err
	}
	id := claims.Identity()
	if id.Role == "" {
		return Identity{}, errors.New("auth: token without role")
	}
	return id, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		StatusCode int    `json:"statusCode"`
		Error      string `json:"error"`
		Message    string `json:"message"`
	}{status, http.StatusText(status), message})
}
