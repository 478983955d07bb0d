package auth

import (
	"context"
	"strings"
)

// Identity is the authenticated caller.
type Identity struct {
	Address string
	Role    Role
	Subject string
}

type identityKey struct{}

// WithIdentity attaches the caller to ctx. The address is lower-cased so it
// compares equal to stored owners.
func WithIdentity(ctx context.Context, address string, role Role, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{
		Address: strings.ToLower(address),
		Role:    role,
		Subject: subject,
	})
}

// IdentityFromContext returns the caller, if authenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// AddressFromContext returns the caller's wallet address, lower-case.
func AddressFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Address
}

func RoleFromContext(ctx context.Context) Role {
	id, _ := IdentityFromContext(ctx)
	return id.Role
}

func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}

// IsPrivileged reports whether the caller may act on any owner's records.
func IsPrivileged(ctx context.Context) bool {
	return RoleFromContext(ctx).Satisfies(RoleIssuer)
}

// ActorFromContext labels the caller for audit entries and event metadata:
// the token subject, or the address when the token has none.
func ActorFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	if id.Subject != "" {
		return id.Subject
	}
	return id.Address
}
