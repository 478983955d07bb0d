package auth

import "strings"

// Role is the caller's authority level. Roles are ordered: every role can do
// what the roles below it can.
type Role string

const (
	// RoleUser owns devices and submits certification requests.
	RoleUser Role = "user"
	// RoleIssuer reviews requests for the registry.
	RoleIssuer Role = "issuer"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleUser:   1,
	RoleIssuer: 2,
	RoleAdmin:  3,
}

// NormalizeRole parses a role name case-insensitively.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRank[role]; !ok {
		return "", false
	}
	return role, true
}

// Satisfies reports whether r ranks at or above required. Unknown roles
// satisfy nothing.
func (r Role) Satisfies(required Role) bool {
	rank, ok := roleRank[r]
	return ok && rank >= roleRank[required]
}
