package auth

import (
	"net/http"
	"path"
	"strings"
)

// Rule grants a path pattern to a minimum role. Pattern uses path.Match
// syntax, except that a trailing "/**" matches the prefix and everything
// below it. An empty Method matches any method.
type Rule struct {
	Method  string
	Pattern string
	Role    Role
}

// DefaultRules are the role requirements of the API. Requests that match no
// rule need RoleUser.
var DefaultRules = []Rule{
	{Method: http.MethodPut, Pattern: "/irec/certification-request/*/approve", Role: RoleIssuer},
	{Method: http.MethodPut, Pattern: "/irec/certification-request/*/revoke", Role: RoleIssuer},
	{Pattern: "/admin/**", Role: RoleAdmin},
}

// Policy decides which requests are public and which role the rest need.
type Policy struct {
	exempt   map[string]struct{}
	prefixes []string
	rules    []Rule
}

// NewDefaultPolicy applies DefaultRules. exemptPaths are matched exactly,
// exemptPrefixes by prefix; both skip authentication entirely.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	return NewPolicy(DefaultRules, exemptPaths, exemptPrefixes)
}

// NewPolicy builds a policy from rules; the first matching rule wins.
func NewPolicy(rules []Rule, exemptPaths []string, exemptPrefixes []string) Policy {
	p := Policy{
		exempt:   make(map[string]struct{}, len(exemptPaths)),
		prefixes: exemptPrefixes,
		rules:    rules,
	}
	for _, exempt := range exemptPaths {
		p.exempt[exempt] = struct{}{}
	}
	return p
}

// IsExempt reports whether r skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if _, ok := p.exempt[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole returns the minimum role for r.
func (p Policy) RequiredRole(r *http.Request) Role {
	clean := strings.TrimRight(r.URL.Path, "/")
	for _, rule := range p.rules {
		if rule.Method != "" && rule.Method != r.Method {
			continue
		}
		if rule.matches(clean) {
			return rule.Role
		}
	}
	return RoleUser
}

func (r Rule) matches(p string) bool {
	if prefix, ok := strings.CutSuffix(r.Pattern, "/**"); ok {
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	}
	ok, _ := path.Match(r.Pattern, p)
	return ok
}
