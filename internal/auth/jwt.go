package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errEmptySecret = errors.New("auth: empty secret")

// Claims is the token payload: the registered claims plus the caller's
// wallet address and role.
type Claims struct {
	Address string `json:"address"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the caller described by the claims.
func (c *Claims) Identity() Identity {
	role, _ := NormalizeRole(c.Role)
	return Identity{Address: c.Address, Role: role, Subject: c.Subject}
}

func (c *Claims) check() error {
	role, ok := NormalizeRole(c.Role)
	if !ok {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	if role == RoleUser && c.Address == "" {
		return fmt.Errorf("%w: user token without address", ErrInvalidToken)
	}
	return nil
}

// ParseJWT verifies an HS256 token signed with secret and returns its claims.
// Expiry is enforced by the parser when the token carries exp.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := claims.check(); err != nil {
		return nil, err
	}
	return claims, nil
}

// IssueJWT signs a token for the given identity. A non-positive ttl issues a
// token without expiry.
func IssueJWT(secret []byte, subject, address string, role Role, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errEmptySecret
	}
	now := time.Now()
	claims := &Claims{
		Address: address,
		Role:    string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if err := claims.check(); err != nil {
		return "", err
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
