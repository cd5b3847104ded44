// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authn implements admin session authentication: HS256 JWTs
// carrying (username, role), validated on the `/ws?role=admin&token=<jwt>`
// upgrade path and by the REST gateway, per SPEC_FULL §4.10. Credential
// verification itself is out of scope (spec.md's non-goal boundary
// assumes an external identity system); this package only issues and
// validates the session token.
package authn

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTimeout is how long an issued token remains valid.
const DefaultSessionTimeout = 24 * time.Hour

// Claims is the admin session's JWT payload.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager issues and validates admin session tokens, grounded on the
// teacher's HMAC-SHA256 JWTManager.
type Manager struct {
	secret  []byte
	timeout time.Duration
}

// NewManager constructs a Manager. secret must be non-empty; a zero
// timeout falls back to DefaultSessionTimeout.
func NewManager(secret []byte, timeout time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("authn: session secret is required")
	}
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Manager{secret: secret, timeout: timeout}, nil
}

// IssueToken signs a new session token for username in role.
func (m *Manager) IssueToken(username, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("authn: sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies tokenString, rejecting anything not
// signed with HMAC (algorithm confusion) along with expired or
// not-yet-valid tokens.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("authn: parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("authn: invalid token claims")
	}
	return claims, nil
}

type contextKey string

const claimsKey contextKey = "authn_claims"

// ContextWithClaims stores validated Claims in ctx, for downstream
// handlers (chi middleware, internal/authz) to read.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext retrieves Claims stored by ContextWithClaims.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
