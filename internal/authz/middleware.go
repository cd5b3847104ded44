// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/signalmast/beacon/internal/authn"
	"github.com/signalmast/beacon/internal/logging"
)

// Middleware gates chi routes on the role carried by the admin session's
// JWT (internal/authn), matching the route pattern rather than the
// realized path so parameterized routes ("/devices/{id}") get a single
// policy row, per spec §4.10/§4.11.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware wraps an Enforcer as chi route middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// RequireRoute is chi middleware enforcing the current route pattern and
// HTTP method against the caller's role.
func (m *Middleware) RequireRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := authn.ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, "forbidden: no admin session", http.StatusForbidden)
			return
		}

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if !m.enforcer.CanAccessRoute(Role(claims.Role), pattern, r.Method) {
			logging.Warn().Str("role", claims.Role).Str("route", pattern).Str("method", r.Method).
				Msg("authz denied admin route")
			http.Error(w, "forbidden: insufficient role", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
