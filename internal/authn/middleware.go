// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authn

import (
	"net/http"
	"strings"
)

// RequireBearer is chi-compatible middleware that validates the
// `Authorization: Bearer <jwt>` header with m and, on success, stores the
// resulting Claims in the request context for internal/authz.Middleware
// and route handlers to read. Missing or invalid tokens get a 401 before
// the request reaches authorization or the handler.
func (m *Manager) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "unauthorized: missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := m.ValidateToken(token)
		if err != nil {
			http.Error(w, "unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
	})
}
