// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/authn"
)

func newTestRouter(t *testing.T) (*chi.Mux, *Enforcer) {
	t.Helper()
	e := newTestEnforcer(t)
	mw := NewMiddleware(e)

	r := chi.NewRouter()
	r.With(mw.RequireRoute).Delete("/api/v1/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.With(mw.RequireRoute).Get("/api/v1/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r, e
}

func withClaims(req *http.Request, role string) *http.Request {
	claims := &authn.Claims{Username: "tester", Role: role}
	return req.WithContext(authn.ContextWithClaims(req.Context(), claims))
}

func TestMiddlewareAllowsOperatorDelete(t *testing.T) {
	r, _ := newTestRouter(t)

	req := withClaims(httptest.NewRequest(http.MethodDelete, "/api/v1/devices/device-1", nil), "operator")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareDeniesViewerDelete(t *testing.T) {
	r, _ := newTestRouter(t)

	req := withClaims(httptest.NewRequest(http.MethodDelete, "/api/v1/devices/device-1", nil), "viewer")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMiddlewareAllowsViewerGet(t *testing.T) {
	r, _ := newTestRouter(t)

	req := withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/devices/device-1", nil), "viewer")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareDeniesMissingClaims(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/device-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, rec.Body)
}
