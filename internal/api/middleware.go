// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/signalmast/beacon/internal/metrics"
)

// requestMetrics records internal/metrics.RecordAPIRequest for every
// request, keyed by the matched route pattern rather than the realized
// path so parameterized routes don't each get their own label series.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		metrics.RecordAPIRequest(r.Method, pattern, strconv.Itoa(sw.status), time.Since(start))
	})
}

// rateLimit wraps httprate.LimitByIP with a rejection handler that records
// internal/metrics.APIRateLimitHits before returning the default 429, so
// the gateway's own throttling is itself observable per SPEC_FULL §4.11.
func rateLimit(requestLimit int, route string) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(route).Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		}),
	)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
