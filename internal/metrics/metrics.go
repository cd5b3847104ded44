// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus instrumentation for the Session Hub,
// License Enforcement Service, Playlist Rotation Engine, and the
// supporting services wired around them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session Hub Metrics
	HubConnectedDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_devices",
			Help: "Current number of devices with an open WebSocket session",
		},
	)

	HubConnectedAdmins = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_admins",
			Help: "Current number of admin sessions with an open WebSocket session",
		},
	)

	HubSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_sessions_total",
			Help: "Total number of sessions accepted, by kind",
		},
		[]string{"kind"}, // "device", "admin"
	)

	HubDisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_disconnects_total",
			Help: "Total number of sessions disconnected, by kind and reason",
		},
		[]string{"kind", "reason"}, // reason: a hub.CloseReason, e.g. "stale", "client_disconnect", "superseded"
	)

	HubQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hub_queue_depth",
			Help: "Current depth of a session's outbound queue",
		},
		[]string{"queue"}, // "control", "stream"
	)

	HubQueueDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_queue_drops_total",
			Help: "Total number of outbound messages dropped due to a full queue",
		},
		[]string{"queue"},
	)

	HubEventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_dispatched_total",
			Help: "Total number of inbound events dispatched, by event and outcome",
		},
		[]string{"event", "outcome"}, // outcome: "ok", "device_offline"
	)

	// License Enforcement Metrics
	LicenseChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_checks_total",
			Help: "Total number of license admission checks, by result",
		},
		[]string{"result"}, // "admitted", "denied", "grace"
	)

	LicenseActiveDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "license_active_devices",
			Help: "Current number of devices counted against the license limit",
		},
	)

	LicenseSeatLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "license_seat_limit",
			Help: "Configured seat limit of the currently installed license",
		},
	)

	LicenseGraceDevicesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "license_grace_devices_expired_total",
			Help: "Total number of devices evicted after their grace window elapsed",
		},
	)

	// Playlist Rotation Metrics
	RotationAdvancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rotation_advances_total",
			Help: "Total number of playlist item advances across all devices",
		},
	)

	RotationItemDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rotation_item_duration_seconds",
			Help:    "Configured duration of playlist items as they are loaded",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	RotationReloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rotation_reloads_total",
			Help: "Total number of mid-rotation playlist reloads (content:update)",
		},
	)

	// Broadcast Override Metrics
	BroadcastsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_active_devices",
			Help: "Current number of devices under a broadcast override",
		},
	)

	BroadcastsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_started_total",
			Help: "Total number of broadcast overrides started",
		},
	)

	BroadcastsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_expired_total",
			Help: "Total number of broadcast overrides ended automatically on expiry",
		},
	)

	// Audit Log Metrics
	AuditEntriesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_recorded_total",
			Help: "Total number of audit entries persisted",
		},
	)

	AuditEntriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_dropped_total",
			Help: "Total number of audit entries dropped due to a full write buffer",
		},
	)

	AuditCompactionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_compaction_deleted_total",
			Help: "Total number of audit entries removed by the retention compactor",
		},
	)

	// Admin REST Gateway Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of admin REST requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Admin REST request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate-limit rejections on the admin REST gateway",
		},
		[]string{"route"},
	)

	// Screenshot / Health Collector Metrics
	ScreenshotUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenshot_uploads_total",
			Help: "Total number of screenshot uploads, by outcome",
		},
		[]string{"outcome"}, // "ok", "error"
	)

	HealthReportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "health_reports_total",
			Help: "Total number of device health reports received",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordHubSession records a newly accepted session, by kind ("device" or
// "admin").
func RecordHubSession(kind string) {
	HubSessionsTotal.WithLabelValues(kind).Inc()
}

// RecordHubDisconnect records a session leaving the Hub.
func RecordHubDisconnect(kind, reason string) {
	HubDisconnectsTotal.WithLabelValues(kind, reason).Inc()
}

// RecordHubQueueDrop records an outbound message dropped from a session
// queue due to backpressure.
func RecordHubQueueDrop(queue string) {
	HubQueueDrops.WithLabelValues(queue).Inc()
}

// RecordHubEventDispatched records the outcome of dispatching one inbound
// event.
func RecordHubEventDispatched(event, outcome string) {
	HubEventsDispatched.WithLabelValues(event, outcome).Inc()
}

// RecordLicenseCheck records the result of a license admission check.
func RecordLicenseCheck(result string) {
	LicenseChecksTotal.WithLabelValues(result).Inc()
}

// RecordAPIRequest records an admin REST request's outcome and latency.
func RecordAPIRequest(method, route, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordScreenshotUpload records the outcome of a screenshot upload.
func RecordScreenshotUpload(outcome string) {
	ScreenshotUploadsTotal.WithLabelValues(outcome).Inc()
}
