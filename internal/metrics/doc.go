// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package instruments the Session Hub, License Enforcement Service,
Playlist Rotation Engine, Broadcast Override, Audit Log, and Admin REST
Gateway using the Prometheus client library.

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Session Hub:
  - hub_connected_devices / hub_connected_admins: active session counts (gauge)
  - hub_sessions_total: sessions accepted, labeled by kind (counter)
  - hub_disconnects_total: sessions removed, labeled by kind and reason (counter)
  - hub_queue_depth: outbound queue depth, labeled by queue (gauge)
  - hub_queue_drops_total: messages dropped on a full queue (counter)
  - hub_events_dispatched_total: inbound events dispatched, labeled by outcome (counter)

License Enforcement:
  - license_checks_total: admission checks, labeled by result (counter)
  - license_active_devices / license_seat_limit (gauge)
  - license_grace_devices_expired_total (counter)

Playlist Rotation:
  - rotation_advances_total / rotation_reloads_total (counter)
  - rotation_item_duration_seconds (histogram)

Broadcast Override:
  - broadcast_active_devices (gauge)
  - broadcast_started_total / broadcast_expired_total (counter)

Audit Log:
  - audit_entries_recorded_total / audit_entries_dropped_total (counter)
  - audit_compaction_deleted_total (counter)

Admin REST Gateway:
  - api_requests_total / api_request_duration_seconds
  - api_rate_limit_hits_total

Screenshot / Health Collector:
  - screenshot_uploads_total (counter, labeled by outcome)
  - health_reports_total (counter)
*/
package metrics
