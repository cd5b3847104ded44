// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the Admin REST Gateway (spec §4.11): a thin chi
// router whose handlers translate each route directly into a call against
// the Device Record Store, License Service, Broadcast Coordinator, or the
// Session Hub, per the "translate, don't reimplement" design note in
// SPEC_FULL §4.11. Every /api/v1 route is gated by an admin JWT
// (internal/authn.Manager.RequireBearer) and the two-role RBAC policy
// (internal/authz.Middleware.RequireRoute); /healthz, /metrics and /ws sit
// outside that group, and /ws authenticates from its own token parameter.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalmast/beacon/internal/authn"
	"github.com/signalmast/beacon/internal/authz"
	"github.com/signalmast/beacon/internal/hub"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/protocol"
)

// HubRouter is the subset of *hub.Hub the gateway depends on: accepting
// new device/admin WebSocket sessions and routing one-off command events
// triggered by a REST call (e.g. a playlist control button) to their
// target device.
type HubRouter interface {
	RouteToDevice(deviceID string, env protocol.Envelope, queue hub.QueueKind) error
	AcceptDevice(ctx context.Context, token string, conn *websocket.Conn) (*hub.Session, error)
	AcceptAdmin(adminID string, perm hub.Permission, conn *websocket.Conn) *hub.Session
	DisconnectDevice(deviceID string, reason hub.CloseReason)
}

// DeviceStore is the subset of internal/devicestore.Store the gateway's
// device and playlist routes translate into.
type DeviceStore interface {
	CreateDevice(ctx context.Context, displayName, stableDeviceID string, viewportW, viewportH int, kioskMode bool) (*models.DeviceRecord, string, error)
	DeleteDevice(ctx context.Context, deviceID string) error
	RotateToken(ctx context.Context, deviceID string) (string, error)
	GetByStableID(ctx context.Context, stableDeviceID string) (*models.DeviceRecord, error)
	ListDevices(ctx context.Context) ([]*models.DeviceRecord, error)

	PutPlaylist(ctx context.Context, pl *models.Playlist) error
	AssignPlaylist(ctx context.Context, stableDeviceID, playlistID string) error
	GetPlaylist(ctx context.Context, playlistID string) (*models.Playlist, error)
	ListPlaylists(ctx context.Context) ([]*models.Playlist, error)
}

// LicenseService is the subset of internal/license.Service the gateway's
// license routes translate into.
type LicenseService interface {
	Activate(ctx context.Context, key string) (*models.License, error)
	Revoke(ctx context.Context, licenseID string) error
}

// BroadcastService is the subset of internal/broadcast.Coordinator the
// gateway's broadcast routes translate into.
type BroadcastService interface {
	Start(ctx context.Context, deviceID, url string, duration time.Duration) error
	End(ctx context.Context, deviceID string) error
}

// ScreenshotPresigner resolves a time-limited URL for a device's latest
// screenshot, satisfied by internal/telemetry.S3Uploader.
type ScreenshotPresigner interface {
	PresignLatest(ctx context.Context, deviceStableID string, expires time.Duration) (string, error)
}

// DeviceResolver authenticates a device's WebSocket connect-time token,
// reused from internal/hub.DeviceResolver so the gateway's /ws endpoint
// can reject a bad token before ever calling hub.AcceptDevice.
type DeviceResolver interface {
	ResolveToken(ctx context.Context, token string) (deviceID string, err error)
}

// Config tunes CORS and rate-limit behavior, per SPEC_FULL §4.11.
type Config struct {
	AllowedOrigins        []string
	AuthRequestsPerMinute int
	WSRequestsPerMinute   int
	ScreenshotURLTTL      time.Duration
}

// Deps wires the gateway's dependencies. None may be nil.
type Deps struct {
	Hub         HubRouter
	Devices     DeviceStore
	Resolver    DeviceResolver
	License     LicenseService
	Broadcast   BroadcastService
	Screenshots ScreenshotPresigner
	Authn       *authn.Manager
	Authz       *authz.Enforcer
}

// New builds the complete HTTP handler: CORS, request-rate limiting, the
// WebSocket upgrade endpoint, the versioned REST surface under
// /api/v1 (JWT + RBAC gated), and a Prometheus /metrics endpoint.
func New(cfg Config, deps Deps) http.Handler {
	if cfg.ScreenshotURLTTL <= 0 {
		cfg.ScreenshotURLTTL = 5 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	h := &handlers{deps: deps}

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	wsLimit := cfg.WSRequestsPerMinute
	if wsLimit <= 0 {
		wsLimit = 30
	}
	r.With(rateLimit(wsLimit, "/ws")).Get("/ws", h.serveWS)

	authLimit := cfg.AuthRequestsPerMinute
	if authLimit <= 0 {
		authLimit = 10
	}
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(rateLimit(authLimit, "/api/v1"))
		api.Use(deps.Authn.RequireBearer)
		api.Use(authz.NewMiddleware(deps.Authz).RequireRoute)

		api.Get("/devices", h.listDevices)
		api.Post("/devices", h.createDevice)
		api.Get("/devices/{id}", h.getDevice)
		api.Delete("/devices/{id}", h.deleteDevice)
		api.Post("/devices/{id}/token", h.rotateToken)
		api.Get("/devices/{id}/screenshot", h.getScreenshot)
		api.Post("/devices/{id}/broadcast", h.startBroadcast)
		api.Delete("/devices/{id}/broadcast", h.endBroadcast)
		api.Post("/devices/{id}/playlist/{action}", h.playlistControl)

		api.Get("/playlists", h.listPlaylists)
		api.Get("/playlists/{id}", h.getPlaylist)
		api.Put("/playlists/{id}", h.putPlaylist)
		api.Post("/playlists/{id}/assign/{deviceId}", h.assignPlaylist)

		api.Post("/licenses/activate", h.activateLicense)
		api.Post("/licenses/{id}/revoke", h.revokeLicense)
	})

	return r
}
