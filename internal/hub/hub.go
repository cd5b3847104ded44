// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hub implements the Session Hub (spec §4.3): a concurrent registry
// of device and admin sessions, addressable by stable identity, with
// fan-out routing and a two-tier backpressure policy. It is the generalized
// descendant of a simple broadcast hub, extended to two session kinds,
// per-session command/stream queue separation, stale-session eviction, and
// device-command RBAC.
package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalmast/beacon/internal/apierrors"
	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/metrics"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/protocol"
)

// QueueKind selects which of a session's two outbound queues a frame is
// enqueued on, per the backpressure policy in spec §4.3.
type QueueKind int

const (
	QueueControl QueueKind = iota
	QueueStream
)

// DeviceResolver authenticates a device's connect-time token and looks up
// its current playlist assignment for registration-time push.
type DeviceResolver interface {
	ResolveToken(ctx context.Context, token string) (deviceID string, err error)
	AssignedPlaylist(ctx context.Context, deviceID string) (*models.Playlist, error)
}

// LicenseGate is consulted on every device accept and deregister, per spec
// §4.1/§4.3.
type LicenseGate interface {
	RegisterDevice(ctx context.Context, deviceID string) error
	UnregisterDevice(ctx context.Context, deviceID string)
}

// AuditRecorder persists a log entry for lifecycle events, per spec §4.9.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.LogEntry)
}

// Dispatcher handles protocol events once they have passed the Hub's
// routing and RBAC checks. The Hub owns transport and backpressure;
// Dispatcher owns domain behavior (playlist control, telemetry ingestion,
// screencast subscription) so the Hub package stays free of those
// dependencies.
type Dispatcher interface {
	// HandleDeviceEvent processes an event received from a device session.
	HandleDeviceEvent(ctx context.Context, deviceID string, env protocol.Envelope)
	// HandleAdminCommand processes a command event an admin addressed to a
	// device, after the Hub has confirmed the admin holds operator
	// permission.
	HandleAdminCommand(ctx context.Context, adminID, targetDeviceID string, env protocol.Envelope)
}

// Config tunes Hub behavior; all fields have safe defaults via NewHub.
type Config struct {
	// StaleAfter is the inbound-silence window after which a session is
	// considered stale and closed. Default: 3x the expected health-report
	// interval, per spec §4.3.
	StaleAfter time.Duration
}

// Hub is the concurrent registry described in spec §4.3. Zero value is not
// usable; construct with NewHub.
type Hub struct {
	cfg Config

	mu      sync.RWMutex
	devices map[string]*Session
	admins  map[string]*Session

	// screencastSubs tracks, per device, which admin session IDs are
	// currently subscribed to its screencast stream (spec §4.5).
	screencastSubs map[string]map[string]bool

	resolver   DeviceResolver
	license    LicenseGate
	audit      AuditRecorder
	dispatcher Dispatcher
}

// NewHub constructs a Hub. resolver and license may not be nil; audit and
// dispatcher may be nil (a nil dispatcher silently ignores inbound events,
// useful in tests that only exercise routing).
func NewHub(cfg Config, resolver DeviceResolver, license LicenseGate, audit AuditRecorder, dispatcher Dispatcher) *Hub {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 180 * time.Second
	}
	return &Hub{
		cfg:            cfg,
		devices:        make(map[string]*Session),
		admins:         make(map[string]*Session),
		screencastSubs: make(map[string]map[string]bool),
		resolver:       resolver,
		license:        license,
		audit:          audit,
		dispatcher:     dispatcher,
	}
}

// SetDispatcher attaches the Dispatcher after construction, for the common
// wiring order where the Dispatcher itself needs a HubRouter reference
// (cmd/server builds the Hub first, then the Dispatcher, then closes the
// loop here).
func (h *Hub) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// AcceptDevice runs the device side of the Accept lifecycle step in spec
// §4.3: resolve the token, consult the License Service, supersede any
// prior session for this device, register, fan out device:connected, and
// push the current playlist assignment.
func (h *Hub) AcceptDevice(ctx context.Context, token string, conn *websocket.Conn) (*Session, error) {
	deviceID, err := h.resolver.ResolveToken(ctx, token)
	if err != nil {
		return nil, apierrors.AuthFailed("invalid device token")
	}
	if err := h.license.RegisterDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	h.mu.Lock()
	prior, hadPrior := h.devices[deviceID]
	if hadPrior {
		delete(h.devices, deviceID)
	}
	session := newSession(h, deviceID, RoleDevice, "", conn)
	h.devices[deviceID] = session
	deviceCount := len(h.devices)
	h.mu.Unlock()

	if hadPrior {
		// The superseded session's own unregister will no-op its map
		// removal (the new session already holds this deviceID by the
		// time its readPump unwinds), so the license decrement and
		// device:disconnected fanout have to happen here instead.
		prior.Close(CloseSuperseded)
		h.license.UnregisterDevice(ctx, deviceID)
		h.broadcastAdminStatus(deviceID, false)
		h.recordLifecycle(ctx, deviceID, "device disconnected: "+string(CloseSuperseded))
	}

	metrics.RecordHubSession("device")
	metrics.HubConnectedDevices.Set(float64(deviceCount))
	logging.Info().Str("device_id", deviceID).Int("devices_online", deviceCount).Msg("device registered")
	h.broadcastAdminStatus(deviceID, true)
	h.recordLifecycle(ctx, deviceID, "device connected")

	if playlist, err := h.resolver.AssignedPlaylist(ctx, deviceID); err == nil && playlist != nil {
		env, merr := protocol.Marshal(protocol.EventContentUpdate, protocol.ContentUpdatePayload{
			PlaylistID: playlist.ID,
			Items:      playlist.Items,
		})
		if merr == nil {
			session.enqueueControl(env)
		}
	}

	return session, nil
}

// AcceptAdmin registers an admin session with the given RBAC permission,
// determined by the caller (internal/api, from the admin JWT's role claim)
// before the WebSocket upgrade.
func (h *Hub) AcceptAdmin(adminID string, perm Permission, conn *websocket.Conn) *Session {
	h.mu.Lock()
	if prior, ok := h.admins[adminID]; ok {
		delete(h.admins, adminID)
		h.mu.Unlock()
		prior.Close(CloseSuperseded)
		h.mu.Lock()
	}
	session := newSession(h, adminID, RoleAdmin, perm, conn)
	h.admins[adminID] = session
	adminCount := len(h.admins)
	h.mu.Unlock()
	metrics.RecordHubSession("admin")
	metrics.HubConnectedAdmins.Set(float64(adminCount))
	return session
}

// unregister removes a session from its registry map and runs the
// Deregister lifecycle step (spec §4.3): decrement the license device
// count for devices, fan out device:disconnected, persist a log entry, and
// drop any screencast subscription bookkeeping.
func (h *Hub) unregister(s *Session, reason CloseReason) {
	h.mu.Lock()
	var removed bool
	var toStop []string
	switch s.Role {
	case RoleDevice:
		if cur, ok := h.devices[s.ID]; ok && cur == s {
			delete(h.devices, s.ID)
			removed = true
		}
		delete(h.screencastSubs, s.ID)
	case RoleAdmin:
		if cur, ok := h.admins[s.ID]; ok && cur == s {
			delete(h.admins, s.ID)
			removed = true
		}
		for device, subs := range h.screencastSubs {
			if subs[s.ID] {
				delete(subs, s.ID)
				if len(subs) == 0 {
					toStop = append(toStop, device)
				}
			}
		}
	}
	devices, admins := len(h.devices), len(h.admins)
	h.mu.Unlock()

	// stopScreencastLocked re-enters h.mu via RouteToDevice, so the stop
	// frames must be sent after releasing the lock, same as
	// unsubscribeScreencast does.
	for _, device := range toStop {
		h.stopScreencastLocked(device)
	}

	if !removed {
		return
	}
	s.Close(reason)

	kind := "admin"
	if s.Role == RoleDevice {
		kind = "device"
	}
	metrics.RecordHubDisconnect(kind, string(reason))
	metrics.HubConnectedDevices.Set(float64(devices))
	metrics.HubConnectedAdmins.Set(float64(admins))

	if s.Role == RoleDevice {
		ctx := context.Background()
		h.license.UnregisterDevice(ctx, s.ID)
		h.broadcastAdminStatus(s.ID, false)
		h.recordLifecycle(ctx, s.ID, "device disconnected: "+string(reason))
	}
}

func (h *Hub) recordLifecycle(ctx context.Context, deviceID, message string) {
	if h.audit == nil {
		return
	}
	h.audit.Record(ctx, models.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     models.LogLevelInfo,
		Message:   message,
		DeviceID:  deviceID,
		Source:    "hub",
	})
}

func (h *Hub) broadcastAdminStatus(deviceID string, online bool) {
	env, err := protocol.Marshal(protocol.EventAdminDeviceStatus, protocol.AdminDeviceStatusPayload{
		DeviceID: deviceID,
		Online:   online,
		LastSeen: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	h.BroadcastToAdmins(env, QueueControl)
}

// RouteToDevice implements routeToDevice from spec §4.3: at-most-once
// delivery to the named device's current connection, or apierrors'
// DeviceOffline code if no session is registered.
func (h *Hub) RouteToDevice(deviceID string, env protocol.Envelope, queue QueueKind) error {
	h.mu.RLock()
	session, ok := h.devices[deviceID]
	h.mu.RUnlock()
	if !ok {
		return apierrors.DeviceOffline(deviceID)
	}
	h.enqueue(session, env, queue)
	return nil
}

// BroadcastToAdmins implements broadcastToAdmins from spec §4.3: fan out
// to every admin session in deterministic (ID-sorted) order. Slow admins
// never block the caller or each other.
func (h *Hub) BroadcastToAdmins(env protocol.Envelope, queue QueueKind) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.admins))
	for _, s := range h.admins {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].seq < sessions[j].seq })
	for _, s := range sessions {
		h.enqueue(s, env, queue)
	}
}

func (h *Hub) enqueue(s *Session, env protocol.Envelope, queue QueueKind) {
	switch queue {
	case QueueStream:
		if s.enqueueStream(env) {
			metrics.RecordHubQueueDrop("stream")
		}
	default:
		if !s.enqueueControl(env) {
			logging.Warn().Str("session_id", s.ID).Msg("control queue full, closing session")
			go h.unregister(s, CloseControlFull)
		}
	}
}

// dispatchInbound routes a decoded envelope from session to domain logic,
// enforcing the command-event RBAC rule from SPEC_FULL §4.10: only an
// operator-permission admin may issue a command event, and it must name a
// target device.
func (h *Hub) dispatchInbound(s *Session, env protocol.Envelope) {
	if h.dispatcher == nil {
		return
	}
	ctx := context.Background()

	if s.Role == RoleDevice {
		h.dispatcher.HandleDeviceEvent(ctx, s.ID, env)
		return
	}

	// Admin-originated. Screencast subscription bookkeeping stays in the
	// Hub (it owns the subscriber map); everything else is forwarded.
	if protocol.IsCommandEvent(env.Event) {
		if s.Permission != PermissionOperator {
			logging.Warn().Str("admin_id", s.ID).Str("event", env.Event).Msg("command event rejected: viewer permission")
			return
		}
		var target struct {
			DeviceID string `json:"deviceId"`
		}
		if err := protocol.Decode(env, &target); err != nil || target.DeviceID == "" {
			return
		}
		if env.Event == protocol.EventScreencastStart {
			h.subscribeScreencast(target.DeviceID, s.ID)
		} else if env.Event == protocol.EventScreencastStop {
			h.unsubscribeScreencast(target.DeviceID, s.ID)
		}
		h.dispatcher.HandleAdminCommand(ctx, s.ID, target.DeviceID, env)
	}
}

// subscribeScreencast records an admin as a screencast subscriber for
// deviceID, sending screencast:start to the device on the first
// subscriber, per spec §4.5.
func (h *Hub) subscribeScreencast(deviceID, adminID string) {
	h.mu.Lock()
	subs, ok := h.screencastSubs[deviceID]
	if !ok {
		subs = make(map[string]bool)
		h.screencastSubs[deviceID] = subs
	}
	first := len(subs) == 0
	subs[adminID] = true
	h.mu.Unlock()

	if first {
		if env, err := protocol.Marshal(protocol.EventScreencastStart, struct{}{}); err == nil {
			_ = h.RouteToDevice(deviceID, env, QueueControl)
		}
	}
}

func (h *Hub) unsubscribeScreencast(deviceID, adminID string) {
	h.mu.Lock()
	subs, ok := h.screencastSubs[deviceID]
	if ok {
		delete(subs, adminID)
	}
	last := ok && len(subs) == 0
	h.mu.Unlock()

	if last {
		h.stopScreencastLocked(deviceID)
	}
}

// stopScreencastLocked sends screencast:stop to deviceID. Despite the name
// (kept symmetric with the locked bookkeeping call sites), it performs the
// actual network send without holding h.mu.
func (h *Hub) stopScreencastLocked(deviceID string) {
	if env, err := protocol.Marshal(protocol.EventScreencastStop, struct{}{}); err == nil {
		_ = h.RouteToDevice(deviceID, env, QueueControl)
	}
}

// RelayScreencastFrame fans a device's screencast:frame out to every
// current subscriber as admin:screencast:frame, strictly through each
// subscriber's stream queue so a slow admin never affects the device or
// other admins, per spec §4.5.
func (h *Hub) RelayScreencastFrame(deviceID string, frame protocol.ScreencastFramePayload) {
	h.mu.RLock()
	subs := make([]string, 0, len(h.screencastSubs[deviceID]))
	for adminID := range h.screencastSubs[deviceID] {
		subs = append(subs, adminID)
	}
	h.mu.RUnlock()
	if len(subs) == 0 {
		return
	}
	sort.Strings(subs)

	env, err := protocol.Marshal(protocol.EventAdminScreencastFrame, protocol.AdminScreencastFramePayload{
		DeviceID: deviceID,
		Data:     frame.Data,
		Metadata: frame.Metadata,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, adminID := range subs {
		if s, ok := h.admins[adminID]; ok {
			h.enqueue(s, env, QueueStream)
		}
	}
}

// SweepStale closes every session that has had no inbound traffic for
// longer than cfg.StaleAfter, per spec §4.3. Intended to be called
// periodically by a supervised background goroutine.
func (h *Hub) SweepStale() int {
	h.mu.RLock()
	var stale []*Session
	for _, s := range h.devices {
		if s.staleSince(h.cfg.StaleAfter) {
			stale = append(stale, s)
		}
	}
	for _, s := range h.admins {
		if s.staleSince(h.cfg.StaleAfter) {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.unregister(s, CloseStale)
	}
	return len(stale)
}

// DeviceCount returns the number of currently registered device sessions.
func (h *Hub) DeviceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.devices)
}

// AdminCount returns the number of currently registered admin sessions.
func (h *Hub) AdminCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.admins)
}

// IsDeviceOnline reports whether deviceID currently has a registered
// session.
func (h *Hub) IsDeviceOnline(deviceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.devices[deviceID]
	return ok
}

// DisconnectDevice forcibly closes deviceID's live session, if any, for
// use by the admin REST gateway's device-delete and license-revoke flows
// (spec §3's "deletion cascades" and §4.2's revoke-time eviction). It is a
// no-op if the device is not currently connected.
func (h *Hub) DisconnectDevice(deviceID string, reason CloseReason) {
	h.mu.RLock()
	session, ok := h.devices[deviceID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.unregister(session, reason)
}

// Shutdown closes every registered session, for use during graceful
// process shutdown.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.devices)+len(h.admins))
	for _, s := range h.devices {
		sessions = append(sessions, s)
	}
	for _, s := range h.admins {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		h.unregister(s, CloseShutdown)
	}
}
