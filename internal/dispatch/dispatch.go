// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch implements hub.Dispatcher: the domain-behavior side of
// every event the Hub has already routed and RBAC-checked, per spec §4.4
// and the Hub/Dispatcher split documented on hub.Dispatcher itself (the
// Hub owns transport and backpressure, Dispatcher owns what an event
// means).
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/signalmast/beacon/internal/hub"
	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/metrics"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/protocol"
)

// HubRouter is the narrow slice of *hub.Hub the Dispatcher needs: routing
// an admin command on to its target device, mirroring device state to
// admins, and relaying screencast frames. Kept as an interface (rather
// than importing *hub.Hub directly into call sites) purely for testability
// with a fake in dispatch_test.go.
type HubRouter interface {
	RouteToDevice(deviceID string, env protocol.Envelope, queue hub.QueueKind) error
	BroadcastToAdmins(env protocol.Envelope, queue hub.QueueKind)
	RelayScreencastFrame(deviceID string, frame protocol.ScreencastFramePayload)
}

// ScreencastForwarder is internal/screencast.Relay's narrow contract: apply
// per-device rate limiting and out-of-order dropping before a frame
// ever reaches the Hub's fan-out, per spec §4.5.
type ScreencastForwarder interface {
	Forward(deviceID string, frame protocol.ScreencastFramePayload)
}

// ScreenshotSink persists the latest screenshot uploaded by a device. The
// concrete implementation (cmd/server) is telemetry's S3 uploader; tests
// substitute an in-memory fake.
type ScreenshotSink interface {
	Store(ctx context.Context, shot models.Screenshot) error
}

// AuditRecorder persists one observability log entry, per spec §4.9.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.LogEntry)
}

// commandQueue reports which of a session's two outbound queues an
// admin-issued command event belongs on, per spec §4.3: everything in the
// command catalog is a control-queue frame (small, never silently
// dropped) — none of the command events are the high-rate telemetry that
// spec §4.3 assigns to the stream queue.
func commandQueue(string) hub.QueueKind { return hub.QueueControl }

// Restarter is internal/dockerctl.Controller's narrow contract: restart
// the named container, per SPEC_FULL §4.14. A nil Restarter (or a nil
// *dockerctl.Controller behind a non-nil interface value) disables the
// extra nudge without affecting command delivery to the device itself.
type Restarter interface {
	Restart(ctx context.Context, containerName string) error
}

// Dispatcher is the cmd/server-side implementation of hub.Dispatcher.
type Dispatcher struct {
	hub        HubRouter
	audit      AuditRecorder
	shots      ScreenshotSink
	screencast ScreencastForwarder
	restarter  Restarter

	playbackMu    sync.Mutex
	lastPlayback  map[string]models.PlaybackState
}

// New constructs a Dispatcher. audit and shots may be nil, in which case
// the corresponding side effect (audit logging, screenshot persistence) is
// skipped. screencast may also be nil, in which case frames are relayed
// directly through h with no rate limiting, as a bare-hub test double
// would expect.
func New(h HubRouter, audit AuditRecorder, shots ScreenshotSink, screencast ScreencastForwarder) *Dispatcher {
	return &Dispatcher{hub: h, audit: audit, shots: shots, screencast: screencast, lastPlayback: make(map[string]models.PlaybackState)}
}

// LastPlaybackState returns the most recently reported PlaybackState for
// deviceID, if any has been seen since process start. Satisfies
// internal/broadcast.PlaybackLookup, letting Start capture the item index
// a broadcast override saves for End.
func (d *Dispatcher) LastPlaybackState(deviceID string) (models.PlaybackState, bool) {
	d.playbackMu.Lock()
	defer d.playbackMu.Unlock()
	state, ok := d.lastPlayback[deviceID]
	return state, ok
}

// WithRestarter attaches the optional Docker-backed restart orchestration
// from SPEC_FULL §4.14. A device's container is named after its stable
// device id, the same convention cmd/device's container deployment uses.
func (d *Dispatcher) WithRestarter(r Restarter) *Dispatcher {
	d.restarter = r
	return d
}

// HandleDeviceEvent processes one event received from a device session,
// per the Device -> Server rows of spec §4.4's event catalog.
func (d *Dispatcher) HandleDeviceEvent(ctx context.Context, deviceID string, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventDeviceRegister:
		// Identity was already resolved and the session registered during
		// hub.Hub.AcceptDevice; this confirmation frame carries no further
		// action.

	case protocol.EventHealthReport:
		var sample models.HealthSample
		if err := protocol.Decode(env, &sample); err != nil {
			logging.Warn().Str("device_id", deviceID).Err(err).Msg("malformed health:report")
			return
		}
		metrics.HealthReportsTotal.Inc()
		metrics.RecordHubEventDispatched(env.Event, "ok")

	case protocol.EventPlaybackStateUpdate:
		var state models.PlaybackState
		if err := protocol.Decode(env, &state); err != nil {
			logging.Warn().Str("device_id", deviceID).Err(err).Msg("malformed playback:state:update")
			return
		}
		d.playbackMu.Lock()
		d.lastPlayback[deviceID] = state
		d.playbackMu.Unlock()

		mirrored, err := protocol.Marshal(protocol.EventAdminPlaybackState, protocol.AdminPlaybackStatePayload{
			DeviceID:      deviceID,
			PlaybackState: state,
		})
		if err != nil {
			return
		}
		d.hub.BroadcastToAdmins(mirrored, hub.QueueStream)
		metrics.RecordHubEventDispatched(env.Event, "ok")

	case protocol.EventScreenshotUpload:
		var payload protocol.ScreenshotUploadPayload
		if err := protocol.Decode(env, &payload); err != nil {
			logging.Warn().Str("device_id", deviceID).Err(err).Msg("malformed screenshot:upload")
			return
		}
		if d.shots != nil {
			shot := models.Screenshot{
				DeviceStableID: deviceID,
				CurrentURL:     payload.CurrentURL,
				ImageJPEGBase:  payload.Image,
				CreatedAt:      time.Now(),
			}
			if err := d.shots.Store(ctx, shot); err != nil {
				logging.Warn().Str("device_id", deviceID).Err(err).Msg("screenshot upload failed")
				metrics.RecordScreenshotUpload("error")
				return
			}
		}
		metrics.RecordScreenshotUpload("ok")

	case protocol.EventScreencastFrame:
		var frame protocol.ScreencastFramePayload
		if err := protocol.Decode(env, &frame); err != nil {
			return
		}
		if d.screencast != nil {
			d.screencast.Forward(deviceID, frame)
		} else {
			d.hub.RelayScreencastFrame(deviceID, frame)
		}

	case protocol.EventErrorReport:
		var payload protocol.ErrorReportPayload
		if err := protocol.Decode(env, &payload); err != nil {
			return
		}
		d.recordAudit(ctx, models.LogEntry{
			Timestamp: time.Now(),
			Level:     models.LogLevelWarning,
			Message:   payload.Message,
			DeviceID:  deviceID,
			Source:    "device",
			AdditionalData: payload.Context,
		})

	default:
		logging.Warn().Str("device_id", deviceID).Str("event", env.Event).Msg("unrecognized device event")
	}
}

// HandleAdminCommand forwards an operator-issued command event on to its
// addressed device, per spec §4.3's routing contract. The Hub has already
// confirmed the sender holds operator permission and that the event is a
// command event before calling this method.
func (d *Dispatcher) HandleAdminCommand(ctx context.Context, adminID, targetDeviceID string, env protocol.Envelope) {
	err := d.hub.RouteToDevice(targetDeviceID, env, commandQueue(env.Event))
	outcome := "ok"
	if err != nil {
		outcome = "device_offline"
	}
	metrics.RecordHubEventDispatched(env.Event, outcome)
	d.recordAudit(ctx, models.LogEntry{
		Timestamp: time.Now(),
		Level:     models.LogLevelInfo,
		Message:   "admin command: " + env.Event,
		DeviceID:  targetDeviceID,
		Source:    "admin:" + adminID,
	})

	if env.Event == protocol.EventDeviceRestart && d.restarter != nil {
		go func(deviceID string) {
			restartCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := d.restarter.Restart(restartCtx, deviceID); err != nil {
				logging.Warn().Str("device_id", deviceID).Err(err).Msg("container restart nudge failed")
			}
		}(targetDeviceID)
	}
}

func (d *Dispatcher) recordAudit(ctx context.Context, entry models.LogEntry) {
	if d.audit == nil {
		return
	}
	d.audit.Record(ctx, entry)
}
