// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024

	controlQueueSize = 16
	streamQueueSize  = 64
)

// Role distinguishes the two session kinds the Hub accepts, per spec §4.3.
type Role string

const (
	RoleDevice Role = "device"
	RoleAdmin  Role = "admin"
)

// Permission gates which admin sessions may issue command events, per
// SPEC_FULL §4.10. Device sessions carry no permission.
type Permission string

const (
	PermissionViewer   Permission = "viewer"
	PermissionOperator Permission = "operator"
)

// CloseReason is recorded in logs and surfaced to metrics when a session is
// torn down, per spec §4.3 and §7.
type CloseReason string

const (
	CloseSuperseded       CloseReason = "superseded"
	CloseStale            CloseReason = "stale"
	CloseControlFull      CloseReason = "control_queue_full"
	CloseClientDisconnect CloseReason = "client_disconnect"
	CloseShutdown         CloseReason = "shutdown"
	CloseDeviceDeleted    CloseReason = "device_deleted"
	CloseLicenseRevoked   CloseReason = "license_revoked"
)

// sessionIDCounter hands out monotonically increasing IDs so sessions sort
// deterministically regardless of map iteration order, mirroring the
// client-ID ordering scheme used for broadcast fan-out.
var sessionIDCounter atomic.Uint64

// Session is a registered, full-duplex connection for either a device or an
// admin. It owns two outbound queues per the backpressure policy in spec
// §4.3: control (small, never silently drops a frame — a full control queue
// closes the session) and stream (bounded, drops the oldest frame on
// overflow).
type Session struct {
	seq uint64

	ID         string
	Role       Role
	Permission Permission // admin sessions only

	hub  *Hub
	conn *websocket.Conn

	control chan protocol.Envelope
	stream  chan protocol.Envelope

	closeOnce sync.Once
	closed    chan struct{}

	lastSeen atomic.Int64 // unix nanoseconds
}

func newSession(h *Hub, id string, role Role, perm Permission, conn *websocket.Conn) *Session {
	s := &Session{
		seq:        sessionIDCounter.Add(1),
		ID:         id,
		Role:       role,
		Permission: perm,
		hub:        h,
		conn:       conn,
		control:    make(chan protocol.Envelope, controlQueueSize),
		stream:     make(chan protocol.Envelope, streamQueueSize),
		closed:     make(chan struct{}),
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// staleSince reports whether no inbound traffic has arrived within window.
func (s *Session) staleSince(window time.Duration) bool {
	last := time.Unix(0, s.lastSeen.Load())
	return time.Since(last) > window
}

// enqueueControl attempts a non-blocking send. A full control queue means
// the session can no longer keep up with control traffic and is considered
// unhealthy; the caller (Hub) closes it rather than silently drop the
// frame, per spec §4.3.
func (s *Session) enqueueControl(env protocol.Envelope) bool {
	select {
	case s.control <- env:
		return true
	default:
		return false
	}
}

// enqueueStream sends on the stream queue, dropping the single oldest
// buffered frame first if the queue is full. Never blocks. Reports
// whether a prior frame was dropped to make room.
func (s *Session) enqueueStream(env protocol.Envelope) bool {
	dropped := false
	for {
		select {
		case s.stream <- env:
			return dropped
		default:
		}
		select {
		case <-s.stream:
			dropped = true
		default:
		}
	}
}

// Close tears down the session exactly once, closing the underlying
// connection and signaling both pumps to exit.
func (s *Session) Close(reason CloseReason) {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.conn != nil {
			_ = s.conn.Close()
		}
		logging.Info().
			Str("session_id", s.ID).
			Str("role", string(s.Role)).
			Str("reason", string(reason)).
			Msg("session closed")
	})
}

// Start launches the read and write pumps. Must be called once, after the
// session has been registered with its Hub.
func (s *Session) Start() {
	go s.writePump()
	go s.readPump()
}

func (s *Session) readPump() {
	defer s.hub.unregister(s, CloseClientDisconnect)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env protocol.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("session_id", s.ID).Msg("unexpected websocket close")
			}
			return
		}
		s.touch()
		s.hub.dispatchInbound(s, env)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.closed:
			return

		// Control frames drain first: spec order guarantees FIFO delivery
		// within a session, and control traffic (license denials, commands)
		// must never wait behind a backlog of stream frames.
		case env := <-s.control:
			if !s.writeEnvelope(env) {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		default:
			select {
			case <-s.closed:
				return
			case env := <-s.control:
				if !s.writeEnvelope(env) {
					return
				}
			case env := <-s.stream:
				if !s.writeEnvelope(env) {
					return
				}
			case <-ticker.C:
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

func (s *Session) writeEnvelope(env protocol.Envelope) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(env); err != nil {
		logging.Warn().Err(err).Str("session_id", s.ID).Msg("write failed")
		return false
	}
	return true
}
