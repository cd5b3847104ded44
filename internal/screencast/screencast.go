// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package screencast is a thin relay in front of internal/hub's subscriber
// bookkeeping (spec §4.5): it rate-limits how fast frames from one device
// are handed to the Hub for fan-out, with one limiter per device shared by
// all of that device's admin subscribers, independent of the Hub's own
// per-admin stream-queue backpressure. It keeps no per-admin limiter.
package screencast

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/signalmast/beacon/internal/protocol"
)

// Relayer is the subset of internal/hub.Hub the relay depends on.
type Relayer interface {
	RelayScreencastFrame(deviceID string, frame protocol.ScreencastFramePayload)
}

// Config tunes the per-subscriber limiter.
type Config struct {
	// FramesPerSecond bounds how many frames per second of a single device
	// are relayed to its subscribers; default 15.
	FramesPerSecond float64
	// Burst allows a short burst above the steady rate; default 5.
	Burst int
}

// Relay forwards device screencast:frame events to the Hub, applying a
// per-device token-bucket limiter. The Hub itself decides which
// admins are subscribed (spec §4.5: "neither side holds a reference to the
// other"); the Relay only worries about the rate.
type Relay struct {
	hub Relayer
	cfg Config

	mu       sync.Mutex
	lastSeen map[string]int64 // deviceID -> last accepted frame's timestampMs
	limiters map[string]*rate.Limiter
}

// New constructs a Relay. A zero Config gets sensible defaults.
func New(hub Relayer, cfg Config) *Relay {
	if cfg.FramesPerSecond <= 0 {
		cfg.FramesPerSecond = 15
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	return &Relay{
		hub:      hub,
		cfg:      cfg,
		lastSeen: make(map[string]int64),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Forward accepts one frame from deviceID and relays it to subscribers, per
// spec §4.5: out-of-order frames (timestampMs not nondecreasing) are
// dropped, and the forwarding rate is capped so the Hub's per-admin stream
// queue is never the first thing to overflow.
func (r *Relay) Forward(deviceID string, frame protocol.ScreencastFramePayload) {
	r.mu.Lock()
	last, seen := r.lastSeen[deviceID]
	if seen && frame.Metadata.TimestampMs < last {
		r.mu.Unlock()
		return
	}
	r.lastSeen[deviceID] = frame.Metadata.TimestampMs

	limiter, ok := r.limiters[deviceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.cfg.FramesPerSecond), r.cfg.Burst)
		r.limiters[deviceID] = limiter
	}
	r.mu.Unlock()

	if !limiter.Allow() {
		return
	}
	r.hub.RelayScreencastFrame(deviceID, frame)
}

// Reset drops per-device rate-limit and ordering state, so the next frame
// from deviceID starts with a fresh token bucket and no stale ordering
// floor. internal/dispatch does not call it on screencast:stop or on
// disconnect; that state persists for the life of the Relay.
func (r *Relay) Reset(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lastSeen, deviceID)
	delete(r.limiters, deviceID)
}
