// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/signalmast/beacon/internal/models"
)

// Envelope is the wire shape of every message: `{event, payload}`. Payload
// is kept as raw JSON so the dispatcher can decode it into the specific
// typed struct for Event without a reflection-based registry walk.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal encodes event and payload into a wire envelope.
func Marshal(event string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: marshal payload for %s: %w", event, err)
	}
	return Envelope{Event: event, Payload: raw}, nil
}

// Decode unmarshals e.Payload into dst. Unknown fields in the payload are
// silently ignored (the default behavior of encoding/json and goccy/go-json
// alike), matching the additive-payload contract in spec §4.4/§6.
func Decode(e Envelope, dst interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("protocol: decode payload for %s: %w", e.Event, err)
	}
	return nil
}

// --- Typed payloads, named after the event they accompany. ---

// ContentUpdatePayload replaces a device's playlist in full.
type ContentUpdatePayload struct {
	PlaylistID string                `json:"playlistId"`
	Items      []models.PlaylistItem `json:"items"`
	// Broadcast, when true, marks this update as a transient broadcast
	// override rather than a regular playlist assignment, per spec §4.7.
	Broadcast bool `json:"broadcast,omitempty"`
}

// ConfigUpdatePayload is a partial device configuration patch.
type ConfigUpdatePayload = models.DeviceConfigPatch

// NavigatePayload carries a one-shot navigation target.
type NavigatePayload struct {
	URL string `json:"url"`
}

// ClickPayload synthesizes a click in device-pixel coordinates.
type ClickPayload struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Button string `json:"button,omitempty"`
}

// TypePayload synthesizes keyboard input, optionally focusing a selector
// first.
type TypePayload struct {
	Text     string `json:"text"`
	Selector string `json:"selector,omitempty"`
}

// KeyPayload synthesizes a single keypress with optional modifiers.
type KeyPayload struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// ScrollPayload performs an absolute scroll.
type ScrollPayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PlaylistControlPayload accompanies pause/resume/next/previous.
type PlaylistControlPayload struct {
	RespectConstraints *bool `json:"respectConstraints,omitempty"`
}

// RegisterPayload confirms device identity immediately after connect.
type RegisterPayload struct {
	Token string `json:"token"`
}

// HealthReportPayload is the device's periodic resource snapshot.
type HealthReportPayload = models.HealthSample

// ScreenshotUploadPayload carries a base64 JPEG capture.
type ScreenshotUploadPayload struct {
	Image      string `json:"image"`
	CurrentURL string `json:"currentUrl,omitempty"`
}

// ScreencastFrameMetadata describes one relayed screencast frame.
type ScreencastFrameMetadata struct {
	SessionID   string `json:"sessionId"`
	TimestampMs int64  `json:"timestampMs"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// ScreencastFramePayload is a single JPEG frame, base64-encoded.
type ScreencastFramePayload struct {
	Data     string                  `json:"data"`
	Metadata ScreencastFrameMetadata `json:"metadata"`
}

// ErrorReportPayload is non-fatal device telemetry describing a recovered
// failure (navigation error, browser crash, etc.), per spec §4.7/§7.
type ErrorReportPayload struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// AdminDeviceStatusPayload mirrors a device's connect/disconnect transition
// to subscribed admins.
type AdminDeviceStatusPayload struct {
	DeviceID string `json:"deviceId"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"lastSeen"`
}

// AdminPlaybackStatePayload mirrors a device's playback state to admins.
type AdminPlaybackStatePayload struct {
	DeviceID string `json:"deviceId"`
	models.PlaybackState
}

// AdminScreencastFramePayload relays one frame from a device to admins.
type AdminScreencastFramePayload struct {
	DeviceID string                  `json:"deviceId"`
	Data     string                  `json:"data"`
	Metadata ScreencastFrameMetadata `json:"metadata"`
}
