// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the data structures shared across the Beacon
// control plane: device identity, licensing, playlists, and the transient
// state streamed over the device/admin wire protocol.
package models

import "time"

// DeviceRecord is the persistent identity of one display endpoint.
//
// StableDeviceId is immutable after creation and is the key every other
// component (sessions, broadcast state, audit entries) uses to refer to the
// device. Token is opaque and long-lived; the store only ever holds a
// salted hash of it, never the plaintext, and the plaintext is shown to the
// admin exactly once at creation or rotation time.
type DeviceRecord struct {
	ID                 string    `json:"id"`
	StableDeviceID     string    `json:"stableDeviceId"`
	DisplayName        string    `json:"displayName"`
	TokenHash          string    `json:"-"`
	ViewportW          int       `json:"viewportW"`
	ViewportH          int       `json:"viewportH"`
	KioskMode          bool      `json:"kioskMode"`
	AssignedPlaylistID *string   `json:"assignedPlaylistId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// DeviceConfigPatch is the partial update accepted by `config:update` and by
// the admin REST device-config endpoint. Nil fields are left untouched.
type DeviceConfigPatch struct {
	DisplayWidth  *int  `json:"displayWidth,omitempty"`
	DisplayHeight *int  `json:"displayHeight,omitempty"`
	KioskMode     *bool `json:"kioskMode,omitempty"`
}

// Content is an external, opaque collaborator: the core never interprets
// its fields beyond carrying the URL into a PlaylistItem.
type Content struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}
