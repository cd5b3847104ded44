// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// Playlist is an ordered, possibly time-gated set of displayable URLs
// assigned to zero or more devices.
type Playlist struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	IsActive bool           `json:"isActive"`
	Items    []PlaylistItem `json:"items"`
}

// PlaylistItem is one rotation step. DurationSeconds == 0 means "display
// until replaced" when it is the playlist's only item, and falls back to a
// default rotation (see internal/playlist) otherwise.
//
// Invariant: if TimeWindowStart is set, TimeWindowEnd must be set too, and
// both are "HH:MM" in [00:00, 23:59].
type PlaylistItem struct {
	ID              string `json:"id"`
	PlaylistID      string `json:"playlistId"`
	ContentID       string `json:"contentId,omitempty"`
	URL             string `json:"url"`
	DurationSeconds int    `json:"durationSeconds"`
	OrderIndex      int    `json:"orderIndex"`
	TimeWindowStart string `json:"timeWindowStart,omitempty"`
	TimeWindowEnd   string `json:"timeWindowEnd,omitempty"`
	// DaysOfWeek holds 0 (Sunday) through 6 (Saturday). A nil/empty set
	// means the item is eligible every day.
	DaysOfWeek []int `json:"daysOfWeek,omitempty"`
}

// DeviceBroadcastState is persisted while a broadcast override is active on
// a device, so the prior playlist can be restored when it ends.
// internal/broadcast fills SavedItemIndex from the last reported playback
// state and leaves SavedElapsedMs at zero.
type DeviceBroadcastState struct {
	DeviceID        string     `json:"deviceId"`
	SavedPlaylistID string     `json:"savedPlaylistId"`
	SavedItemIndex  int        `json:"savedItemIndex"`
	SavedElapsedMs  int64      `json:"savedElapsedMs"`
	BroadcastURL    string     `json:"broadcastUrl"`
	StartedAt       time.Time  `json:"startedAt"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}
