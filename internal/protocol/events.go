// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol implements the bidirectional, event-typed wire protocol
// between the Hub and its device/admin sessions, per spec §4.4.
//
// Every message is a JSON envelope `{event, payload}`. Dispatch replaces
// reflection with a small typed registry, per the redesign note in spec §9
// ("dynamic dispatch on event kind... a central dispatcher routes each
// variant to a typed handler. Avoid reflection.").
package protocol

// Event names form the wire contract in spec §4.4. Unknown fields in any
// payload must be ignored by both sides; new events are additive.
const (
	// Server -> Device
	EventContentUpdate     = "content:update"
	EventConfigUpdate      = "config:update"
	EventDisplayNavigate   = "display:navigate"
	EventDisplayRefresh    = "display:refresh"
	EventScreenshotRequest = "screenshot:request"
	EventDeviceRestart     = "device:restart"
	EventRemoteClick       = "remote:click"
	EventRemoteType        = "remote:type"
	EventRemoteKey         = "remote:key"
	EventRemoteScroll      = "remote:scroll"
	EventPlaylistPause     = "playlist:pause"
	EventPlaylistResume    = "playlist:resume"
	EventPlaylistNext      = "playlist:next"
	EventPlaylistPrevious  = "playlist:previous"
	EventScreencastStart   = "screencast:start"
	EventScreencastStop    = "screencast:stop"

	// Device -> Server
	EventDeviceRegister      = "device:register"
	EventHealthReport        = "health:report"
	EventPlaybackStateUpdate = "playback:state:update"
	EventScreenshotUpload    = "screenshot:upload"
	EventScreencastFrame     = "screencast:frame"
	EventErrorReport         = "error:report"

	// Server -> Admin
	EventAdminDeviceStatus    = "admin:device:status"
	EventAdminPlaybackState   = "admin:playback:state"
	EventAdminScreencastFrame = "admin:screencast:frame"
)

// commandEvents are the events an admin may send that are addressed to a
// device and must be authorized by the operator role, per SPEC_FULL §4.10.
var commandEvents = map[string]bool{
	EventContentUpdate:     true,
	EventConfigUpdate:      true,
	EventDisplayNavigate:   true,
	EventDisplayRefresh:    true,
	EventScreenshotRequest: true,
	EventDeviceRestart:     true,
	EventRemoteClick:       true,
	EventRemoteType:        true,
	EventRemoteKey:         true,
	EventRemoteScroll:      true,
	EventPlaylistPause:     true,
	EventPlaylistResume:    true,
	EventPlaylistNext:      true,
	EventPlaylistPrevious:  true,
	EventScreencastStart:   true,
	EventScreencastStop:    true,
}

// IsCommandEvent reports whether event is an admin-issued command addressed
// to a device, as opposed to a read-only subscription event.
func IsCommandEvent(event string) bool {
	return commandEvents[event]
}
