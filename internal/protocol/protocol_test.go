// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDecodeRoundTrip(t *testing.T) {
	env, err := Marshal(EventRemoteClick, ClickPayload{X: 10, Y: 20, Button: "left"})
	require.NoError(t, err)
	assert.Equal(t, EventRemoteClick, env.Event)

	var got ClickPayload
	require.NoError(t, Decode(env, &got))
	assert.Equal(t, 10, got.X)
	assert.Equal(t, 20, got.Y)
	assert.Equal(t, "left", got.Button)
}

func TestDecodeEmptyPayloadIsNoop(t *testing.T) {
	env := Envelope{Event: EventScreenshotRequest}
	var dst ClickPayload
	assert.NoError(t, Decode(env, &dst))
}

func TestDecodeMalformedPayloadErrors(t *testing.T) {
	env := Envelope{Event: EventRemoteClick, Payload: []byte("{not json")}
	var dst ClickPayload
	assert.Error(t, Decode(env, &dst))
}

func TestIsCommandEvent(t *testing.T) {
	assert.True(t, IsCommandEvent(EventContentUpdate))
	assert.True(t, IsCommandEvent(EventScreencastStop))
	assert.False(t, IsCommandEvent(EventHealthReport))
	assert.False(t, IsCommandEvent(EventAdminDeviceStatus))
	assert.False(t, IsCommandEvent("unknown:event"))
}

func TestAdminPlaybackStatePayloadEmbedsPlaybackState(t *testing.T) {
	env, err := Marshal(EventAdminPlaybackState, AdminPlaybackStatePayload{
		DeviceID: "dev-1",
	})
	require.NoError(t, err)

	var got AdminPlaybackStatePayload
	require.NoError(t, Decode(env, &got))
	assert.Equal(t, "dev-1", got.DeviceID)
}
