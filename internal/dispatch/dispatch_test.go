// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/apierrors"
	"github.com/signalmast/beacon/internal/hub"
	"github.com/signalmast/beacon/internal/models"
	"github.com/signalmast/beacon/internal/protocol"
)

type fakeRouter struct {
	routed    []string
	broadcast []protocol.Envelope
	relayed   []protocol.ScreencastFramePayload
	routeErr  error
}

func (f *fakeRouter) RouteToDevice(deviceID string, env protocol.Envelope, _ hub.QueueKind) error {
	f.routed = append(f.routed, deviceID+":"+env.Event)
	return f.routeErr
}

func (f *fakeRouter) BroadcastToAdmins(env protocol.Envelope, _ hub.QueueKind) {
	f.broadcast = append(f.broadcast, env)
}

func (f *fakeRouter) RelayScreencastFrame(deviceID string, frame protocol.ScreencastFramePayload) {
	f.relayed = append(f.relayed, frame)
}

type fakeShots struct {
	stored []models.Screenshot
	err    error
}

func (f *fakeShots) Store(_ context.Context, shot models.Screenshot) error {
	f.stored = append(f.stored, shot)
	return f.err
}

type fakeAudit struct {
	entries []models.LogEntry
}

func (f *fakeAudit) Record(_ context.Context, entry models.LogEntry) {
	f.entries = append(f.entries, entry)
}

func TestHandleDeviceEvent_PlaybackStateMirrored(t *testing.T) {
	router := &fakeRouter{}
	d := New(router, nil, nil, nil)

	env, err := protocol.Marshal(protocol.EventPlaybackStateUpdate, models.PlaybackState{
		IsPlaying:  true,
		PlaylistID: "pl-1",
	})
	require.NoError(t, err)

	d.HandleDeviceEvent(context.Background(), "dev-1", env)

	require.Len(t, router.broadcast, 1)
	require.Equal(t, protocol.EventAdminPlaybackState, router.broadcast[0].Event)

	var payload protocol.AdminPlaybackStatePayload
	require.NoError(t, protocol.Decode(router.broadcast[0], &payload))
	require.Equal(t, "dev-1", payload.DeviceID)
	require.True(t, payload.IsPlaying)
}

func TestHandleDeviceEvent_ScreenshotUploadStored(t *testing.T) {
	shots := &fakeShots{}
	d := New(&fakeRouter{}, nil, shots, nil)

	env, err := protocol.Marshal(protocol.EventScreenshotUpload, protocol.ScreenshotUploadPayload{
		Image:      "base64data",
		CurrentURL: "https://example.com",
	})
	require.NoError(t, err)

	d.HandleDeviceEvent(context.Background(), "dev-1", env)

	require.Len(t, shots.stored, 1)
	require.Equal(t, "dev-1", shots.stored[0].DeviceStableID)
	require.Equal(t, "https://example.com", shots.stored[0].CurrentURL)
}

func TestHandleDeviceEvent_ScreencastFrameRelayed(t *testing.T) {
	router := &fakeRouter{}
	d := New(router, nil, nil, nil)

	env, err := protocol.Marshal(protocol.EventScreencastFrame, protocol.ScreencastFramePayload{
		Data: "frame-bytes",
		Metadata: protocol.ScreencastFrameMetadata{
			SessionID:   "s1",
			TimestampMs: 123,
		},
	})
	require.NoError(t, err)

	d.HandleDeviceEvent(context.Background(), "dev-1", env)

	require.Len(t, router.relayed, 1)
	require.Equal(t, "frame-bytes", router.relayed[0].Data)
}

func TestHandleDeviceEvent_ErrorReportAudited(t *testing.T) {
	audit := &fakeAudit{}
	d := New(&fakeRouter{}, audit, nil, nil)

	env, err := protocol.Marshal(protocol.EventErrorReport, protocol.ErrorReportPayload{
		Message: "navigation failed",
		Context: "timeout",
	})
	require.NoError(t, err)

	d.HandleDeviceEvent(context.Background(), "dev-1", env)

	require.Len(t, audit.entries, 1)
	require.Equal(t, models.LogLevelWarning, audit.entries[0].Level)
	require.Equal(t, "dev-1", audit.entries[0].DeviceID)
}

func TestHandleAdminCommand_RoutesAndAudits(t *testing.T) {
	router := &fakeRouter{}
	audit := &fakeAudit{}
	d := New(router, audit, nil, nil)

	env, err := protocol.Marshal(protocol.EventDisplayRefresh, struct{}{})
	require.NoError(t, err)

	d.HandleAdminCommand(context.Background(), "admin-1", "dev-1", env)

	require.Equal(t, []string{"dev-1:display:refresh"}, router.routed)
	require.Len(t, audit.entries, 1)
	require.Equal(t, "dev-1", audit.entries[0].DeviceID)
}

func TestHandleAdminCommand_DeviceOfflineStillAudited(t *testing.T) {
	router := &fakeRouter{routeErr: apierrors.DeviceOffline("dev-404")}
	audit := &fakeAudit{}
	d := New(router, audit, nil, nil)

	env, err := protocol.Marshal(protocol.EventDeviceRestart, struct{}{})
	require.NoError(t, err)

	d.HandleAdminCommand(context.Background(), "admin-1", "dev-404", env)
	require.Equal(t, []string{"dev-404:device:restart"}, router.routed)
	require.Len(t, audit.entries, 1)
	require.Equal(t, "dev-404", audit.entries[0].DeviceID)
}
