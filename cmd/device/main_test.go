// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalmast/beacon/internal/protocol"
)

func TestBuildWSURLRewritesSchemeAndSetsQuery(t *testing.T) {
	got, err := buildWSURL("http://localhost:8080", "tok-123")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws?role=device&token=tok-123", got)

	got, err = buildWSURL("https://signage.example.com", "tok-456")
	require.NoError(t, err)
	assert.Equal(t, "wss://signage.example.com/ws?role=device&token=tok-456", got)
}

func TestBuildWSURLPreservesExplicitWSScheme(t *testing.T) {
	got, err := buildWSURL("wss://signage.example.com:9443", "tok")
	require.NoError(t, err)
	assert.Equal(t, "wss://signage.example.com:9443/ws?role=device&token=tok", got)
}

func TestRespectConstraintsDefaultsTrueWhenOmitted(t *testing.T) {
	env, err := protocol.Marshal(protocol.EventPlaylistNext, protocol.PlaylistControlPayload{})
	require.NoError(t, err)
	assert.True(t, respectConstraints(env))
}

func TestRespectConstraintsHonorsExplicitFalse(t *testing.T) {
	respect := false
	env, err := protocol.Marshal(protocol.EventPlaylistNext, protocol.PlaylistControlPayload{RespectConstraints: &respect})
	require.NoError(t, err)
	assert.False(t, respectConstraints(env))
}

func TestEnvOrFallsBackWhenUnset(t *testing.T) {
	assert.Equal(t, "fallback", envOr("BEACON_TEST_UNSET_VAR_XYZ", "fallback"))
}
