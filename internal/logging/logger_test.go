// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAndLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Msg("should be suppressed")
	assert.Empty(t, buf.String())

	Warn().Msg("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNewTestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(&buf)
	logger.Info().Str("k", "v").Msg("hello")
	require.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestSetLevelString(t *testing.T) {
	SetLevelString("error")
	defer SetLevelString("info")
	assert.True(t, true) // level change is global state; just exercise the call path
}
