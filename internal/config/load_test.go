// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	t.Setenv("BEACON_AUTH__JWT_SECRET", "test-secret")
	t.Setenv("BEACON_LICENSE__INSTALLATION_SECRET", "install-secret")

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", settings.Server.Addr)
	assert.Equal(t, 90, int(settings.Audit.RetentionDays))
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("BEACON_AUTH__JWT_SECRET", "test-secret")
	t.Setenv("BEACON_LICENSE__INSTALLATION_SECRET", "install-secret")

	path := writeYAML(t, "server:\n  addr: \":9090\"\naudit:\n  retention_days: 30\n")
	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", settings.Server.Addr)
	assert.Equal(t, 30, settings.Audit.RetentionDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv("BEACON_AUTH__JWT_SECRET", "test-secret")
	t.Setenv("BEACON_LICENSE__INSTALLATION_SECRET", "install-secret")
	t.Setenv("BEACON_SERVER__ADDR", ":7777")

	path := writeYAML(t, "server:\n  addr: \":9090\"\n")
	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", settings.Server.Addr)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("BEACON_AUTH__JWT_SECRET", "test-secret")
	t.Setenv("BEACON_LICENSE__INSTALLATION_SECRET", "install-secret")

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.NoError(t, err)
}
