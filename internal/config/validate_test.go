// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	s := DefaultSettings()
	s.Auth.JWTSecret = "test-secret"
	s.License.InstallationSecret = "install-secret"
	return s
}

func TestValidateAcceptsDefaultsWithRequiredSecrets(t *testing.T) {
	assert.NoError(t, validSettings().Validate())
}

func TestValidateRejectsMissingJWTSecret(t *testing.T) {
	s := validSettings()
	s.Auth.JWTSecret = ""
	assert.Error(t, s.Validate())
}

func TestValidateRejectsMissingInstallationSecret(t *testing.T) {
	s := validSettings()
	s.License.InstallationSecret = ""
	assert.Error(t, s.Validate())
}

func TestValidateRejectsNonPositiveStaleAfter(t *testing.T) {
	s := validSettings()
	s.Server.StaleAfter = 0
	assert.Error(t, s.Validate())
}

func TestValidateRejectsNegativeRetentionDays(t *testing.T) {
	s := validSettings()
	s.Audit.RetentionDays = -1
	assert.Error(t, s.Validate())
}

func TestValidateJoinsMultipleFailures(t *testing.T) {
	s := validSettings()
	s.Auth.JWTSecret = ""
	s.License.InstallationSecret = ""
	err := s.Validate()
	assert.ErrorContains(t, err, "jwt_secret")
	assert.ErrorContains(t, err, "installation_secret")
}

func TestValidateAllowsZeroGraceWindow(t *testing.T) {
	s := validSettings()
	s.License.DefaultGraceWindow = 0
	assert.NoError(t, s.Validate())
}

func TestValidateRejectsNegativeGraceWindow(t *testing.T) {
	s := validSettings()
	s.License.DefaultGraceWindow = -time.Hour
	assert.Error(t, s.Validate())
}
