// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnforcer(t *testing.T) *Enforcer {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestOperatorCanIssueAllCommandEvents(t *testing.T) {
	e := newTestEnforcer(t)

	events := []string{
		"content:update", "config:update", "display:navigate", "display:refresh",
		"screenshot:request", "device:restart", "remote:click", "remote:type",
		"remote:key", "remote:scroll", "playlist:pause", "playlist:resume",
		"playlist:next", "playlist:previous", "screencast:start", "screencast:stop",
	}
	for _, ev := range events {
		assert.True(t, e.CanIssueEvent(RoleOperator, ev), "operator should issue %s", ev)
	}
}

func TestViewerCannotIssueCommandEvents(t *testing.T) {
	e := newTestEnforcer(t)
	assert.False(t, e.CanIssueEvent(RoleViewer, "content:update"))
	assert.False(t, e.CanIssueEvent(RoleViewer, "device:restart"))
}

func TestUnknownEventDenied(t *testing.T) {
	e := newTestEnforcer(t)
	assert.False(t, e.CanIssueEvent(RoleOperator, "not:a:real:event"))
}

func TestRouteAccessByRole(t *testing.T) {
	e := newTestEnforcer(t)

	assert.True(t, e.CanAccessRoute(RoleOperator, "/api/v1/devices", "POST"))
	assert.True(t, e.CanAccessRoute(RoleOperator, "/api/v1/devices/{id}", "DELETE"))
	assert.True(t, e.CanAccessRoute(RoleViewer, "/api/v1/devices", "GET"))

	assert.False(t, e.CanAccessRoute(RoleViewer, "/api/v1/devices", "POST"))
	assert.False(t, e.CanAccessRoute(RoleViewer, "/api/v1/devices/{id}", "DELETE"))
}

func TestRouteAccessIsCaseInsensitiveOnMethod(t *testing.T) {
	e := newTestEnforcer(t)
	assert.True(t, e.CanAccessRoute(RoleOperator, "/api/v1/devices", "post"))
}

func TestDecisionCacheServesRepeatedDecisions(t *testing.T) {
	e := newTestEnforcer(t)

	first := e.CanIssueEvent(RoleOperator, "content:update")
	second := e.CanIssueEvent(RoleOperator, "content:update")
	assert.Equal(t, first, second)
	assert.True(t, second)

	_, cached := e.cache.get(string(RoleOperator), "content:update", "issue")
	assert.True(t, cached)
}
