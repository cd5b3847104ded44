// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authz implements the two-role admin authorization model from
// SPEC_FULL §4.10: `operator` (full command set) and `viewer` (read-only
// subscriber). Every command event an admin session issues, and every
// write route the REST gateway exposes, is checked here before it reaches
// the Hub or License Service.
package authz

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Role is one of the two admin roles SPEC_FULL §4.10 defines.
type Role string

const (
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Config selects where the policy comes from and how enforcement
// decisions are cached.
type Config struct {
	// PolicyPath, if set, loads policy from an operator-editable CSV file
	// instead of the embedded default, with auto-reload on change.
	PolicyPath     string
	ReloadInterval time.Duration
	CacheTTL       time.Duration
}

// DefaultConfig returns the embedded-policy, 5-minute-cache default.
func DefaultConfig() Config {
	return Config{ReloadInterval: 30 * time.Second, CacheTTL: 5 * time.Minute}
}

// Enforcer wraps a casbin enforcer with a short-lived decision cache, per
// the teacher's own authz package.
type Enforcer struct {
	cfg      Config
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
}

// New constructs an Enforcer, loading policy from cfg.PolicyPath if set,
// otherwise from the embedded default.
func New(cfg Config) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("authz: load model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		adapter := fileadapter.NewAdapter(cfg.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
		if err == nil && cfg.ReloadInterval > 0 {
			enforcer.StartAutoLoadPolicy(cfg.ReloadInterval)
		}
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("authz: create enforcer: %w", err)
	}

	return &Enforcer{cfg: cfg, enforcer: enforcer, cache: newDecisionCache(cfg.CacheTTL)}, nil
}

// loadEmbeddedPolicy parses and loads the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 4 || strings.TrimSpace(parts[0]) != "p" {
			continue
		}
		sub := strings.TrimSpace(parts[1])
		obj := strings.TrimSpace(parts[2])
		act := strings.TrimSpace(parts[3])
		if _, err := enforcer.AddPolicy(sub, obj, act); err != nil {
			return fmt.Errorf("authz: add policy %s/%s/%s: %w", sub, obj, act, err)
		}
	}
	return nil
}

// CanIssueEvent reports whether role may send event to a device, per the
// policy table. The Hub's admin-event dispatch path does not call it: it
// admits a command event (protocol.IsCommandEvent) only from a session
// holding hub.PermissionOperator.
func (e *Enforcer) CanIssueEvent(role Role, event string) bool {
	return e.enforce(string(role), event, "issue")
}

// CanAccessRoute reports whether role may call method on the chi route
// pattern (e.g. "/api/v1/devices/{id}"), not the realized URL — callers
// should pass chi.RouteContext(r.Context()).RoutePattern(), not r.URL.Path.
func (e *Enforcer) CanAccessRoute(role Role, pattern, method string) bool {
	return e.enforce(string(role), pattern, strings.ToUpper(method))
}

func (e *Enforcer) enforce(sub, obj, act string) bool {
	if allowed, ok := e.cache.get(sub, obj, act); ok {
		return allowed
	}
	allowed, err := e.enforcer.Enforce(sub, obj, act)
	if err != nil {
		return false
	}
	e.cache.set(sub, obj, act, allowed)
	return allowed
}

// Close stops policy auto-reload and the decision cache's cleanup loop.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
	e.cache.stop()
}
