// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package supervisor builds the process-level suture.v4 supervisor tree
// that owns every background sweeper the core depends on: the Session
// Hub's stale-connection sweep, the License Service's grace-window
// expiry sweep, the Broadcast Coordinator's override expiry sweep, and
// the audit log's retention compactor. Grounded on the three-layer
// failure-isolated tree built in the example pack's own supervisor
// package (root -> data/messaging/api child supervisors), adapted here
// to Beacon's own four concerns (sessions, licensing, audit, and the admin
// HTTP gateway) so a crash in one subsystem never takes another down with
// it.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig tunes the root supervisor's restart policy.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig matches suture's own built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is Beacon's process supervisor: a root with four independently
// restarting children, one per sweeper concern plus one for the admin HTTP
// gateway.
type Tree struct {
	root      *suture.Supervisor
	sessions  *suture.Supervisor
	licensing *suture.Supervisor
	audit     *suture.Supervisor
	api       *suture.Supervisor
}

// New builds the tree. logger drives suture's own lifecycle event log via
// sutureslog, independent of internal/logging's zerolog sink.
func New(logger *slog.Logger, cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	eventHook := (&sutureslog.Handler{Logger: logger}).MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	root := suture.New("beacon", rootSpec)
	sessions := suture.New("sessions", childSpec)
	licensing := suture.New("licensing", childSpec)
	audit := suture.New("audit", childSpec)
	api := suture.New("api", childSpec)

	root.Add(sessions)
	root.Add(licensing)
	root.Add(audit)
	root.Add(api)

	return &Tree{root: root, sessions: sessions, licensing: licensing, audit: audit, api: api}
}

// AddSessionService adds a service to the session-sweeping layer (the Hub
// stale-connection sweep).
func (t *Tree) AddSessionService(svc suture.Service) suture.ServiceToken {
	return t.sessions.Add(svc)
}

// AddLicensingService adds a service to the licensing layer (the grace-
// window sweep and the broadcast-override expiry sweep).
func (t *Tree) AddLicensingService(svc suture.Service) suture.ServiceToken {
	return t.licensing.Add(svc)
}

// AddAuditService adds a service to the audit layer (the retention
// compactor).
func (t *Tree) AddAuditService(svc suture.Service) suture.ServiceToken {
	return t.audit.Add(svc)
}

// AddAPIService adds a service to the api layer (the admin REST/WebSocket
// gateway's HTTP server).
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve starts the whole tree and blocks until ctx is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a background goroutine, returning a
// channel that receives the final error when it stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport reports services that failed to stop within the
// configured shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
