// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dockerctl implements the optional Device Restart Orchestration
// described in SPEC_FULL §4.14: a thin wrapper over the Docker Engine API
// that restarts a device's kiosk container when an admin issues a
// device:restart command (internal/dispatch starts the restart right after
// routing the command, without waiting for any device acknowledgement),
// grounded on the Docker client
// wiring pattern used for container lifecycle management in the example
// pack (docker/client + docker/go-connections).
//
// This is a convenience for self-hosted deployments that run one
// container per physical display; it is never on the path the Hub's
// device:restart command itself takes (that frame reaches the device over
// the WebSocket regardless of whether Docker is configured), so a nil or
// misconfigured Controller only disables the extra nudge, never the
// command delivery.
package dockerctl

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/signalmast/beacon/internal/logging"
)

// Controller restarts named containers through the Docker Engine API.
type Controller struct {
	client  *client.Client
	timeout time.Duration
}

// New connects to the Docker daemon at host (empty string uses the
// environment default, e.g. DOCKER_HOST or the local unix socket). Returns
// nil, nil when disabled is true, so callers can wire a Controller
// unconditionally and treat a nil *Controller as "no-op" throughout
// cmd/server.
func New(host string, disabled bool) (*Controller, error) {
	if disabled {
		return nil, nil
	}

	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("dockerctl: create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("dockerctl: connect to docker: %w", err)
	}

	return &Controller{client: cli, timeout: 30 * time.Second}, nil
}

// Restart restarts containerName, fire-and-forget: callers should run it in
// its own goroutine and never let its outcome gate the device:restart
// protocol flow, per SPEC_FULL §4.14.
func (c *Controller) Restart(ctx context.Context, containerName string) error {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	timeoutSeconds := int(c.timeout.Seconds())
	if err := c.client.ContainerRestart(ctx, containerName, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		return fmt.Errorf("dockerctl: restart %s: %w", containerName, err)
	}
	logging.Info().Str("container", containerName).Msg("device container restarted")
	return nil
}

// Close releases the underlying Docker API client.
func (c *Controller) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
