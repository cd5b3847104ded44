// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package devicehealth samples the local machine's resource utilization for
// the device-side health heartbeat (spec §4.3, §4.8), grounded on gopsutil.
package devicehealth

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/signalmast/beacon/internal/models"
)

// Sampler implements internal/telemetry.HealthSampler using gopsutil.
type Sampler struct {
	// DiskPath is the filesystem path whose usage is reported as the disk
	// percentage. Defaults to "/" when empty.
	DiskPath string
}

// New constructs a Sampler reporting usage for the root filesystem.
func New() *Sampler {
	return &Sampler{DiskPath: "/"}
}

// Sample implements internal/telemetry.HealthSampler.
func (s *Sampler) Sample(ctx context.Context) (models.HealthSample, error) {
	path := s.DiskPath
	if path == "" {
		path = "/"
	}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return models.HealthSample{}, fmt.Errorf("devicehealth: cpu percent: %w", err)
	}
	var cpuPercent float64
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	vmem, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.HealthSample{}, fmt.Errorf("devicehealth: virtual memory: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return models.HealthSample{}, fmt.Errorf("devicehealth: disk usage: %w", err)
	}

	return models.HealthSample{
		CPUPercent:    cpuPercent,
		MemoryPercent: vmem.UsedPercent,
		DiskPercent:   usage.UsedPercent,
	}, nil
}
