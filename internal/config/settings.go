// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config implements Beacon's settings layer (SPEC_FULL §0): koanf-
// layered configuration (struct defaults, then an optional YAML file, then
// environment overrides) with fsnotify-driven hot reload of the settings
// file through Holder. cmd/server reads its settings once with Load and does
// not use Holder, so a changed file takes effect there only on restart.
package config

import "time"

// ServerSettings configures the listening address and Hub tuning.
type ServerSettings struct {
	Addr       string        `koanf:"addr"`
	StaleAfter time.Duration `koanf:"stale_after"`
}

// RedisSettings points at the Redis instance backing the License Service's
// device counters and broadcast override state.
type RedisSettings struct {
	Addr string `koanf:"addr"`
}

// PostgresSettings points at the Device Record Store's database.
type PostgresSettings struct {
	DSN string `koanf:"dsn"`
}

// S3Settings configures the screenshot upload target.
type S3Settings struct {
	Bucket string `koanf:"bucket"`
	Prefix string `koanf:"prefix"`
	Region string `koanf:"region"`
}

// AuthSettings configures admin session tokens.
type AuthSettings struct {
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
}

// LicenseSettings configures the License Enforcement Service.
type LicenseSettings struct {
	InstallationSecret string        `koanf:"installation_secret"`
	DefaultGraceWindow time.Duration `koanf:"default_grace_window"`
}

// AuditSettings configures the sqlite-backed audit log and its retention
// compactor.
type AuditSettings struct {
	Path          string        `koanf:"path"`
	RetentionDays int           `koanf:"retention_days"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// CORSSettings configures the Admin REST Gateway's CORS policy.
type CORSSettings struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitSettings configures httprate limits on the REST gateway's
// sensitive endpoints.
type RateLimitSettings struct {
	AuthRequestsPerMinute int `koanf:"auth_requests_per_minute"`
	WSRequestsPerMinute   int `koanf:"ws_requests_per_minute"`
}

// Settings is the root configuration tree.
type Settings struct {
	Server    ServerSettings    `koanf:"server"`
	Redis     RedisSettings     `koanf:"redis"`
	Postgres  PostgresSettings  `koanf:"postgres"`
	S3        S3Settings        `koanf:"s3"`
	Auth      AuthSettings      `koanf:"auth"`
	License   LicenseSettings   `koanf:"license"`
	Audit     AuditSettings     `koanf:"audit"`
	CORS      CORSSettings      `koanf:"cors"`
	RateLimit RateLimitSettings `koanf:"rate_limit"`
}

// DefaultSettings returns the built-in defaults, applied before any file or
// environment layer.
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:       ":8080",
			StaleAfter: 180 * time.Second,
		},
		Redis: RedisSettings{
			Addr: "127.0.0.1:6379",
		},
		S3: S3Settings{
			Prefix: "screenshots",
		},
		Auth: AuthSettings{
			SessionTimeout: 24 * time.Hour,
		},
		License: LicenseSettings{
			DefaultGraceWindow: 7 * 24 * time.Hour,
		},
		Audit: AuditSettings{
			Path:          "beacon-audit.db",
			RetentionDays: 90,
			SweepInterval: 24 * time.Hour,
		},
		CORS: CORSSettings{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitSettings{
			AuthRequestsPerMinute: 10,
			WSRequestsPerMinute:   30,
		},
	}
}
