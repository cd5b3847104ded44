// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the Beacon control-plane server.
//
// Beacon is a self-hosted digital-signage control plane: it accepts
// WebSocket connections from player devices and admin consoles, enforces
// a self-signed device-count license, rotates each device through its
// assigned playlist, and lets an operator push a transient broadcast
// override, pull a screenshot, or watch a live screencast.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf-layered settings (defaults, YAML file, env)
//  2. Device Record Store: Postgres via pgx
//  3. License Enforcement Service: BadgerDB rows + Redis device counters,
//     then the Audit Log
//  4. Session Hub: the concurrent device/admin WebSocket registry
//  5. Dispatcher: playlist, telemetry, screencast, and restart behavior
//  6. Broadcast Coordinator, Admin Authn/Authz
//  7. Admin REST Gateway: chi router under a suture-supervised HTTP server
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the root
// context is canceled, every supervised service is given its configured
// shutdown timeout to stop, and the process exits once the tree drains.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/signalmast/beacon/internal/api"
	"github.com/signalmast/beacon/internal/audit"
	"github.com/signalmast/beacon/internal/authn"
	"github.com/signalmast/beacon/internal/authz"
	"github.com/signalmast/beacon/internal/broadcast"
	"github.com/signalmast/beacon/internal/config"
	"github.com/signalmast/beacon/internal/devicestore"
	"github.com/signalmast/beacon/internal/dispatch"
	"github.com/signalmast/beacon/internal/dockerctl"
	"github.com/signalmast/beacon/internal/hub"
	"github.com/signalmast/beacon/internal/license"
	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/metrics"
	"github.com/signalmast/beacon/internal/screencast"
	"github.com/signalmast/beacon/internal/supervisor"
	"github.com/signalmast/beacon/internal/telemetry"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := os.Getenv("BEACON_CONFIG_FILE")
	settings, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "beacon: load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT"), Output: os.Stderr})
	logging.Info().Str("version", version).Str("addr", settings.Server.Addr).Msg("starting beacon server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pgPool, err := pgxpool.New(ctx, settings.Postgres.DSN)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pgPool.Close()
	if _, err := pgPool.Exec(ctx, devicestore.Schema); err != nil {
		logging.Fatal().Err(err).Msg("failed to apply device store schema")
	}
	deviceStore := devicestore.New(pgPool)

	badgerDB, err := badger.Open(badger.DefaultOptions(licenseDBPath()))
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open license badger store")
	}
	defer badgerDB.Close()
	licenseStore := license.NewBadgerStore(badgerDB)

	redisClient := redis.NewClient(&redis.Options{Addr: settings.Redis.Addr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to redis")
	}
	licenseCounter := license.NewRedisCounter(redisClient)

	licenseSvc := license.New(licenseStore, licenseCounter, []byte(settings.License.InstallationSecret))
	licenseSvc.SetGraceDuration(settings.License.DefaultGraceWindow)

	auditStore, err := audit.Open(settings.Audit.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open audit log")
	}
	defer auditStore.Close()
	auditRecorder := audit.NewRecorder(auditStore, audit.DefaultRecorderConfig())
	retentionCompactor := audit.NewRetentionCompactor(auditStore, settings.Audit.RetentionDays, settings.Audit.SweepInterval)

	// The Hub needs a Dispatcher at construction, but the Dispatcher needs
	// the Hub as its HubRouter; build the Hub with a nil dispatcher first
	// and close the loop with SetDispatcher once the Dispatcher exists.
	sessionHub := hub.NewHub(hub.Config{StaleAfter: settings.Server.StaleAfter}, deviceStore, licenseSvc, auditRecorder, nil)

	var awsOpts []func(*awsconfig.LoadOptions) error
	if settings.S3.Region != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(settings.S3.Region))
	}
	if accessKey, secretKey := os.Getenv("BEACON_S3_ACCESS_KEY"), os.Getenv("BEACON_S3_SECRET_KEY"); accessKey != "" && secretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load aws config for screenshot storage")
	}
	s3Client := s3.NewFromConfig(awsCfg)
	screenshotUploader := telemetry.NewS3Uploader(s3Client, settings.S3.Bucket, settings.S3.Prefix)

	screencastRelay := screencast.New(sessionHub, screencast.Config{})

	dockerController, err := dockerctl.New(os.Getenv("DOCKER_HOST"), os.Getenv("BEACON_DOCKER_DISABLED") == "true")
	if err != nil {
		logging.Warn().Err(err).Msg("docker restart orchestration disabled")
		dockerController = nil
	}

	dispatcher := dispatch.New(sessionHub, auditRecorder, screenshotUploader, screencastRelay).WithRestarter(dockerController)
	sessionHub.SetDispatcher(dispatcher)

	broadcastCoordinator := broadcast.New(sessionHub, deviceStore, redisClient, dispatcher.LastPlaybackState)

	licenseSvc.OnRevoked = func(licenseID string) {
		logging.Warn().Str("license_id", licenseID).Msg("license revoked; affected devices will be denied on next validate")
	}

	authnManager, err := authn.NewManager([]byte(settings.Auth.JWTSecret), settings.Auth.SessionTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize admin session manager")
	}
	authzEnforcer, err := authz.New(authz.DefaultConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize admin authorization enforcer")
	}

	apiHandler := api.New(api.Config{
		AllowedOrigins:        settings.CORS.AllowedOrigins,
		AuthRequestsPerMinute: settings.RateLimit.AuthRequestsPerMinute,
		WSRequestsPerMinute:   settings.RateLimit.WSRequestsPerMinute,
	}, api.Deps{
		Hub:         sessionHub,
		Devices:     deviceStore,
		Resolver:    deviceStore,
		License:     licenseSvc,
		Broadcast:   broadcastCoordinator,
		Screenshots: screenshotUploader,
		Authn:       authnManager,
		Authz:       authzEnforcer,
	})

	httpServer := &http.Server{Addr: settings.Server.Addr, Handler: apiHandler}

	slogLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	tree := supervisor.New(slogLogger, supervisor.DefaultTreeConfig())
	tree.AddSessionService(supervisor.NewHubSweepService(sessionHub, 30*time.Second))
	tree.AddLicensingService(supervisor.NewExpirySweepService("license-grace", licenseSvc, time.Minute))
	tree.AddLicensingService(supervisor.NewExpirySweepService("broadcast-expiry", broadcastCoordinator, 15*time.Second))
	tree.AddAuditService(retentionCompactor)
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, 10*time.Second))

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
	startedAt := time.Now()
	go reportUptime(ctx, startedAt)

	logging.Info().Msg("beacon server ready")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Fatal().Err(err).Msg("supervisor tree exited unexpectedly")
	}
	logging.Info().Msg("beacon server stopped")
}

func reportUptime(ctx context.Context, startedAt time.Time) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.AppUptime.Set(time.Since(startedAt).Seconds())
		}
	}
}

func licenseDBPath() string {
	if p := os.Getenv("BEACON_LICENSE_DB_PATH"); p != "" {
		return p
	}
	return "beacon-license-db"
}

