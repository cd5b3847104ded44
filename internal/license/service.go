// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package license implements the License Enforcement Service (spec §4.2):
// license activation, per-device admission decisions, atomic device-count
// tracking, and the bounded grace period granted when a license's cap is
// exceeded.
package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/signalmast/beacon/internal/apierrors"
	"github.com/signalmast/beacon/internal/licensecodec"
	"github.com/signalmast/beacon/internal/logging"
	"github.com/signalmast/beacon/internal/metrics"
	"github.com/signalmast/beacon/internal/models"
)

// DefaultGracePeriod is the bounded grace window duration from spec §4.2.
const DefaultGracePeriod = 7 * 24 * time.Hour

// Decision is the outcome of Validate, per spec §4.2.
type Decision struct {
	Admitted     bool
	InGrace      bool
	GraceEndsAt  time.Time
	DenialReason string
}

// Service implements activation, admission, and count reconciliation.
// Construct with New.
type Service struct {
	store   Store
	counter Counter
	secret  []byte

	graceDuration  time.Duration
	freeDefaultMax int

	// writeBreaker wraps every persistence write (License/GraceWindow
	// rows, device-count mutations) so a degraded store/counter backend
	// fails fast instead of hanging every connect attempt, grounded on
	// the teacher's circuit-breaker-wrapped API client.
	writeBreaker *gobreaker.CircuitBreaker[any]

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// OnRevoked, if set, is invoked after Revoke persists isActive=false,
	// so the caller (wired in cmd/server) can ask the Hub to re-validate
	// and disconnect affected devices.
	OnRevoked func(licenseID string)

	now func() time.Time
}

// New constructs a Service. installationSecret is the HMAC key used to
// verify V2 license tokens, per spec §4.1.
func New(store Store, counter Counter, installationSecret []byte) *Service {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "license-store",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("license store circuit breaker state change")
		},
	})

	return &Service{
		store:          store,
		counter:        counter,
		secret:         installationSecret,
		graceDuration:  DefaultGracePeriod,
		freeDefaultMax: models.FreeTierDefaultMaxDevices,
		writeBreaker:   cb,
		locks:          make(map[string]*sync.Mutex),
		now:            time.Now,
	}
}

// SetGraceDuration overrides the default 7-day grace window, per
// spec §9's open question that the authoritative duration is a server
// setting rather than a hardcoded constant.
func (s *Service) SetGraceDuration(d time.Duration) {
	if d > 0 {
		s.graceDuration = d
	}
}

func (s *Service) lockFor(licenseID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[licenseID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[licenseID] = m
	}
	return m
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Activate decodes key, upserts the corresponding License row, and returns
// it. Re-activating an identical key is idempotent, per spec §4.2.
func (s *Service) Activate(ctx context.Context, key string) (*models.License, error) {
	payload, err := licensecodec.Decode(key, s.secret)
	if err != nil {
		return nil, err
	}

	if payload.Expires != "" {
		expiresAt, perr := time.Parse("2006-01-02", payload.Expires)
		if perr == nil && expiresAt.Before(s.now()) {
			return nil, apierrors.New(apierrors.CodeLicenseDenied, "license expiry is in the past")
		}
	}

	keyHash := hashKey(key)
	if existing, err := s.store.GetByKeyHash(ctx, keyHash); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	lic := &models.License{
		ID:          keyHash[:16],
		Key:         key,
		KeyHash:     keyHash,
		Tier:        payload.Tier,
		MaxDevices:  payload.Devices,
		CompanyName: payload.Company,
		IsActive:    true,
		CreatedAt:   s.now(),
	}
	if payload.Expires != "" {
		if expiresAt, perr := time.Parse("2006-01-02", payload.Expires); perr == nil {
			lic.ExpiresAt = &expiresAt
		}
	}

	if _, err := s.writeBreaker.Execute(func() (any, error) {
		return nil, s.store.Put(ctx, lic)
	}); err != nil {
		return nil, fmt.Errorf("license: activate: %w", err)
	}
	return lic, nil
}

// effectiveLicense resolves the license currently governing admission
// decisions: the active row with the largest MaxDevices, or an implicit
// free-tier license when none exists, per spec §4.2.
func (s *Service) effectiveLicense(ctx context.Context) (*models.License, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var expired []*models.License
	var best *models.License
	for _, lic := range active {
		if lic.ExpiresAt != nil && lic.ExpiresAt.Before(s.now()) {
			expired = append(expired, lic)
			continue
		}
		if best == nil || lic.MaxDevices > best.MaxDevices {
			best = lic
		}
	}
	for _, lic := range expired {
		lic.IsActive = false
		_, _ = s.writeBreaker.Execute(func() (any, error) { return nil, s.store.Put(ctx, lic) })
	}

	if best != nil {
		return best, nil
	}
	return &models.License{
		ID:         "implicit-free",
		Tier:       string(models.TierFree),
		MaxDevices: s.freeDefaultMax,
		IsActive:   true,
	}, nil
}

// Validate implements validate(deviceId) from spec §4.2 without mutating
// any count; callers that intend to admit a device should use
// RegisterDevice, which validates and increments atomically.
func (s *Service) Validate(ctx context.Context, deviceID string) (Decision, error) {
	lic, err := s.effectiveLicense(ctx)
	if err != nil {
		return Decision{}, err
	}

	current, err := s.counter.Get(ctx, lic.ID)
	if err != nil {
		return Decision{}, err
	}
	if current < int64(lic.MaxDevices) {
		return Decision{Admitted: true}, nil
	}

	gw, err := s.store.GetGraceWindow(ctx, lic.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Decision{}, err
	}
	now := s.now()
	if gw == nil || errors.Is(err, ErrNotFound) {
		gw = &models.GraceWindow{LicenseID: lic.ID, StartedAt: now, EndsAt: now.Add(s.graceDuration)}
		if _, perr := s.writeBreaker.Execute(func() (any, error) { return nil, s.store.PutGraceWindow(ctx, gw) }); perr != nil {
			return Decision{}, perr
		}
		return Decision{Admitted: true, InGrace: true, GraceEndsAt: gw.EndsAt}, nil
	}
	if now.Before(gw.EndsAt) {
		return Decision{Admitted: true, InGrace: true, GraceEndsAt: gw.EndsAt}, nil
	}
	return Decision{Admitted: false, DenialReason: "device cap exceeded and grace period elapsed"}, nil
}

// RegisterDevice validates and, if admitted, atomically increments the
// effective license's device count and records the device's assignment.
// Satisfies internal/hub.LicenseGate.
func (s *Service) RegisterDevice(ctx context.Context, deviceID string) error {
	lic, err := s.effectiveLicense(ctx)
	if err != nil {
		return err
	}

	mu := s.lockFor(lic.ID)
	mu.Lock()
	defer mu.Unlock()

	decision, err := s.Validate(ctx, deviceID)
	if err != nil {
		return err
	}
	if !decision.Admitted {
		metrics.RecordLicenseCheck("denied")
		return apierrors.New(apierrors.CodeLicenseDenied, decision.DenialReason)
	}
	if decision.InGrace {
		metrics.RecordLicenseCheck("grace")
	} else {
		metrics.RecordLicenseCheck("admitted")
	}

	if _, err := s.counter.Increment(ctx, lic.ID); err != nil {
		return err
	}
	if _, err := s.writeBreaker.Execute(func() (any, error) {
		return nil, s.store.AssignDevice(ctx, deviceID, lic.ID)
	}); err != nil {
		_, _ = s.counter.Decrement(ctx, lic.ID)
		return err
	}

	if decision.InGrace {
		logging.Warn().Str("device_id", deviceID).Str("license_id", lic.ID).
			Time("grace_ends_at", decision.GraceEndsAt).Msg("device admitted under license grace window")
	}
	return nil
}

// UnregisterDevice decrements the device count of whichever license
// deviceID was last assigned to. Satisfies internal/hub.LicenseGate.
func (s *Service) UnregisterDevice(ctx context.Context, deviceID string) {
	licenseID, err := s.store.GetDeviceLicense(ctx, deviceID)
	if err != nil {
		return
	}
	mu := s.lockFor(licenseID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.counter.Decrement(ctx, licenseID); err != nil {
		logging.Warn().Err(err).Str("device_id", deviceID).Msg("failed to decrement license device count")
	}
	_ = s.store.UnassignDevice(ctx, deviceID)
}

// Revoke sets a license inactive and, if OnRevoked is set, notifies the
// caller so affected devices can be re-validated and disconnected, per
// spec §4.2.
func (s *Service) Revoke(ctx context.Context, licenseID string) error {
	lic, err := s.store.GetByID(ctx, licenseID)
	if err != nil {
		return err
	}
	lic.IsActive = false
	if _, err := s.writeBreaker.Execute(func() (any, error) { return nil, s.store.Put(ctx, lic) }); err != nil {
		return err
	}
	if s.OnRevoked != nil {
		s.OnRevoked(licenseID)
	}
	return nil
}

// SweepExpired deletes every grace window whose bounded duration has
// elapsed, so a subsequent Validate call correctly denies admission for
// licenses still over their device cap, per spec §4.2's "bounded grace
// period" and SPEC_FULL §4.9's supervised-sweeper note. Satisfies
// internal/supervisor.ExpiringSweeper.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	windows, err := s.store.ListGraceWindows(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	expired := 0
	for _, gw := range windows {
		if !now.After(gw.EndsAt) {
			continue
		}
		mu := s.lockFor(gw.LicenseID)
		mu.Lock()
		err := s.store.DeleteGraceWindow(ctx, gw.LicenseID)
		mu.Unlock()
		if err != nil {
			logging.Warn().Err(err).Str("license_id", gw.LicenseID).Msg("failed to clear expired grace window")
			continue
		}
		metrics.LicenseGraceDevicesExpired.Inc()
		expired++
	}
	return expired, nil
}
