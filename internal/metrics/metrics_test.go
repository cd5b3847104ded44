// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHubSessionIncrementsByKind(t *testing.T) {
	before := testutil.ToFloat64(HubSessionsTotal.WithLabelValues("device"))
	RecordHubSession("device")
	assert.Equal(t, before+1, testutil.ToFloat64(HubSessionsTotal.WithLabelValues("device")))
}

func TestRecordHubDisconnectIncrementsByKindAndReason(t *testing.T) {
	before := testutil.ToFloat64(HubDisconnectsTotal.WithLabelValues("admin", "closed"))
	RecordHubDisconnect("admin", "closed")
	assert.Equal(t, before+1, testutil.ToFloat64(HubDisconnectsTotal.WithLabelValues("admin", "closed")))
}

func TestRecordHubQueueDropIncrementsByQueue(t *testing.T) {
	before := testutil.ToFloat64(HubQueueDrops.WithLabelValues("stream"))
	RecordHubQueueDrop("stream")
	assert.Equal(t, before+1, testutil.ToFloat64(HubQueueDrops.WithLabelValues("stream")))
}

func TestRecordHubEventDispatchedIncrementsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(HubEventsDispatched.WithLabelValues("navigate", "routed"))
	RecordHubEventDispatched("navigate", "routed")
	assert.Equal(t, before+1, testutil.ToFloat64(HubEventsDispatched.WithLabelValues("navigate", "routed")))
}

func TestRecordLicenseCheckIncrementsByResult(t *testing.T) {
	before := testutil.ToFloat64(LicenseChecksTotal.WithLabelValues("denied"))
	RecordLicenseCheck("denied")
	assert.Equal(t, before+1, testutil.ToFloat64(LicenseChecksTotal.WithLabelValues("denied")))
}

func TestRecordAPIRequestIncrementsCounterAndObservesDuration(t *testing.T) {
	beforeCount := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/devices", "200"))
	beforeSamples := testutil.CollectAndCount(APIRequestDuration)

	RecordAPIRequest("GET", "/api/v1/devices", "200", 25*time.Millisecond)

	assert.Equal(t, beforeCount+1, testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/devices", "200")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(APIRequestDuration), beforeSamples)
}

func TestRecordScreenshotUploadIncrementsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(ScreenshotUploadsTotal.WithLabelValues("stored"))
	RecordScreenshotUpload("stored")
	assert.Equal(t, before+1, testutil.ToFloat64(ScreenshotUploadsTotal.WithLabelValues("stored")))
}

func TestGaugesAcceptDirectSets(t *testing.T) {
	HubConnectedDevices.Set(12)
	assert.Equal(t, float64(12), testutil.ToFloat64(HubConnectedDevices))

	LicenseActiveDevices.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(LicenseActiveDevices))

	BroadcastsActive.Set(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(BroadcastsActive))
}
