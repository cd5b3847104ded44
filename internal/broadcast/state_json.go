// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package broadcast

import (
	"github.com/goccy/go-json"

	"github.com/signalmast/beacon/internal/models"
)

func stateJSON(state models.DeviceBroadcastState) ([]byte, error) {
	return json.Marshal(state)
}

func parseState(raw []byte) (models.DeviceBroadcastState, error) {
	var state models.DeviceBroadcastState
	err := json.Unmarshal(raw, &state)
	return state, err
}
