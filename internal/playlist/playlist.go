// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package playlist implements the ordering, validation, and time/day
// eligibility rules shared by the server-side assignment path and the
// device-side rotation engine (internal/rotation), per spec §3 and §4.7.
package playlist

import (
	"fmt"
	"sort"
	"time"

	"github.com/signalmast/beacon/internal/models"
)

// DefaultRotationSeconds is used when an item's DurationSeconds is 0 and
// the playlist has more than one item, per spec §4.7.
const DefaultRotationSeconds = 15

// Normalize returns a copy of items sorted by OrderIndex ascending, with
// ties broken by ID ascending, per the invariant in spec §3.
func Normalize(items []models.PlaylistItem) []models.PlaylistItem {
	out := make([]models.PlaylistItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Validate checks the structural invariants from spec §3:
//   - DurationSeconds >= 0
//   - TimeWindowEnd is set whenever TimeWindowStart is set
//   - both window fields, when present, parse as HH:MM in [00:00, 23:59]
//   - DaysOfWeek values, when present, are all in [0, 6]
func Validate(items []models.PlaylistItem) error {
	for _, item := range items {
		if item.DurationSeconds < 0 {
			return fmt.Errorf("playlist: item %s has negative duration", item.ID)
		}
		if item.TimeWindowStart != "" && item.TimeWindowEnd == "" {
			return fmt.Errorf("playlist: item %s sets timeWindowStart without timeWindowEnd", item.ID)
		}
		if item.TimeWindowStart != "" {
			if _, err := parseHHMM(item.TimeWindowStart); err != nil {
				return fmt.Errorf("playlist: item %s has invalid timeWindowStart: %w", item.ID, err)
			}
		}
		if item.TimeWindowEnd != "" {
			if _, err := parseHHMM(item.TimeWindowEnd); err != nil {
				return fmt.Errorf("playlist: item %s has invalid timeWindowEnd: %w", item.ID, err)
			}
		}
		for _, d := range item.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("playlist: item %s has out-of-range day of week %d", item.ID, d)
			}
		}
	}
	return nil
}

// EffectiveDuration resolves the 0-duration special cases from spec §4.7:
// a single-item playlist with DurationSeconds == 0 displays permanently
// (duration 0 is returned, meaning "no rotation timer"); a multi-item
// playlist with DurationSeconds == 0 falls back to DefaultRotationSeconds.
// The boolean return reports whether the fallback default was applied, so
// callers can emit the Warning log spec §4.7 requires.
func EffectiveDuration(item models.PlaylistItem, totalItems int) (seconds int, usedDefault bool) {
	if item.DurationSeconds > 0 {
		return item.DurationSeconds, false
	}
	if totalItems <= 1 {
		return 0, false
	}
	return DefaultRotationSeconds, true
}

// Eligible reports whether item may be selected at instant now, applying
// both the day-of-week mask and the HH:MM time window from spec §4.7:
// inclusive start, exclusive end at the minute. An item with no
// constraints set is always eligible.
func Eligible(item models.PlaylistItem, now time.Time) bool {
	if len(item.DaysOfWeek) > 0 {
		today := int(now.Weekday())
		found := false
		for _, d := range item.DaysOfWeek {
			if d == today {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if item.TimeWindowStart == "" {
		return true
	}

	start, err := parseHHMM(item.TimeWindowStart)
	if err != nil {
		return false
	}
	end, err := parseHHMM(item.TimeWindowEnd)
	if err != nil {
		return false
	}

	nowMinutes := now.Hour()*60 + now.Minute()
	return nowMinutes >= start && nowMinutes < end
}

// parseHHMM parses an "HH:MM" string into minutes since midnight, validating
// the [00:00, 23:59] bound from spec §3.
func parseHHMM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
