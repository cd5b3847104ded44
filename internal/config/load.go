// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix every environment-variable override must carry,
// e.g. BEACON_SERVER__ADDR maps to Server.Addr.
const EnvPrefix = "BEACON_"

// Load builds a Settings tree from three layers, lowest precedence first:
// built-in defaults, an optional YAML file at path (skipped entirely if
// path is empty or the file does not exist), and environment variables
// prefixed with EnvPrefix. The result is validated before it is returned.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultSettings(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: load file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var settings Settings
	if err := k.Unmarshal("", &settings); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid settings: %w", err)
	}

	return &settings, nil
}

// envTransformFunc turns BEACON_SERVER__ADDR into server.addr and
// BEACON_RATE_LIMIT__AUTH_REQUESTS_PER_MINUTE into
// rate_limit.auth_requests_per_minute: a double underscore separates the
// section from the field, since struct tags like "rate_limit" already
// contain single underscores.
func envTransformFunc(raw string) string {
	trimmed := strings.TrimPrefix(raw, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(trimmed), "__", ".")
}
