// Copyright (C) 2025 mpenc-go
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// LoaderOptions configures Load.
type LoaderOptions struct {
	// ConfigDir is the directory holding <environment>.yaml / default.yaml
	// / config.yaml (default: "config").
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// SkipEnvSubstitution disables ${VAR} substitution.
	SkipEnvSubstitution bool
	// SkipValidation disables post-load validation.
	SkipValidation bool
}

// DefaultLoaderOptions returns Load's baseline options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{ConfigDir: "config"}
}

// Load loads configuration with automatic environment detection: it
// tries <dir>/<environment>.yaml, then <dir>/default.yaml, then
// <dir>/config.yaml, falling back to an all-defaults Config if none
// exist.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	cfg, err := loadConfigFile(filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env)))
	if err != nil {
		cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "default.yaml"))
		if err != nil {
			cfg, err = loadConfigFile(filepath.Join(options.ConfigDir, "config.yaml"))
			if err != nil {
				cfg = &Config{}
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}
	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}
	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		for _, e := range ValidateConfiguration(cfg) {
			if e.Level == "error" {
				return nil, fmt.Errorf("configuration validation failed: %s - %s", e.Field, e.Message)
			}
		}
	}

	return cfg, nil
}

// LoadFromEnv loads configuration using only environment variables and
// defaults, skipping any config file lookup — the shape a container
// deployment with no mounted config directory needs.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)
	cfg.Environment = GetEnvironment()
	SubstituteEnvVarsInConfig(cfg)
	applyEnvironmentOverrides(cfg)

	for _, e := range ValidateConfiguration(cfg) {
		if e.Level == "error" {
			return nil, fmt.Errorf("configuration validation failed: %s - %s", e.Field, e.Message)
		}
	}
	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides applies MPENC_* environment variables,
// which take priority over file-loaded values.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("MPENC_USER_ID"); v != "" {
		cfg.Identity.UserID = v
	}
	if v := os.Getenv("MPENC_KEYSTORE_DIR"); v != "" {
		cfg.Identity.KeyStoreDir = v
	}
	if v := os.Getenv("MPENC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MPENC_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if os.Getenv("MPENC_METRICS_ENABLED") == "true" {
		cfg.Metrics.Enabled = true
	}
	if os.Getenv("MPENC_METRICS_ENABLED") == "false" {
		cfg.Metrics.Enabled = false
	}
	if v := os.Getenv("MPENC_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{ConfigDir: "config", Environment: environment})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
