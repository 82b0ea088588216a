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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mpenc-go/mpenc/internal/logger"
	"github.com/mpenc-go/mpenc/monitor"
	"github.com/mpenc-go/mpenc/session"
)

// Default returns a Config with every field set to its baseline value,
// for callers (like mpenc-cli) that want sane defaults without reading
// a file or the environment.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadFromFile reads and parses a single configuration file, trying
// YAML first and falling back to JSON, then applies defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg back out, choosing JSON or YAML by the file
// extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setDefaults fills in zero-valued fields with the baseline a Session
// needs to start.
func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	sd := session.Default()
	if cfg.Session.CandidateMaxAge == 0 {
		cfg.Session.CandidateMaxAge = sd.CandidateMaxAge
	}
	if cfg.Session.CandidateIdleTimeout == 0 {
		cfg.Session.CandidateIdleTimeout = sd.CandidateIdleTimeout
	}
	if cfg.Session.CandidateMaxMessages == 0 {
		cfg.Session.CandidateMaxMessages = sd.CandidateMaxMessages
	}
	if cfg.Session.ReplayTTL == 0 {
		cfg.Session.ReplayTTL = sd.ReplayTTL
	}
	// MinPadding is left as given: 0 legitimately means "no padding".

	if cfg.Monitor.FullAckTimeout == 0 {
		cfg.Monitor.FullAckTimeout = 30 * time.Second
	}
	if len(cfg.Monitor.ActiveAckIntervals) == 0 {
		cfg.Monitor.ActiveAckIntervals = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// ToSessionConfig converts the yaml-tagged SessionConfig section to the
// session.Config session.New expects.
func (c Config) ToSessionConfig() session.Config {
	return session.Config{
		CandidateMaxAge:      c.Session.CandidateMaxAge,
		CandidateIdleTimeout: c.Session.CandidateIdleTimeout,
		CandidateMaxMessages: c.Session.CandidateMaxMessages,
		ReplayTTL:            c.Session.ReplayTTL,
		MinPadding:           c.Session.MinPadding,
	}
}

// ToMonitorConfig merges the file-configured timing knobs with the
// caller-supplied runtime behaviour (UnackBy, the On* callbacks) that
// cannot be expressed in a config file.
func (c Config) ToMonitorConfig(self string, unackBy func(monitor.Key) []string, onWarn func(monitor.Key, bool), onUnacked, onUnackedByOwn func(monitor.Key)) monitor.Config {
	timeout := c.Monitor.FullAckTimeout
	return monitor.Config{
		Self:               self,
		FullAckTimeout:     func(monitor.Key) time.Duration { return timeout },
		ActiveAckIntervals: append([]time.Duration(nil), c.Monitor.ActiveAckIntervals...),
		UnackBy:            unackBy,
		OnWarn:             onWarn,
		OnUnacked:          onUnacked,
		OnUnackedByOwn:     onUnackedByOwn,
	}
}

// ToLogger builds the internal/logger sink LoggingConfig describes.
func (c Config) ToLogger() (*logger.StructuredLogger, error) {
	var out *os.File
	switch c.Logging.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(c.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %q: %w", c.Logging.Output, err)
		}
		out = f
	}

	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}

	l := logger.NewLogger(out, level)
	l.SetPrettyPrint(c.Logging.Format == "pretty")
	return l, nil
}

func parseLevel(s string) (logger.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "warn", "warning":
		return logger.WarnLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	case "fatal":
		return logger.FatalLevel, nil
	default:
		return logger.InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
}
