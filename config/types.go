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

// Package config loads and validates the settings an mpENC process
// needs to bring up a session.Session: identity, the session/monitor
// tuning knobs, logging, and metrics. It has no knowledge of the
// cryptographic protocol itself — it only produces the plain values
// session.Config and internal/logger accept.
package config

import "time"

// Config is the top-level configuration for an mpENC session process.
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Identity    IdentityConfig `yaml:"identity" json:"identity"`
	Session     SessionConfig  `yaml:"session" json:"session"`
	Monitor     MonitorConfig  `yaml:"monitor" json:"monitor"`
	Logging     LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// IdentityConfig names the local member and where its long-term signing
// key lives.
type IdentityConfig struct {
	UserID      string `yaml:"user_id" json:"user_id"`
	KeyStoreDir string `yaml:"keystore_dir" json:"keystore_dir"`
}

// SessionConfig mirrors session.Config's fields so a deployment can set
// them from a file; Config.ToSessionConfig converts it to the real type.
type SessionConfig struct {
	CandidateMaxAge      time.Duration `yaml:"candidate_max_age" json:"candidate_max_age"`
	CandidateIdleTimeout time.Duration `yaml:"candidate_idle_timeout" json:"candidate_idle_timeout"`
	CandidateMaxMessages int           `yaml:"candidate_max_messages" json:"candidate_max_messages"`
	ReplayTTL            time.Duration `yaml:"replay_ttl" json:"replay_ttl"`
	MinPadding           int           `yaml:"min_padding" json:"min_padding"`
}

// MonitorConfig carries the static, serializable half of monitor.Config.
// FullAckTimeout here is one fixed duration applied to every key; UnackBy
// and the On* callbacks are runtime behaviour supplied by the caller
// wiring up a Session, not configuration data.
type MonitorConfig struct {
	FullAckTimeout     time.Duration   `yaml:"full_ack_timeout" json:"full_ack_timeout"`
	ActiveAckIntervals []time.Duration `yaml:"active_ack_intervals" json:"active_ack_intervals"`
}

// LoggingConfig selects the internal/logger level, format and sink.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, pretty
	Output string `yaml:"output" json:"output"` // stdout, stderr, or a file path
}

// MetricsConfig controls whether internal/metrics' Registry is served
// and where.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}
