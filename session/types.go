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

// Package session wires the greet state machine, message security, the
// transcript, and the consistency monitor behind one controller, per
// spec.md §2's data flow. Transport and persistent storage are
// deliberately out of scope (spec.md §1 Non-goals): Channel and
// KeyDirectory name the two external collaborators this package needs,
// specified only at their interfaces.
package session

import (
	"time"

	"github.com/mpenc-go/mpenc/aske"
)

// Channel is the untrusted group broadcast transport a Session sends
// wire packets through and receives them from. Implementations own
// delivery, ordering (beyond what ServerOrderTracker enforces), and
// membership notification; this package only ever sees the string
// frames Send emits and Inbound delivers.
type Channel interface {
	// Send broadcasts one already-framed packet (a greet packet or a
	// message envelope, both "?mpENC:"-prefixed strings) to the group.
	Send(frame string) error

	// Inbound returns the channel's stream of received frames, which a
	// Session drains for as long as the Channel is open. The Channel
	// closes this when the caller leaves or the transport disconnects.
	Inbound() <-chan string
}

// KeyDirectory resolves a member's long-term Ed25519 public key; the
// same contract greet.Machine composes through for ASKE authentication.
type KeyDirectory = aske.KeyDirectory

// Config bounds session-key-candidate lookahead and the inbound replay
// guard. Zero fields other than MinPadding fall back to Default.
type Config struct {
	// CandidateMaxAge, CandidateIdleTimeout, and CandidateMaxMessages
	// bound how long a superseded (session id, group key) pair stays
	// eligible for trial-decrypt after a refresh/include/exclude round.
	CandidateMaxAge      time.Duration `yaml:"candidate_max_age"`
	CandidateIdleTimeout time.Duration `yaml:"candidate_idle_timeout"`
	CandidateMaxMessages int           `yaml:"candidate_max_messages"`

	// ReplayTTL bounds how long an inbound envelope's identity is
	// remembered for replay rejection.
	ReplayTTL time.Duration `yaml:"replay_ttl"`

	// MinPadding is passed through to message.Encrypt for outbound
	// payloads (0 disables padding).
	MinPadding int `yaml:"min_padding"`
}

// Default returns the baseline Config a Session falls back to for any
// zero-valued field except MinPadding, where 0 is kept as given.
func Default() Config {
	return Config{
		CandidateMaxAge:      time.Hour,
		CandidateIdleTimeout: 10 * time.Minute,
		CandidateMaxMessages: 10000,
		ReplayTTL:            10 * time.Minute,
		MinPadding:           128,
	}
}

func withDefaults(c Config) Config {
	d := Default()
	if c.CandidateMaxAge == 0 {
		c.CandidateMaxAge = d.CandidateMaxAge
	}
	if c.CandidateIdleTimeout == 0 {
		c.CandidateIdleTimeout = d.CandidateIdleTimeout
	}
	if c.CandidateMaxMessages == 0 {
		c.CandidateMaxMessages = d.CandidateMaxMessages
	}
	if c.ReplayTTL == 0 {
		c.ReplayTTL = d.ReplayTTL
	}
	// MinPadding is left as given: message.Pad already treats 0 as "no
	// padding", so a caller who wants that must be able to say so
	// explicitly rather than have it silently promoted to the default.
	return c
}
