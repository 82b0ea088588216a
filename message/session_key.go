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

package message

import (
	"crypto/ed25519"
	"time"
)

// Config bounds how long a session-key candidate stays eligible for
// trial-decrypt, mirroring the teacher's session.Config policy shape
// (MaxAge/IdleTimeout/MaxMessages) generalized from one peer session to
// one greet session's group key.
type Config struct {
	MaxAge      time.Duration
	IdleTimeout time.Duration
	MaxMessages int
}

// SessionKeyCandidate is one (session id, group key) pair a receiver
// keeps around for DecodeEnvelope's trial-decrypt (spec.md §4.4): a
// member typically keeps the current session plus a short tail of
// just-superseded ones across a refresh/include/exclude, so packets
// already in flight under the old key still decrypt.
type SessionKeyCandidate struct {
	sessionID []byte
	groupKey  [16]byte
	signers   map[string]ed25519.PublicKey

	createdAt    time.Time
	lastUsedAt   time.Time
	messageCount int
	config       Config
}

// NewSessionKeyCandidate returns a candidate for sessionID/groupKey,
// whose packets are signed by one of signers' ephemeral keys.
func NewSessionKeyCandidate(sessionID []byte, groupKey [16]byte, signers map[string]ed25519.PublicKey, cfg Config) *SessionKeyCandidate {
	now := time.Now()
	return &SessionKeyCandidate{
		sessionID:  sessionID,
		groupKey:   groupKey,
		signers:    signers,
		createdAt:  now,
		lastUsedAt: now,
		config:     cfg,
	}
}

// IsExpired reports whether this candidate has aged out by any of
// MaxAge/IdleTimeout/MaxMessages (a zero field never expires on its own).
func (c *SessionKeyCandidate) IsExpired() bool {
	now := time.Now()
	if c.config.MaxAge > 0 && now.Sub(c.createdAt) > c.config.MaxAge {
		return true
	}
	if c.config.IdleTimeout > 0 && now.Sub(c.lastUsedAt) > c.config.IdleTimeout {
		return true
	}
	if c.config.MaxMessages > 0 && c.messageCount >= c.config.MaxMessages {
		return true
	}
	return false
}

// GetMessageCount returns the number of packets successfully decrypted
// under this candidate.
func (c *SessionKeyCandidate) GetMessageCount() int { return c.messageCount }

func (c *SessionKeyCandidate) touch() {
	c.lastUsedAt = time.Now()
	c.messageCount++
}

func (c *SessionKeyCandidate) sidkeyHint() byte {
	return sidkeyHint(c.sessionID, c.groupKey)
}
