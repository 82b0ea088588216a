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

package session

import (
	"time"

	"github.com/mpenc-go/mpenc/greet"
)

// RosterEntry reports one member's standing in the current greet
// session, for a Session's external status surface (e.g. a UI member
// list or a CLI `status` subcommand).
type RosterEntry struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	JoinedAt      string `json:"joinedAt,omitempty"`
	AcknowledgedAt string `json:"acknowledgedAt,omitempty"`
}

// RosterEntryBuilder constructs a RosterEntry with a fluent API.
type RosterEntryBuilder struct {
	entry RosterEntry
}

// NewRosterEntryBuilder starts building an entry for id, defaulting to
// "joining" status with the current time as its join time.
func NewRosterEntryBuilder(id greet.UserId) *RosterEntryBuilder {
	return &RosterEntryBuilder{
		entry: RosterEntry{
			ID:       string(id),
			Status:   "joining",
			JoinedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// WithStatus overrides the entry's status ("joining", "authenticated",
// "left").
func (b *RosterEntryBuilder) WithStatus(status string) *RosterEntryBuilder {
	b.entry.Status = status
	return b
}

// WithJoinedAt sets a custom join timestamp.
func (b *RosterEntryBuilder) WithJoinedAt(t time.Time) *RosterEntryBuilder {
	b.entry.JoinedAt = t.UTC().Format(time.RFC3339)
	return b
}

// WithAcknowledgedAt records when this member's ASKE acknowledgement
// was observed.
func (b *RosterEntryBuilder) WithAcknowledgedAt(t time.Time) *RosterEntryBuilder {
	b.entry.AcknowledgedAt = t.UTC().Format(time.RFC3339)
	return b
}

// Build returns the constructed entry.
func (b *RosterEntryBuilder) Build() RosterEntry {
	return b.entry
}

// Status summarizes a Session's current standing for external
// reporting.
type Status struct {
	State      string        `json:"state"`
	SessionID  string        `json:"sessionId,omitempty"`
	Roster     []RosterEntry `json:"roster"`
	Unacked    []string      `json:"unacked,omitempty"`
}
