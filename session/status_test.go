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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mpenc-go/mpenc/greet"
)

func TestRosterEntryBuilderDefaults(t *testing.T) {
	e := NewRosterEntryBuilder(greet.UserId("alice")).Build()
	assert.Equal(t, "alice", e.ID)
	assert.Equal(t, "joining", e.Status)
	assert.NotEmpty(t, e.JoinedAt)
	assert.Empty(t, e.AcknowledgedAt)
}

func TestRosterEntryBuilderFluentOverrides(t *testing.T) {
	joined := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	acked := joined.Add(time.Second)

	e := NewRosterEntryBuilder(greet.UserId("bob")).
		WithStatus("authenticated").
		WithJoinedAt(joined).
		WithAcknowledgedAt(acked).
		Build()

	assert.Equal(t, "authenticated", e.Status)
	assert.Equal(t, "2026-01-01T00:00:00Z", e.JoinedAt)
	assert.Equal(t, "2026-01-01T00:00:01Z", e.AcknowledgedAt)
}
