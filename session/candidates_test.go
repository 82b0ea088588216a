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

	"github.com/mpenc-go/mpenc/message"
)

func TestCandidateStoreAddAndCandidates(t *testing.T) {
	s := NewCandidateStore(message.Config{}, time.Hour)
	defer s.Close()

	c := message.NewSessionKeyCandidate([]byte("sid"), [16]byte{1}, nil, message.Config{})
	s.Add(c)

	got := s.Candidates()
	assert.Len(t, got, 1)
	assert.Same(t, c, got[0])
}

func TestCandidateStorePruneDropsExpired(t *testing.T) {
	s := NewCandidateStore(message.Config{}, time.Hour)
	defer s.Close()

	expired := message.NewSessionKeyCandidate([]byte("old"), [16]byte{1}, nil, message.Config{MaxAge: time.Nanosecond})
	time.Sleep(time.Millisecond)
	fresh := message.NewSessionKeyCandidate([]byte("new"), [16]byte{2}, nil, message.Config{})

	s.Add(expired)
	s.Add(fresh)
	s.Prune()

	got := s.Candidates()
	assert.Len(t, got, 1)
	assert.Same(t, fresh, got[0])
}

func TestCandidateStoreCloseIsIdempotent(t *testing.T) {
	s := NewCandidateStore(message.Config{}, time.Hour)
	s.Close()
	assert.NotPanics(t, func() { s.Close() })
}
