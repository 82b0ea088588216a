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
	"sync"
	"time"

	"github.com/mpenc-go/mpenc/internal/metrics"
	"github.com/mpenc-go/mpenc/message"
)

// CandidateStore keeps the short tail of session-key candidates a
// Session offers DecodeEnvelope for trial-decrypt: the current group
// key plus whatever just-superseded ones a refresh/include/exclude
// round hasn't aged out yet (spec.md §4.4).
type CandidateStore struct {
	mu      sync.RWMutex
	order   []*message.SessionKeyCandidate
	cfg     message.Config
	ticker  *time.Ticker
	stop    chan struct{}
	stopped bool
}

// NewCandidateStore returns an empty store pruning expired candidates
// every interval.
func NewCandidateStore(cfg message.Config, interval time.Duration) *CandidateStore {
	s := &CandidateStore{
		cfg:    cfg,
		ticker: time.NewTicker(interval),
		stop:   make(chan struct{}),
	}
	go s.runPrune()
	return s
}

// Add installs a new current candidate. Callers add the new candidate
// on every successful greet transition to READY; the previous
// candidate(s) stay in the store until they expire on their own, so
// packets already in flight under the superseded key still decrypt.
func (s *CandidateStore) Add(c *message.SessionKeyCandidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, c)
	metrics.SessionKeyCandidates.Set(float64(len(s.order)))
}

// Candidates returns a snapshot of the non-expired candidates, newest
// last, suitable for message.DecodeEnvelope.
func (s *CandidateStore) Candidates() []*message.SessionKeyCandidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*message.SessionKeyCandidate, 0, len(s.order))
	for _, c := range s.order {
		if !c.IsExpired() {
			out = append(out, c)
		}
	}
	return out
}

// Prune drops expired candidates immediately; runPrune calls this on a
// timer, but tests may call it directly.
func (s *CandidateStore) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	for _, c := range s.order {
		if !c.IsExpired() {
			kept = append(kept, c)
		}
	}
	s.order = kept
	metrics.SessionKeyCandidates.Set(float64(len(s.order)))
}

// Close stops the background prune loop.
func (s *CandidateStore) Close() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stop)
	s.ticker.Stop()
}

func (s *CandidateStore) runPrune() {
	for {
		select {
		case <-s.ticker.C:
			s.Prune()
		case <-s.stop:
			return
		}
	}
}
