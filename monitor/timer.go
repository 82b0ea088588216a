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

// Package monitor implements the consistency monitor (spec.md §4.6): a
// warning timer per expectation key that fires if the key doesn't reach
// full-ack in time, plus an optional active-ack monitor driven by a
// repeating interval sequence.
package monitor

import (
	"sync"
	"time"
)

// CancelFunc cancels a scheduled callback. Calling it after the
// callback has already fired, or more than once, is a no-op.
type CancelFunc func()

// Timer is the injected time source every scheduling call in this
// package goes through: `after(ticks, cb) -> cancel` (spec.md §9).
// Production code uses RealTimer; tests use VirtualTimer so ack-timeout
// behaviour can be exercised without sleeping.
type Timer interface {
	After(d time.Duration, cb func()) CancelFunc
}

// RealTimer schedules against the platform monotonic clock.
type RealTimer struct{}

// After implements Timer using time.AfterFunc.
func (RealTimer) After(d time.Duration, cb func()) CancelFunc {
	t := time.AfterFunc(d, cb)
	return func() { t.Stop() }
}

// VirtualTimer is a deterministic, manually-advanced Timer for tests:
// no wall-clock time passes until Advance is called.
type VirtualTimer struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending map[int]*virtualEntry
}

type virtualEntry struct {
	fireAt time.Duration
	cb     func()
}

// NewVirtualTimer returns a VirtualTimer starting at t=0.
func NewVirtualTimer() *VirtualTimer {
	return &VirtualTimer{pending: make(map[int]*virtualEntry)}
}

// After schedules cb to fire on a future Advance call that crosses
// now+d.
func (v *VirtualTimer) After(d time.Duration, cb func()) CancelFunc {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	id := v.seq
	v.pending[id] = &virtualEntry{fireAt: v.now + d, cb: cb}

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.pending, id)
	}
}

// Advance moves the virtual clock forward by d, firing (in fireAt
// order) every callback whose deadline this crosses.
func (v *VirtualTimer) Advance(d time.Duration) {
	v.mu.Lock()
	v.now += d
	now := v.now

	var due []*virtualEntry
	for id, e := range v.pending {
		if e.fireAt <= now {
			due = append(due, e)
			delete(v.pending, id)
		}
	}
	v.mu.Unlock()

	sortByFireAt(due)
	for _, e := range due {
		e.cb()
	}
}

func sortByFireAt(entries []*virtualEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].fireAt < entries[j-1].fireAt; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// Pending reports how many callbacks are still scheduled (test
// convenience, e.g. asserting cancellation actually removed one).
func (v *VirtualTimer) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.pending)
}
