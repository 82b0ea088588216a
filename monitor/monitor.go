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

package monitor

import (
	"sync"
	"time"

	"github.com/mpenc-go/mpenc/internal/metrics"
)

// Key names one expectation the monitor tracks (typically a transcript
// MessageId, stringified by the caller — this package stays independent
// of the transcript package's types).
type Key string

// Config wires the monitor to its caller's notion of full-ack and to
// the policies governing timeout/retry behaviour. Every field is
// optional: a nil FullAckTimeout disables the warning timer, a nil
// UnackBy disables OnUnackedByOwn, and a nil ActiveAckIntervals disables
// the active-ack monitor entirely.
type Config struct {
	// Self is the local member id, compared against UnackBy(key) to
	// decide whether handle_unack_by_own should fire alongside
	// handle_unacked.
	Self string

	// FullAckTimeout returns full_ack_timeout(key): how long to wait
	// before raising a non-final warning if key isn't fully acked yet.
	FullAckTimeout func(key Key) time.Duration

	// ActiveAckIntervals is the interval sequence driving the optional
	// active-ack monitor. The last entry repeats once the sequence is
	// exhausted. Nil/empty disables the active-ack monitor for this key.
	ActiveAckIntervals []time.Duration

	// UnackBy returns the current unack_by(key) set as caller-defined
	// member ids.
	UnackBy func(key Key) []string

	// OnWarn is full_ack_warn(key, final).
	OnWarn func(key Key, final bool)

	// OnUnacked is handle_unacked(key), called on every active-ack tick.
	OnUnacked func(key Key)

	// OnUnackedByOwn is handle_unack_by_own(key), called in addition to
	// OnUnacked when Self appears in UnackBy(key).
	OnUnackedByOwn func(key Key)
}

type entry struct {
	cancelWarn   CancelFunc
	cancelActive CancelFunc
	activeStep   int
}

// Monitor tracks expectation keys and raises warnings/active-ack ticks
// through an injected Timer (spec.md §4.6).
type Monitor struct {
	timer Timer
	cfg   Config

	mu      sync.Mutex
	entries map[Key]*entry
	stopped bool
}

// New returns a Monitor scheduling against timer with the given Config.
func New(timer Timer, cfg Config) *Monitor {
	return &Monitor{
		timer:   timer,
		cfg:     cfg,
		entries: make(map[Key]*entry),
	}
}

// Track begins monitoring key: a one-shot warning timer, plus a
// repeating active-ack timer if ActiveAckIntervals is configured. Track
// is a no-op if key is already tracked or the monitor has been stopped.
func (m *Monitor) Track(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if _, exists := m.entries[key]; exists {
		return
	}

	e := &entry{}
	m.entries[key] = e
	m.scheduleWarnLocked(key, e)
	m.scheduleActiveLocked(key, e)
}

func (m *Monitor) scheduleWarnLocked(key Key, e *entry) {
	if m.cfg.FullAckTimeout == nil {
		return
	}
	timeout := m.cfg.FullAckTimeout(key)
	e.cancelWarn = m.timer.After(timeout, func() {
		m.fireWarn(key, false)
	})
}

func (m *Monitor) scheduleActiveLocked(key Key, e *entry) {
	if len(m.cfg.ActiveAckIntervals) == 0 {
		return
	}
	e.cancelActive = m.timer.After(m.cfg.ActiveAckIntervals[0], func() {
		m.fireActive(key)
	})
}

func (m *Monitor) fireWarn(key Key, final bool) {
	label := "false"
	if final {
		label = "true"
	}
	metrics.ConsistencyWarnings.WithLabelValues(label).Inc()
	if m.cfg.OnWarn != nil {
		m.cfg.OnWarn(key, final)
	}
}

func (m *Monitor) fireActive(key Key) {
	m.mu.Lock()
	e, tracked := m.entries[key]
	if !tracked || m.stopped {
		m.mu.Unlock()
		return
	}
	e.activeStep++
	next := m.cfg.ActiveAckIntervals[len(m.cfg.ActiveAckIntervals)-1]
	if e.activeStep < len(m.cfg.ActiveAckIntervals) {
		next = m.cfg.ActiveAckIntervals[e.activeStep]
	}
	e.cancelActive = m.timer.After(next, func() { m.fireActive(key) })
	m.mu.Unlock()

	if m.cfg.OnUnacked != nil {
		m.cfg.OnUnacked(key)
	}
	if m.cfg.OnUnackedByOwn != nil && m.cfg.UnackBy != nil && m.isSelfUnacked(key) {
		m.cfg.OnUnackedByOwn(key)
	}
}

func (m *Monitor) isSelfUnacked(key Key) bool {
	for _, u := range m.cfg.UnackBy(key) {
		if u == m.cfg.Self {
			return true
		}
	}
	return false
}

// Resolve stops tracking key without raising a warning, for use once
// the caller observes key has reached full-ack: both timers are
// cancelled (spec.md §4.6 "On full-ack").
func (m *Monitor) Resolve(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return
	}
	cancelEntry(e)
	delete(m.entries, key)
}

// Stop cancels every remaining key's timers and raises a final warning
// (final=true) for each (spec.md §4.6 "On stop()").
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	remaining := make([]Key, 0, len(m.entries))
	for key, e := range m.entries {
		cancelEntry(e)
		remaining = append(remaining, key)
	}
	m.entries = make(map[Key]*entry)
	m.mu.Unlock()

	for _, key := range remaining {
		m.fireWarn(key, true)
	}
}

func cancelEntry(e *entry) {
	if e.cancelWarn != nil {
		e.cancelWarn()
	}
	if e.cancelActive != nil {
		e.cancelActive()
	}
}
