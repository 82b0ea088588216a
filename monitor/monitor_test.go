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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type warnCall struct {
	key   Key
	final bool
}

func TestTrackFiresWarnAfterTimeout(t *testing.T) {
	vt := NewVirtualTimer()
	var warns []warnCall
	m := New(vt, Config{
		FullAckTimeout: func(Key) time.Duration { return 5 * time.Second },
		OnWarn:         func(key Key, final bool) { warns = append(warns, warnCall{key, final}) },
	})

	m.Track("m1")
	vt.Advance(4 * time.Second)
	assert.Empty(t, warns)

	vt.Advance(1 * time.Second)
	require.Len(t, warns, 1)
	assert.Equal(t, Key("m1"), warns[0].key)
	assert.False(t, warns[0].final)
}

func TestResolveCancelsWarnTimer(t *testing.T) {
	vt := NewVirtualTimer()
	var warns []warnCall
	m := New(vt, Config{
		FullAckTimeout: func(Key) time.Duration { return 5 * time.Second },
		OnWarn:         func(key Key, final bool) { warns = append(warns, warnCall{key, final}) },
	})

	m.Track("m1")
	m.Resolve("m1")
	vt.Advance(10 * time.Second)
	assert.Empty(t, warns)
}

func TestActiveAckMonitorFiresOnScheduleAndRepeatsLastInterval(t *testing.T) {
	vt := NewVirtualTimer()
	ticks := 0
	m := New(vt, Config{
		ActiveAckIntervals: []time.Duration{1 * time.Second, 2 * time.Second},
		OnUnacked:          func(Key) { ticks++ },
	})

	m.Track("m1")
	vt.Advance(1 * time.Second)
	assert.Equal(t, 1, ticks)

	vt.Advance(2 * time.Second)
	assert.Equal(t, 2, ticks)

	// Sequence exhausted: the last interval (2s) repeats.
	vt.Advance(2 * time.Second)
	assert.Equal(t, 3, ticks)
}

func TestActiveAckFiresUnackedByOwnWhenSelfPending(t *testing.T) {
	vt := NewVirtualTimer()
	var unacked, unackedByOwn int
	m := New(vt, Config{
		Self:               "alice",
		ActiveAckIntervals: []time.Duration{1 * time.Second},
		UnackBy:            func(Key) []string { return []string{"alice", "bob"} },
		OnUnacked:          func(Key) { unacked++ },
		OnUnackedByOwn:     func(Key) { unackedByOwn++ },
	})

	m.Track("m1")
	vt.Advance(1 * time.Second)
	assert.Equal(t, 1, unacked)
	assert.Equal(t, 1, unackedByOwn)
}

func TestActiveAckSkipsUnackedByOwnWhenSelfAlreadyAcked(t *testing.T) {
	vt := NewVirtualTimer()
	var unackedByOwn int
	m := New(vt, Config{
		Self:               "alice",
		ActiveAckIntervals: []time.Duration{1 * time.Second},
		UnackBy:            func(Key) []string { return []string{"bob"} },
		OnUnackedByOwn:     func(Key) { unackedByOwn++ },
	})

	m.Track("m1")
	vt.Advance(1 * time.Second)
	assert.Zero(t, unackedByOwn)
}

func TestStopFiresFinalWarningForRemainingKeys(t *testing.T) {
	vt := NewVirtualTimer()
	var warns []warnCall
	m := New(vt, Config{
		FullAckTimeout: func(Key) time.Duration { return 5 * time.Second },
		OnWarn:         func(key Key, final bool) { warns = append(warns, warnCall{key, final}) },
	})

	m.Track("m1")
	m.Track("m2")
	m.Stop()

	require.Len(t, warns, 2)
	for _, w := range warns {
		assert.True(t, w.final)
	}

	// Stopping cancelled the pending warn timers; advancing further must
	// not raise a second, non-final warning for either key.
	vt.Advance(10 * time.Second)
	assert.Len(t, warns, 2)
}

func TestTrackAfterStopIsNoop(t *testing.T) {
	vt := NewVirtualTimer()
	calls := 0
	m := New(vt, Config{
		FullAckTimeout: func(Key) time.Duration { return time.Second },
		OnWarn:         func(Key, bool) { calls++ },
	})
	m.Stop()
	m.Track("m1")
	vt.Advance(10 * time.Second)
	assert.Zero(t, calls)
}
