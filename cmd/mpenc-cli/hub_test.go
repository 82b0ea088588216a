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

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsToOthersNotSelf(t *testing.T) {
	h := newHub()
	a := h.join("alice")
	b := h.join("bob")
	c := h.join("carol")

	require.NoError(t, a.Send("frame-1"))

	select {
	case got := <-b.Inbound():
		assert.Equal(t, "frame-1", got)
	case <-time.After(time.Second):
		t.Fatal("bob never received the frame")
	}
	select {
	case got := <-c.Inbound():
		assert.Equal(t, "frame-1", got)
	case <-time.After(time.Second):
		t.Fatal("carol never received the frame")
	}

	select {
	case got := <-a.Inbound():
		t.Fatalf("alice should not receive her own frame, got %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubLeaveClosesInbound(t *testing.T) {
	h := newHub()
	a := h.join("alice")

	h.leave("alice")

	_, ok := <-a.Inbound()
	assert.False(t, ok, "inbound channel should be closed after leave")
}
