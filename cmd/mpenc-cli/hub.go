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

import "sync"

// hub is an in-process broadcast transport standing in for the group
// channel spec.md §1 leaves external: every frame a member sends is
// delivered to every other member's inbound stream. It only exists for
// the life of one mpenc-cli process — there is no cross-process wiring,
// since this module specifies no transport.
type hub struct {
	mu      sync.Mutex
	members map[string]chan string
}

func newHub() *hub {
	return &hub{members: make(map[string]chan string)}
}

// join registers id and returns the hubChannel it sends/receives
// through. Buffered generously since the demo drives every member from
// one process with no real network delay to smooth over.
func (h *hub) join(id string) *hubChannel {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan string, 256)
	h.members[id] = ch
	return &hubChannel{hub: h, self: id, in: ch}
}

func (h *hub) broadcast(from, frame string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.members {
		if id == from {
			continue
		}
		ch <- frame
	}
}

// leave removes id from future broadcasts and closes its inbound
// stream, unblocking its Session's run loop.
func (h *hub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.members[id]; ok {
		delete(h.members, id)
		close(ch)
	}
}

// hubChannel implements session.Channel against a hub.
type hubChannel struct {
	hub  *hub
	self string
	in   chan string
}

func (c *hubChannel) Send(frame string) error {
	c.hub.broadcast(c.self, frame)
	return nil
}

func (c *hubChannel) Inbound() <-chan string { return c.in }
