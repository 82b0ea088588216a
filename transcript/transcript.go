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

// Package transcript maintains the append-only causal-order DAG of
// accepted group messages: parent/anti-chain/author-order/reader-order
// validation on add, full-ack tracking via reader-authored descendants,
// and a 3-way merge helper for membership-set state that diverges across
// concurrent branches (spec.md §4.5).
package transcript

import (
	"container/list"
	"sort"
	"strings"
	"sync"

	"github.com/mpenc-go/mpenc/internal/metrics"
	"github.com/mpenc-go/mpenc/merrors"
)

// UserId identifies a transcript participant. Kept independent of
// greet.UserId/gka.UserId/aske.UserId; a session wires the conversion.
type UserId string

// MessageId names a transcript node; session.Send assigns a random UUID.
type MessageId string

// Message is one accepted transcript entry. PreRUID is the author's
// claim, for each reader u, of the latest message authored by u that
// this message sees; add verifies the claim against the actual DAG
// before accepting the node (spec.md §4.5 invariant (d)).
type Message struct {
	ID      MessageId
	Author  UserId
	Parents []MessageId
	Readers []UserId
	Body    []byte
	PreRUID map[UserId]MessageId
}

type node struct {
	msg       Message
	idx       int
	authorSeq int
}

// Store is the transcript DAG for one group session.
type Store struct {
	mu sync.RWMutex

	nodes map[MessageId]*node
	order []MessageId

	authorLast  map[UserId]MessageId
	authorCount map[UserId]int

	unackedBy  map[MessageId]map[UserId]struct{}
	fullyAcked map[MessageId]bool

	mergeMemo *mergeLRU

	onFullyAcked func(MessageId)
}

// OnFullyAcked registers a callback fired exactly once per message, the
// moment it reaches full-ack (spec.md §2's MsgFullyAcked event). It is
// not called for messages already fully acked (none are, at registration
// time, since a Store's fully-acked set only ever grows from Add).
func (s *Store) OnFullyAcked(cb func(MessageId)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFullyAcked = cb
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{
		nodes:       make(map[MessageId]*node),
		authorLast:  make(map[UserId]MessageId),
		authorCount: make(map[UserId]int),
		unackedBy:   make(map[MessageId]map[UserId]struct{}),
		fullyAcked:  make(map[MessageId]bool),
		mergeMemo:   newMergeLRU(256),
	}
}

// Get returns the message for id, if present.
func (s *Store) Get(id MessageId) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Message{}, false
	}
	return n.msg, true
}

// Add validates and inserts m, per spec.md §4.5's add(m) contract:
// parents present, parents form an anti-chain, the author's previous
// message (if any) is an ancestor of m, and every reader's pre_ruid
// claim matches the DAG. Acks implied by m are propagated afterwards.
func (s *Store) Add(m Message) error {
	s.mu.Lock()

	if err := s.validateLocked(m); err != nil {
		s.mu.Unlock()
		return err
	}

	idx := len(s.order)
	authorSeq := s.authorCount[m.Author]
	s.authorCount[m.Author] = authorSeq + 1

	n := &node{msg: m, idx: idx, authorSeq: authorSeq}
	s.nodes[m.ID] = n
	s.order = append(s.order, m.ID)
	s.authorLast[m.Author] = m.ID

	readers := make(map[UserId]struct{}, len(m.Readers))
	for _, u := range m.Readers {
		readers[u] = struct{}{}
	}
	s.unackedBy[m.ID] = readers

	acked := s.propagateAcks(m.ID, m.Author)
	cb := s.onFullyAcked
	s.mu.Unlock()

	if cb != nil {
		for _, id := range acked {
			cb(id)
		}
	}

	return nil
}

func (s *Store) validateLocked(m Message) error {
	if _, exists := s.nodes[m.ID]; exists {
		return merrors.NewProtocolError("transcript.add", "message already present: "+string(m.ID))
	}

	for _, p := range m.Parents {
		if _, ok := s.nodes[p]; !ok {
			return merrors.NewProtocolError("transcript.add", "parent not present: "+string(p))
		}
	}

	for i, pi := range m.Parents {
		for j, pj := range m.Parents {
			if i == j {
				continue
			}
			if s.leLocked(pi, pj) {
				return merrors.NewProtocolError("transcript.add", "parents are not an anti-chain")
			}
		}
	}

	if prev, ok := s.authorLast[m.Author]; ok {
		if !s.reachableFromParents(prev, m.Parents) {
			return merrors.NewProtocolError("transcript.add", "author's previous message is not an ancestor")
		}
	}

	for _, u := range m.Readers {
		latest, found := s.latestByAuthorFromParents(u, m.Parents)
		claimed, claimedOK := m.PreRUID[u]
		if found != claimedOK || (found && latest != claimed) {
			return merrors.NewProtocolError("transcript.add", "pre_ruid mismatch for reader "+string(u))
		}
	}

	return nil
}

// propagateAcks removes author from unack_by(m0) for every not-yet-acked
// ancestor m0 of m reachable via a path whose intermediates all have
// author(m0) as a reader or are authored by author(m0) (spec.md §4.5
// "Ack propagation"; see hasReaderPreservedPath), and returns
// the ids that newly reached full-ack as a result. Callers must invoke
// any fully-acked callback only after releasing s.mu, since the
// callback may call back into the Store.
func (s *Store) propagateAcks(newID MessageId, author UserId) []MessageId {
	var acked []MessageId
	for m0id, remaining := range s.unackedBy {
		if m0id == newID {
			continue
		}
		if _, pending := remaining[author]; !pending {
			continue
		}
		if !s.leLocked(m0id, newID) {
			continue
		}
		if s.hasReaderPreservedPath(m0id, newID) {
			delete(remaining, author)
			if len(remaining) == 0 && !s.fullyAcked[m0id] {
				s.fullyAcked[m0id] = true
				metrics.TranscriptFullyAcked.Inc()
				acked = append(acked, m0id)
			}
		}
	}
	return acked
}

// hasReaderPreservedPath reports whether some path from originID up to
// targetID (via parent edges) has every intermediate node either
// carrying origin's author as a reader, or itself authored by origin's
// author (the author's own continuing chain always sees its own past,
// regardless of who else reads it).
func (s *Store) hasReaderPreservedPath(originID, targetID MessageId) bool {
	origin, ok := s.nodes[originID]
	if !ok {
		return false
	}

	visited := map[MessageId]bool{targetID: true}
	queue := []MessageId{targetID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == originID {
			return true
		}
		curNode, ok := s.nodes[cur]
		if !ok {
			continue
		}
		for _, p := range curNode.msg.Parents {
			if visited[p] {
				continue
			}
			if p != originID {
				pNode := s.nodes[p]
				if pNode == nil {
					continue
				}
				if pNode.msg.Author != origin.msg.Author && !isReader(pNode, origin.msg.Author) {
					continue
				}
			}
			visited[p] = true
			queue = append(queue, p)
		}
	}
	return false
}

func isReader(n *node, u UserId) bool {
	if n == nil {
		return false
	}
	for _, r := range n.msg.Readers {
		if r == u {
			return true
		}
	}
	return false
}

// reachableFromParents reports whether target equals, or is reachable
// via parent edges from, any of parents. Used for checks against a
// candidate message's parents before it has been inserted.
func (s *Store) reachableFromParents(target MessageId, parents []MessageId) bool {
	visited := map[MessageId]bool{}
	queue := append([]MessageId{}, parents...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		n, ok := s.nodes[cur]
		if !ok {
			continue
		}
		queue = append(queue, n.msg.Parents...)
	}
	return false
}

// latestByAuthorFromParents finds the highest author-sequence message by
// author reachable from parents, i.e. the message m would claim as
// pre_ruid(m, author) if it had these parents.
func (s *Store) latestByAuthorFromParents(author UserId, parents []MessageId) (MessageId, bool) {
	visited := map[MessageId]bool{}
	queue := append([]MessageId{}, parents...)
	var best MessageId
	bestSeq := -1
	found := false
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		n, ok := s.nodes[cur]
		if !ok {
			continue
		}
		if n.msg.Author == author && n.authorSeq > bestSeq {
			bestSeq = n.authorSeq
			best = cur
			found = true
		}
		queue = append(queue, n.msg.Parents...)
	}
	return best, found
}

// Le reports whether a is b or a causal ancestor of b.
func (s *Store) Le(a, b MessageId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leLocked(a, b)
}

// Ge reports whether a is b or a causal descendant of b.
func (s *Store) Ge(a, b MessageId) bool {
	return s.Le(b, a)
}

// leLocked implements le(a, b) with the two shortcuts spec.md calls out
// before falling back to a bounded breadth-first search: same author
// compares author-sequence indices directly; otherwise, if author(a) is
// a reader of b, b's own pre_ruid claim for that author resolves the
// comparison in one step. Caller must hold s.mu (read or write).
func (s *Store) leLocked(a, b MessageId) bool {
	if a == b {
		return true
	}
	na, okA := s.nodes[a]
	nb, okB := s.nodes[b]
	if !okA || !okB {
		return false
	}

	if na.msg.Author == nb.msg.Author {
		return na.authorSeq <= nb.authorSeq
	}

	if isReader(nb, na.msg.Author) {
		if ref, ok := nb.msg.PreRUID[na.msg.Author]; ok {
			if refNode, ok2 := s.nodes[ref]; ok2 {
				return na.authorSeq <= refNode.authorSeq
			}
		}
	}

	return s.reachableFromParents(a, nb.msg.Parents)
}

// UnackBy returns the current set of intended recipients that have not
// yet authored a descendant of m.
func (s *Store) UnackBy(m MessageId) []UserId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	remaining, ok := s.unackedBy[m]
	if !ok {
		return nil
	}
	out := make([]UserId, 0, len(remaining))
	for u := range remaining {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsFullyAcked reports whether m has reached full-ack.
func (s *Store) IsFullyAcked(m MessageId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fullyAcked[m]
}

// Predicate tests a transcript message during a pre_pred walk.
type Predicate func(Message) bool

// PrePred returns the maximal ancestors of m satisfying pred: a
// breadth-first topological walk from m's parents that stops expanding
// a branch the moment it finds a satisfying node (spec.md §4.5).
func (s *Store) PrePred(m MessageId, pred Predicate) []MessageId {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[m]
	if !ok {
		return nil
	}

	visited := map[MessageId]bool{m: true}
	queue := append([]MessageId{}, n.msg.Parents...)
	var result []MessageId
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		cn, ok := s.nodes[cur]
		if !ok {
			continue
		}
		if pred(cn.msg) {
			result = append(result, cur)
			continue
		}
		queue = append(queue, cn.msg.Parents...)
	}
	return result
}
