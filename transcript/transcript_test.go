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

package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsMissingParent(t *testing.T) {
	s := NewStore()
	err := s.Add(Message{ID: "a", Author: "alice", Parents: []MessageId{"ghost"}})
	assert.Error(t, err)
}

func TestAddRejectsNonAntiChainParents(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "o", Author: "alice"}))
	require.NoError(t, s.Add(Message{ID: "a", Author: "alice", Parents: []MessageId{"o"}}))

	// b names both o and a as parents, but o <= a, so {o, a} is not an
	// anti-chain.
	err := s.Add(Message{ID: "b", Author: "bob", Parents: []MessageId{"o", "a"}})
	assert.Error(t, err)
}

func TestAddRejectsWhenAuthorPreviousNotAncestor(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "a1", Author: "alice"}))
	require.NoError(t, s.Add(Message{ID: "o", Author: "bob"}))

	// a2 claims author alice again but doesn't descend from a1.
	err := s.Add(Message{ID: "a2", Author: "alice", Parents: []MessageId{"o"}})
	assert.Error(t, err)
}

func TestAddRejectsPreRUIDMismatch(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "o", Author: "alice", Readers: []UserId{"bob"}}))
	require.NoError(t, s.Add(Message{ID: "a", Author: "alice", Parents: []MessageId{"o"}, Readers: []UserId{"bob"}}))

	// b is authored by bob and reads alice, but falsely claims to see "o"
	// as alice's latest message when "a" is actually later.
	err := s.Add(Message{
		ID: "b", Author: "bob", Parents: []MessageId{"a"}, Readers: []UserId{"alice"},
		PreRUID: map[UserId]MessageId{"alice": "o"},
	})
	assert.Error(t, err)
}

// buildScenario4 replays spec.md's concrete "causal ack" scenario:
// O -(Alice)-> A -(Alice)-> ... with Bob reading both, then Bob's B
// acking both in one shot.
func buildScenario4(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "O", Author: "alice", Readers: []UserId{"bob"}}))
	require.NoError(t, s.Add(Message{
		ID: "A", Author: "alice", Parents: []MessageId{"O"}, Readers: []UserId{"bob"},
	}))
	require.NoError(t, s.Add(Message{
		ID: "B", Author: "bob", Parents: []MessageId{"A"}, Readers: []UserId{"alice"},
		PreRUID: map[UserId]MessageId{"alice": "A"},
	}))
	return s
}

func TestCausalAckAcksEntireAuthorChain(t *testing.T) {
	s := buildScenario4(t)
	assert.Empty(t, s.UnackBy("A"))
	assert.Empty(t, s.UnackBy("O"))
	assert.True(t, s.IsFullyAcked("A"))
	assert.True(t, s.IsFullyAcked("O"))
}

func TestOnFullyAckedFiresOnceAfterUnlock(t *testing.T) {
	s := NewStore()
	var acked []MessageId
	s.OnFullyAcked(func(id MessageId) {
		// Calling back into the Store from inside the callback must not
		// deadlock: the callback fires after Add releases its lock.
		_, _ = s.Get(id)
		acked = append(acked, id)
	})

	require.NoError(t, s.Add(Message{ID: "O", Author: "alice", Readers: []UserId{"bob"}}))
	assert.Empty(t, acked)

	require.NoError(t, s.Add(Message{
		ID: "B", Author: "bob", Parents: []MessageId{"O"},
		PreRUID: map[UserId]MessageId{"alice": "O"},
	}))
	assert.Equal(t, []MessageId{"O"}, acked)
}

func TestAckDoesNotCrossNonReaderIntermediate(t *testing.T) {
	s := NewStore()
	// O authored by alice, read by bob.
	require.NoError(t, s.Add(Message{ID: "O", Author: "alice", Readers: []UserId{"bob"}}))
	// X authored by carol (a third party who does not read for bob), sits
	// between O and the eventual ack.
	require.NoError(t, s.Add(Message{ID: "X", Author: "carol", Parents: []MessageId{"O"}, Readers: []UserId{"dave"}}))
	// B authored by bob, acks through X, but X never disclosed to alice's
	// intended reader set in a way that should count.
	require.NoError(t, s.Add(Message{
		ID: "B", Author: "bob", Parents: []MessageId{"X"}, Readers: []UserId{"alice"},
		PreRUID: map[UserId]MessageId{"alice": "O"},
	}))

	assert.Contains(t, s.UnackBy("O"), UserId("bob"))
	assert.False(t, s.IsFullyAcked("O"))
}

func TestLeAuthorIndexShortcut(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "a1", Author: "alice"}))
	require.NoError(t, s.Add(Message{ID: "a2", Author: "alice", Parents: []MessageId{"a1"}}))
	assert.True(t, s.Le("a1", "a2"))
	assert.False(t, s.Le("a2", "a1"))
}

func TestLeReaderShortcut(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "a1", Author: "alice", Readers: []UserId{"bob"}}))
	require.NoError(t, s.Add(Message{
		ID: "b1", Author: "bob", Parents: []MessageId{"a1"}, Readers: []UserId{"alice"},
		PreRUID: map[UserId]MessageId{"alice": "a1"},
	}))
	assert.True(t, s.Le("a1", "b1"))
	assert.True(t, s.Ge("b1", "a1"))
}

func TestPrePredReturnsMaximalAncestorsMatching(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "root", Author: "alice"}))
	require.NoError(t, s.Add(Message{ID: "mid", Author: "alice", Parents: []MessageId{"root"}, Body: []byte("tag")}))
	require.NoError(t, s.Add(Message{ID: "tip", Author: "alice", Parents: []MessageId{"mid"}}))

	tagged := func(m Message) bool { return len(m.Body) > 0 }
	got := s.PrePred("tip", tagged)
	assert.Equal(t, []MessageId{"mid"}, got)
}

func TestMergeTipsAppliesPatch(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "base", Author: "alice"}))
	require.NoError(t, s.Add(Message{ID: "tipA", Author: "alice", Parents: []MessageId{"base"}}))
	require.NoError(t, s.Add(Message{ID: "tipB", Author: "bob", Parents: []MessageId{"base"}}))

	views := map[MessageId]MembershipSet{
		"base": NewMembershipSet("1", "2", "3"),
		"tipA": NewMembershipSet("1", "2", "3", "4"), // A includes 4
		"tipB": NewMembershipSet("2", "3"),           // B excludes 1
	}
	merged, err := s.MergeTips("tipA", "tipB", func(id MessageId) MembershipSet { return views[id] })
	require.NoError(t, err)
	assert.Contains(t, merged, UserId("2"))
	assert.Contains(t, merged, UserId("3"))
	assert.Contains(t, merged, UserId("4"))
	assert.NotContains(t, merged, UserId("1"))
}

func TestMembershipPatchRejectsConflictingDelta(t *testing.T) {
	// patch's intersection guard defends against a caller-supplied delta
	// that both adds and removes the same member; p.diff(a) can never
	// produce this on its own (added/removed are disjoint by
	// construction), so this exercises the guard directly.
	_, err := NewMembershipSet("1").patch([]UserId{"1"}, []UserId{"1"})
	assert.Error(t, err)
}

func TestMergeTipsIsMemoized(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(Message{ID: "base", Author: "alice"}))
	require.NoError(t, s.Add(Message{ID: "tipA", Author: "alice", Parents: []MessageId{"base"}}))
	require.NoError(t, s.Add(Message{ID: "tipB", Author: "bob", Parents: []MessageId{"base"}}))

	calls := 0
	view := func(id MessageId) MembershipSet {
		calls++
		return NewMembershipSet("1")
	}
	_, err := s.MergeTips("tipA", "tipB", view)
	require.NoError(t, err)
	firstCalls := calls

	_, err = s.MergeTips("tipA", "tipB", view)
	require.NoError(t, err)
	assert.Equal(t, firstCalls, calls, "second call should hit the memo and not invoke view again")
}
