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

package gka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runIka drives an Ika/Upflow chain across states (in roster order) to
// completion and returns the DownflowMessage the last member broadcasts.
func runIka(t *testing.T, states []*State, members []UserId) *DownflowMessage {
	t.Helper()
	upflow, err := states[0].Ika(members[1:])
	require.NoError(t, err)

	for i := 1; i < len(states); i++ {
		out, err := states[i].Upflow(upflow)
		require.NoError(t, err)
		if i == len(states)-1 {
			down, ok := out.(*DownflowMessage)
			require.True(t, ok, "last member must produce a downflow")
			return down
		}
		up, ok := out.(*UpflowMessage)
		require.True(t, ok, "non-final member must produce an upflow")
		upflow = up
	}
	t.Fatal("unreachable")
	return nil
}

func applyDownflow(t *testing.T, states []*State, down *DownflowMessage) {
	t.Helper()
	for _, s := range states {
		if s.Self == down.Source {
			continue
		}
		require.NoError(t, s.Downflow(down))
	}
}

func newStates(ids ...UserId) []*State {
	out := make([]*State, len(ids))
	for i, id := range ids {
		out[i] = New(id)
	}
	return out
}

func TestIkaTwoMembersAgreeOnGroupKey(t *testing.T) {
	members := []UserId{"alice", "bob"}
	states := newStates(members...)

	down := runIka(t, states, members)
	applyDownflow(t, states, down)

	key0, ok0 := states[0].GroupKey()
	key1, ok1 := states[1].GroupKey()
	require.True(t, ok0)
	require.True(t, ok1)
	assert.Equal(t, key0, key1)
}

func TestIkaThreeMembersAgreeOnGroupKey(t *testing.T) {
	members := []UserId{"alice", "bob", "carol"}
	states := newStates(members...)

	down := runIka(t, states, members)
	applyDownflow(t, states, down)

	key, ok := states[0].GroupKey()
	require.True(t, ok)
	for _, s := range states[1:] {
		k, ok := s.GroupKey()
		require.True(t, ok)
		assert.Equal(t, key, k)
	}
}

func TestIkaRejectsEmptyOtherMembers(t *testing.T) {
	s := New("alice")
	_, err := s.Ika(nil)
	assert.Error(t, err)
}

func TestIkaRejectsDuplicateMembers(t *testing.T) {
	s := New("alice")
	_, err := s.Ika([]UserId{"bob", "bob"})
	assert.Error(t, err)
}

func TestUpflowRejectsNonMember(t *testing.T) {
	members := []UserId{"alice", "bob"}
	states := newStates(members...)
	upflow, err := states[0].Ika(members[1:])
	require.NoError(t, err)

	outsider := New("mallory")
	_, err = outsider.Upflow(upflow)
	assert.Error(t, err)
}

func TestDownflowRejectsMembershipWithoutSelf(t *testing.T) {
	members := []UserId{"alice", "bob", "carol"}
	states := newStates(members...)
	down := runIka(t, states, members)

	down.Members = []UserId{"bob", "carol"}
	err := states[0].Downflow(down)
	assert.Error(t, err)
}

func TestDownflowRejectsMembershipDivergingFromUpflow(t *testing.T) {
	members := []UserId{"alice", "bob", "carol"}
	states := newStates(members...)
	down := runIka(t, states, members)

	// Self (alice) is still present, so the self-presence check alone
	// would let this through; the roster itself silently differs from
	// the one alice's own Ika call and bob/carol's Upflow processing
	// actually agreed on.
	tampered := &DownflowMessage{
		Source:  down.Source,
		Members: []UserId{"alice", "bob", "mallory"},
		IntKeys: down.IntKeys,
	}
	err := states[0].Downflow(tampered)
	assert.Error(t, err)
}

func TestDownflowRejectsMissingOwnIntermediateKey(t *testing.T) {
	members := []UserId{"alice", "bob", "carol"}
	states := newStates(members...)
	down := runIka(t, states, members)

	delete(down.IntKeys, "alice")
	err := states[0].Downflow(down)
	assert.Error(t, err)
}

func TestDownflowIsIdempotent(t *testing.T) {
	members := []UserId{"alice", "bob"}
	states := newStates(members...)
	down := runIka(t, states, members)

	require.NoError(t, states[0].Downflow(down))
	key, _ := states[0].GroupKey()

	require.NoError(t, states[0].Downflow(down))
	key2, _ := states[0].GroupKey()
	assert.Equal(t, key, key2)
}

func TestAkaJoinAddsMemberAndRekeys(t *testing.T) {
	members := []UserId{"alice", "bob"}
	states := newStates(members...)
	down := runIka(t, states, members)
	applyDownflow(t, states, down)

	oldKey, _ := states[0].GroupKey()

	dave := New("dave")
	upflow, err := states[0].AkaJoin([]UserId{"dave"})
	require.NoError(t, err)

	out, err := dave.Upflow(upflow)
	require.NoError(t, err)
	downJoin, ok := out.(*DownflowMessage)
	require.True(t, ok)

	all := append(append([]*State{}, states...), dave)
	for _, s := range all {
		if s.Self == downJoin.Source {
			continue
		}
		require.NoError(t, s.Downflow(downJoin))
	}

	newKey, ok := states[0].GroupKey()
	require.True(t, ok)
	assert.NotEqual(t, oldKey, newKey)

	for _, s := range all {
		k, ok := s.GroupKey()
		require.True(t, ok)
		assert.Equal(t, newKey, k)
	}
	assert.ElementsMatch(t, []UserId{"alice", "bob", "dave"}, states[0].Members())
}

func TestAkaExcludeRemovesMemberAndRekeys(t *testing.T) {
	members := []UserId{"alice", "bob", "carol"}
	states := newStates(members...)
	down := runIka(t, states, members)
	applyDownflow(t, states, down)

	oldKey, _ := states[0].GroupKey()

	excludeDown, err := states[0].AkaExclude([]UserId{"carol"})
	require.NoError(t, err)

	require.NoError(t, states[1].Downflow(excludeDown))

	newKeyInit, _ := states[0].GroupKey()
	newKeyBob, _ := states[1].GroupKey()
	assert.Equal(t, newKeyInit, newKeyBob)
	assert.NotEqual(t, oldKey, newKeyInit)
	assert.ElementsMatch(t, []UserId{"alice", "bob"}, states[0].Members())
}

func TestAkaExcludeRejectsSelf(t *testing.T) {
	members := []UserId{"alice", "bob"}
	states := newStates(members...)
	down := runIka(t, states, members)
	applyDownflow(t, states, down)

	_, err := states[0].AkaExclude([]UserId{"alice"})
	assert.Error(t, err)
}

func TestAkaRefreshRotatesKeyWithoutMembershipChange(t *testing.T) {
	members := []UserId{"alice", "bob"}
	states := newStates(members...)
	down := runIka(t, states, members)
	applyDownflow(t, states, down)

	oldKey, _ := states[0].GroupKey()

	refreshDown, err := states[0].AkaRefresh()
	require.NoError(t, err)
	require.NoError(t, states[1].Downflow(refreshDown))

	newKeyInit, _ := states[0].GroupKey()
	newKeyBob, _ := states[1].GroupKey()
	assert.Equal(t, newKeyInit, newKeyBob)
	assert.NotEqual(t, oldKey, newKeyInit)
	assert.ElementsMatch(t, members, states[0].Members())
}

func TestAkaJoinRejectsWithoutEstablishedKey(t *testing.T) {
	s := New("alice")
	_, err := s.AkaJoin([]UserId{"bob"})
	assert.Error(t, err)
}

func TestAkaExcludeRejectsNonSubset(t *testing.T) {
	members := []UserId{"alice", "bob"}
	states := newStates(members...)
	down := runIka(t, states, members)
	applyDownflow(t, states, down)

	_, err := states[0].AkaExclude([]UserId{"mallory"})
	assert.Error(t, err)
}
