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

package greet

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpenc-go/mpenc/aske"
	"github.com/mpenc-go/mpenc/crypto/keys"
	"github.com/mpenc-go/mpenc/gka"
)

// testGroup wires up Machines for ids sharing one key directory.
type testGroup struct {
	t        *testing.T
	dir      *aske.MemoryKeyDirectory
	machines map[UserId]*Machine
}

func newTestGroup(t *testing.T, ids ...UserId) *testGroup {
	t.Helper()
	g := &testGroup{t: t, dir: aske.NewMemoryKeyDirectory(), machines: map[UserId]*Machine{}}
	for _, id := range ids {
		g.add(id)
	}
	return g
}

func (g *testGroup) add(id UserId) *Machine {
	g.t.Helper()
	kp, err := keys.GenerateEd25519KeyPair()
	require.NoError(g.t, err)
	g.dir.Put(aske.UserId(id), ed25519.PublicKey(kp.PublicKey()))
	m := New(id, kp, g.dir)
	g.machines[id] = m
	return m
}

// runGreet drives Start/HandleUpflow/HandleDownflow across members to
// READY and returns the final broadcast downflow packet.
func runGreet(t *testing.T, g *testGroup, members []UserId) *Packet {
	t.Helper()
	first := g.machines[members[0]]
	up, err := first.Start(members[1:])
	require.NoError(t, err)

	var down *Packet
	for i := 1; i < len(members); i++ {
		m := g.machines[members[i]]
		out, err := m.HandleUpflow(up)
		require.NoError(t, err)
		if i == len(members)-1 {
			require.Equal(t, FlowDownflow, out.Flow)
			down = out
			break
		}
		require.Equal(t, FlowUpflow, out.Flow)
		up = out
	}
	require.NotNil(t, down)

	broadcastDownflow(t, g, members, down)
	return down
}

// broadcastDownflow delivers down, and every acknowledgement it and its
// descendants produce, to every other member until the whole group
// reaches mutual authentication.
func broadcastDownflow(t *testing.T, g *testGroup, members []UserId, down *Packet) {
	t.Helper()
	queue := []*Packet{down}

	for len(queue) > 0 {
		pkt := queue[0]
		queue = queue[1:]
		for _, id := range members {
			if id == pkt.Source {
				continue
			}
			m := g.machines[id]
			ack, err := m.HandleDownflow(pkt)
			if err != nil {
				t.Fatalf("%s HandleDownflow: %v", id, err)
			}
			if ack != nil {
				queue = append(queue, ack)
			}
		}
	}
}

func TestStartHandshakeReachesReadyWithSharedGroupKey(t *testing.T) {
	members := []UserId{"alice", "bob", "carol"}
	g := newTestGroup(t, members...)

	runGreet(t, g, members)

	var key [32]byte
	for i, id := range members {
		m := g.machines[id]
		gk, ok := m.GroupKey()
		require.True(t, ok, "%s should have a group key", id)
		if i == 0 {
			key = gk
		} else {
			assert.Equal(t, key, gk, "%s group key should match", id)
		}
		assert.True(t, m.IsReady(), "%s should be READY", id)
	}
}

func TestStartRejectsWhenAlreadyStarted(t *testing.T) {
	g := newTestGroup(t, "alice", "bob")
	_, err := g.machines["alice"].Start([]UserId{"bob"})
	require.NoError(t, err)

	_, err = g.machines["alice"].Start([]UserId{"bob"})
	assert.Error(t, err)
}

func TestIncludeExcludeRefreshRequireReady(t *testing.T) {
	g := newTestGroup(t, "alice", "bob")
	m := g.machines["alice"]

	_, err := m.Include([]UserId{"carol"})
	assert.Error(t, err)

	_, err = m.Exclude([]UserId{"bob"})
	assert.Error(t, err)

	_, err = m.Refresh()
	assert.Error(t, err)
}

func TestRefreshProducesGKAOnlyPacket(t *testing.T) {
	members := []UserId{"alice", "bob"}
	g := newTestGroup(t, members...)
	runGreet(t, g, members)

	alice := g.machines["alice"]
	require.True(t, alice.IsReady())

	pkt, err := alice.Refresh()
	require.NoError(t, err)
	assert.Empty(t, pkt.SessionSignature)
	assert.Empty(t, pkt.SessionID)
	assert.NotEmpty(t, pkt.IntKeys)
	assert.Equal(t, StateAuxDownflow, alice.CurrentState())
}

func TestQuitReturnsEphemeralKeyAndTransitionsToQuit(t *testing.T) {
	g := newTestGroup(t, "alice", "bob")
	alice := g.machines["alice"]

	pkt, err := alice.Quit()
	require.NoError(t, err)
	assert.Equal(t, StateQuit, alice.CurrentState())
	assert.Equal(t, ed25519.SeedSize, len(pkt.SigningKey))

	_, err = alice.Quit()
	assert.Error(t, err)
}

func TestMergeUpflowRejectsSourceDestMismatch(t *testing.T) {
	gUp := &gka.UpflowMessage{Source: "alice", Dest: "bob", Members: []gka.UserId{"alice", "bob"}}
	aUp := &aske.UpflowMessage{Source: "alice", Dest: "carol", Members: []aske.UserId{"alice", "bob"}}

	_, err := mergeUpflow(gUp, aUp, AgreementInitial)
	assert.Error(t, err)
}

func TestMergeDownflowRejectsSourceMismatch(t *testing.T) {
	gDown := &gka.DownflowMessage{Source: "alice", Members: []gka.UserId{"alice", "bob"}}
	aDown := &aske.DownflowMessage{Source: "bob", Members: []aske.UserId{"alice", "bob"}}

	_, err := mergeDownflow(gDown, aDown, AgreementInitial)
	assert.Error(t, err)
}

func TestHandleUpflowRejectsWrongFlow(t *testing.T) {
	g := newTestGroup(t, "alice", "bob")
	_, err := g.machines["bob"].HandleUpflow(&Packet{Flow: FlowDownflow})
	assert.Error(t, err)
}

func TestHandleDownflowRejectsWrongFlow(t *testing.T) {
	g := newTestGroup(t, "alice", "bob")
	_, err := g.machines["bob"].HandleDownflow(&Packet{Flow: FlowUpflow})
	assert.Error(t, err)
}

func TestRecoverReinitializesFromAnyNonQuitState(t *testing.T) {
	g := newTestGroup(t, "alice", "bob", "carol")
	alice := g.machines["alice"]

	_, err := alice.Start([]UserId{"bob", "carol"})
	require.NoError(t, err)

	pkt, err := alice.Recover([]UserId{"bob", "carol"})
	require.NoError(t, err)
	assert.True(t, alice.Recovering())
	assert.Equal(t, StateInitUpflow, alice.CurrentState())
	assert.Equal(t, FlowUpflow, pkt.Flow)
}

func TestRecoverRejectsAfterQuit(t *testing.T) {
	g := newTestGroup(t, "alice", "bob")
	alice := g.machines["alice"]
	_, err := alice.Quit()
	require.NoError(t, err)

	_, err = alice.Recover([]UserId{"bob"})
	assert.Error(t, err)
}
