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

// Package gka implements the CLIQUES-style group Diffie-Hellman key
// agreement: Initial Key Agreement (ika/upflow/downflow) and Auxiliary
// Key Agreement (aka_join/aka_exclude/aka_refresh).
//
// Every member keeps one "intermediate key" entry per other member in
// the group: intKeys[id] is the value that member id must raise to
// their own private scalar to recover the current group key. The member
// that completes an upflow chain, or initiates aka_exclude/aka_refresh,
// derives the group key directly from its running cardinal; every other
// member derives it from its own entry in the downflow, and keeps that
// entry so a later
// aka_join/aka_exclude initiated by someone else can fold it forward —
// this is what lets membership keep changing indefinitely without
// collapsing back to a full ika.
package gka

import (
	"sort"

	"github.com/mpenc-go/mpenc/crypto"
	"github.com/mpenc-go/mpenc/internal/logger"
	"github.com/mpenc-go/mpenc/internal/metrics"
	"github.com/mpenc-go/mpenc/merrors"
)

// UserId identifies a protocol participant.
type UserId string

// UpflowMessage is sent from one member to the next member of Chain
// during an initial or auxiliary-join key agreement round. Chain is the
// ordered sequence this particular round travels (the full roster for
// ika; [initiator, ...newMembers] for aka_join); Members is the full
// roster the round establishes, which may be larger than Chain.
type UpflowMessage struct {
	Source   UserId
	Dest     UserId
	Members  []UserId
	Chain    []UserId
	IntKeys  map[UserId][32]byte
	Cardinal [32]byte
}

// DownflowMessage is broadcast once the upflow chain completes (or
// immediately, for exclude/refresh), carrying every member's blinded
// intermediate key.
type DownflowMessage struct {
	Source  UserId
	Members []UserId
	IntKeys map[UserId][32]byte
}

// State holds one member's CLIQUES session state.
type State struct {
	Self UserId

	members  []UserId
	priv     [32]byte
	cardinal [32]byte
	intKeys  map[UserId][32]byte

	groupKey    [32]byte
	hasGroupKey bool

	lastDownflowKey string
}

// New returns a fresh, unkeyed state for self.
func New(self UserId) *State {
	return &State{Self: self}
}

// Members returns the current member list.
func (s *State) Members() []UserId {
	out := make([]UserId, len(s.members))
	copy(out, s.members)
	return out
}

// GroupKey returns the current group key, if one has been established.
func (s *State) GroupKey() ([32]byte, bool) {
	return s.groupKey, s.hasGroupKey
}

// Ika begins Initial Key Agreement with otherMembers (spec.md §4.1).
func (s *State) Ika(otherMembers []UserId) (*UpflowMessage, error) {
	if len(otherMembers) == 0 {
		return nil, merrors.NewArgumentError("gka.Ika", "other_members must not be empty")
	}
	members := append([]UserId{s.Self}, otherMembers...)
	if err := checkDuplicateFree(members); err != nil {
		return nil, err
	}

	priv, err := crypto.GenerateX25519Scalar()
	if err != nil {
		return nil, merrors.NewFatalError("gka.Ika", err.Error())
	}
	cardinal, err := crypto.ScalarBaseMult(priv)
	if err != nil {
		return nil, merrors.NewFatalError("gka.Ika", err.Error())
	}

	s.members = members
	s.priv = priv
	s.cardinal = cardinal
	s.intKeys = map[UserId][32]byte{}
	s.hasGroupKey = false

	logger.Debug("gka: ika started", logger.String("self", string(s.Self)), logger.Int("members", len(members)))
	metrics.GKARounds.WithLabelValues("ika").Inc()

	return &UpflowMessage{
		Source:   s.Self,
		Dest:     members[1],
		Members:  members,
		Chain:    members,
		IntKeys:  map[UserId][32]byte{},
		Cardinal: cardinal,
	}, nil
}

// Upflow consumes an upflow message and either forwards the chain or, if
// self is the last member of the chain, broadcasts the final downflow.
func (s *State) Upflow(msg *UpflowMessage) (any, error) {
	if err := checkDuplicateFree(msg.Chain); err != nil {
		metrics.GKAErrors.WithLabelValues("upflow").Inc()
		return nil, err
	}
	pos := memberIndex(msg.Chain, s.Self)
	if pos < 0 {
		metrics.GKAErrors.WithLabelValues("upflow").Inc()
		return nil, merrors.NewArgumentError("gka.Upflow", "self is not a member of the upflow chain")
	}

	priv, err := crypto.GenerateX25519Scalar()
	if err != nil {
		return nil, merrors.NewFatalError("gka.Upflow", err.Error())
	}

	newIntKeys, err := transform(priv, msg.IntKeys)
	if err != nil {
		return nil, err
	}
	if pos == 1 {
		if _, ok := newIntKeys[msg.Chain[0]]; !ok {
			// Fresh ika: the chain head has no prior contribution from
			// anyone yet, so it is seeded here from scratch; later hops
			// fold their own scalar into it via the generic transform.
			head, err := crypto.ScalarBaseMult(priv)
			if err != nil {
				return nil, merrors.NewFatalError("gka.Upflow", err.Error())
			}
			newIntKeys[msg.Chain[0]] = head
		}
	}
	newIntKeys[s.Self] = msg.Cardinal

	newCardinal, err := crypto.ScalarMult(priv, msg.Cardinal)
	if err != nil {
		return nil, merrors.NewFatalError("gka.Upflow", err.Error())
	}

	s.members = msg.Members
	s.priv = priv
	s.cardinal = newCardinal
	s.intKeys = newIntKeys

	if pos == len(msg.Chain)-1 {
		s.groupKey = newCardinal
		s.hasGroupKey = true
		logger.Debug("gka: upflow chain complete, broadcasting downflow", logger.String("self", string(s.Self)))
		metrics.GKARounds.WithLabelValues("ika").Inc()
		return &DownflowMessage{Source: s.Self, Members: msg.Members, IntKeys: newIntKeys}, nil
	}

	return &UpflowMessage{
		Source:   s.Self,
		Dest:     msg.Chain[pos+1],
		Members:  msg.Members,
		Chain:    msg.Chain,
		IntKeys:  newIntKeys,
		Cardinal: newCardinal,
	}, nil
}

// Downflow consumes a broadcast downflow and derives the group key.
// Idempotent for an identical payload (spec.md §4.1).
func (s *State) Downflow(msg *DownflowMessage) error {
	if memberIndex(msg.Members, s.Self) < 0 {
		metrics.GKAErrors.WithLabelValues("downflow").Inc()
		return merrors.NewProtocolError("gka.Downflow", "self is not a member of this downflow")
	}

	// Before a group key is established, s.members can only have come
	// from this node's own Ika call or from processing an Upflow for
	// this same round (both set it directly), so the completing
	// downflow must report exactly that roster. Auxiliary operations
	// (aka_join/aka_exclude/aka_refresh) only run once a group key is
	// already established and legitimately change membership via this
	// same message type, so the check does not apply once hasGroupKey
	// is true.
	if !s.hasGroupKey && !sameMembers(msg.Members, s.members) {
		metrics.GKAErrors.WithLabelValues("downflow").Inc()
		return merrors.NewProtocolError("gka.Downflow", "downflow membership does not match the upflow chain this round established")
	}

	key := downflowKey(msg)
	if s.hasGroupKey && key == s.lastDownflowKey {
		return nil
	}

	entry, ok := msg.IntKeys[s.Self]
	if !ok {
		metrics.GKAErrors.WithLabelValues("downflow").Inc()
		return merrors.NewProtocolError("gka.Downflow", "no intermediate key for self")
	}
	groupKey, err := crypto.ScalarMult(s.priv, entry)
	if err != nil {
		return merrors.NewFatalError("gka.Downflow", err.Error())
	}

	s.members = msg.Members
	s.intKeys = msg.IntKeys
	s.cardinal = groupKey
	s.groupKey = groupKey
	s.hasGroupKey = true
	s.lastDownflowKey = key

	logger.Debug("gka: downflow applied, group key derived", logger.String("self", string(s.Self)))
	return nil
}

// AkaJoin begins Auxiliary Key Agreement to add newMembers (spec.md §4.1).
// Unlike aka_exclude/aka_refresh, the initiator does not rotate its own
// scalar: joining has no forward-secrecy requirement against anyone, so
// the existing cardinal and intermediate keys simply become the start of
// a new upflow chain [self, newMembers...] that the new members extend
// with their own fresh scalars via the ordinary Upflow machinery.
func (s *State) AkaJoin(newMembers []UserId) (*UpflowMessage, error) {
	if len(newMembers) == 0 {
		return nil, merrors.NewArgumentError("gka.AkaJoin", "new_members must not be empty")
	}
	if !s.hasGroupKey {
		return nil, merrors.NewProtocolError("gka.AkaJoin", "no established group key to join into")
	}
	for _, m := range newMembers {
		if memberIndex(s.members, m) >= 0 {
			return nil, merrors.NewArgumentError("gka.AkaJoin", "new member already in group: "+string(m))
		}
	}
	if err := checkDuplicateFree(newMembers); err != nil {
		return nil, err
	}

	intKeys := make(map[UserId][32]byte, len(s.intKeys))
	for id, v := range s.intKeys {
		intKeys[id] = v
	}

	chain := append([]UserId{s.Self}, newMembers...)
	members := append(append([]UserId{}, s.members...), newMembers...)
	cardinal := s.cardinal

	s.members = members
	s.intKeys = intKeys
	s.hasGroupKey = false

	logger.Debug("gka: aka_join started", logger.String("self", string(s.Self)), logger.Int("new_members", len(newMembers)))
	metrics.GKARounds.WithLabelValues("join").Inc()

	return &UpflowMessage{
		Source:   s.Self,
		Dest:     newMembers[0],
		Members:  members,
		Chain:    chain,
		IntKeys:  intKeys,
		Cardinal: cardinal,
	}, nil
}

// AkaExclude removes excludeMembers and rekeys immediately (spec.md §4.1).
func (s *State) AkaExclude(excludeMembers []UserId) (*DownflowMessage, error) {
	if err := s.akaRemove(excludeMembers, true); err != nil {
		return nil, err
	}
	metrics.GKARounds.WithLabelValues("exclude").Inc()
	return &DownflowMessage{Source: s.Self, Members: s.members, IntKeys: s.intKeys}, nil
}

// AkaRefresh rotates the group key without changing membership.
func (s *State) AkaRefresh() (*DownflowMessage, error) {
	if err := s.akaRemove(nil, false); err != nil {
		return nil, err
	}
	metrics.GKARounds.WithLabelValues("refresh").Inc()
	return &DownflowMessage{Source: s.Self, Members: s.members, IntKeys: s.intKeys}, nil
}

func (s *State) akaRemove(excludeMembers []UserId, requireSubset bool) error {
	if !s.hasGroupKey {
		return merrors.NewProtocolError("gka.akaRemove", "no established group key")
	}
	for _, m := range excludeMembers {
		if m == s.Self {
			return merrors.NewArgumentError("gka.akaRemove", "cannot exclude self")
		}
		if memberIndex(s.members, m) < 0 {
			if requireSubset {
				return merrors.NewArgumentError("gka.akaRemove", "excluded member not in group: "+string(m))
			}
		}
	}
	if requireSubset && len(excludeMembers) >= len(s.members) {
		return merrors.NewArgumentError("gka.akaRemove", "exclude_members must be a strict subset of members")
	}

	remaining := make([]UserId, 0, len(s.members))
	for _, m := range s.members {
		if !contains(excludeMembers, m) {
			remaining = append(remaining, m)
		}
	}

	oldSelfEntry, hadSelfEntry := s.intKeys[s.Self]
	otherEntries := make(map[UserId][32]byte, len(remaining))
	for _, m := range remaining {
		if m == s.Self {
			continue
		}
		if v, ok := s.intKeys[m]; ok {
			otherEntries[m] = v
		}
	}

	priv, err := crypto.GenerateX25519Scalar()
	if err != nil {
		return merrors.NewFatalError("gka.akaRemove", err.Error())
	}
	newIntKeys, err := transform(priv, otherEntries)
	if err != nil {
		return err
	}
	if hadSelfEntry {
		newIntKeys[s.Self] = oldSelfEntry
	}
	newCardinal, err := crypto.ScalarMult(priv, s.cardinal)
	if err != nil {
		return merrors.NewFatalError("gka.akaRemove", err.Error())
	}

	s.members = remaining
	s.priv = priv
	s.cardinal = newCardinal
	s.intKeys = newIntKeys
	s.groupKey = newCardinal
	s.hasGroupKey = true

	logger.Debug("gka: rekeyed", logger.String("self", string(s.Self)), logger.Int("members", len(remaining)))
	return nil
}

// transform multiplies every value in keys by priv. Applied uniformly by
// every chain hop and by aka_exclude/aka_refresh initiators so a stored
// entry accumulates exactly the scalars of the members it must combine
// with, in whatever order operations occur.
func transform(priv [32]byte, keys map[UserId][32]byte) (map[UserId][32]byte, error) {
	out := make(map[UserId][32]byte, len(keys))
	for id, v := range keys {
		nv, err := crypto.ScalarMult(priv, v)
		if err != nil {
			return nil, merrors.NewFatalError("gka.transform", err.Error())
		}
		out[id] = nv
	}
	return out, nil
}

func checkDuplicateFree(members []UserId) error {
	seen := make(map[UserId]bool, len(members))
	for _, m := range members {
		if seen[m] {
			return merrors.NewArgumentError("gka", "duplicate member: "+string(m))
		}
		seen[m] = true
	}
	return nil
}

func memberIndex(members []UserId, id UserId) int {
	for i, m := range members {
		if m == id {
			return i
		}
	}
	return -1
}

func contains(members []UserId, id UserId) bool {
	return memberIndex(members, id) >= 0
}

// sameMembers reports whether a and b contain the same set of ids,
// regardless of order.
func sameMembers(a, b []UserId) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[UserId]bool, len(a))
	for _, m := range a {
		seen[m] = true
	}
	for _, m := range b {
		if !seen[m] {
			return false
		}
	}
	return true
}

func downflowKey(msg *DownflowMessage) string {
	ids := make([]string, 0, len(msg.IntKeys))
	for id := range msg.IntKeys {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	var buf []byte
	for _, id := range ids {
		v := msg.IntKeys[UserId(id)]
		buf = crypto.SHA256(buf, []byte(id), v[:])
	}
	return string(buf)
}
