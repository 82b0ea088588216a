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

// Package greet implements the Greet state machine: it drives gka and
// aske in lockstep over one shared member chain and merges their
// per-hop messages into a single signed envelope (spec.md §4.3).
package greet

import (
	"crypto/ed25519"

	"github.com/google/uuid"

	"github.com/mpenc-go/mpenc/aske"
	"github.com/mpenc-go/mpenc/crypto/keys"
	"github.com/mpenc-go/mpenc/gka"
	"github.com/mpenc-go/mpenc/internal/logger"
	"github.com/mpenc-go/mpenc/internal/metrics"
	"github.com/mpenc-go/mpenc/merrors"
)

// UserId identifies a group member. Kept independent of gka.UserId and
// aske.UserId (all three are plain strings); this package is the one
// place that converts between them.
type UserId string

// State is a greet session's position in the state machine (spec.md
// §4.3 transition diagram).
type State int

const (
	StateNull State = iota
	StateInitUpflow
	StateInitDownflow
	StateAuxUpflow
	StateAuxDownflow
	StateReady
	StateQuit
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateInitUpflow:
		return "INIT_UPFLOW"
	case StateInitDownflow:
		return "INIT_DOWNFLOW"
	case StateAuxUpflow:
		return "AUX_UPFLOW"
	case StateAuxDownflow:
		return "AUX_DOWNFLOW"
	case StateReady:
		return "READY"
	case StateQuit:
		return "QUIT"
	default:
		return "UNKNOWN"
	}
}

// Flow distinguishes an upflow hop from a broadcast downflow.
type Flow string

const (
	FlowUpflow   Flow = "upflow"
	FlowDownflow Flow = "downflow"
)

// Agreement distinguishes an initial key agreement round from an
// auxiliary (join/exclude/refresh) one.
type Agreement string

const (
	AgreementInitial   Agreement = "initial"
	AgreementAuxiliary Agreement = "auxiliary"
)

// Packet is the merged GKA+ASKE wire packet (spec.md §4.3). Cardinal
// carries the running CLIQUES cardinal element that gka tracks
// alongside (but separate from) its per-member IntKeys map.
type Packet struct {
	CorrelationID string

	Source    UserId
	Dest      UserId // empty on broadcast
	Flow      Flow
	Agreement Agreement

	Members []UserId
	Chain   []UserId

	IntKeys  map[UserId][32]byte
	Cardinal [32]byte

	Nonces    map[UserId][32]byte
	PubKeys   map[UserId]ed25519.PublicKey
	SessionID []byte

	SessionSignature []byte
	SigningKey       []byte // only set on quit
}

// Machine is one member's greet session, composing a gka.State and an
// aske.State under one state-machine wrapper.
type Machine struct {
	Self       UserId
	state      State
	recovering bool

	staticKey *keys.Ed25519KeyPair
	directory aske.KeyDirectory

	gka  *gka.State
	aske *aske.State
}

// New returns a fresh Machine in state NULL.
func New(self UserId, staticKey *keys.Ed25519KeyPair, directory aske.KeyDirectory) *Machine {
	return &Machine{
		Self:      self,
		staticKey: staticKey,
		directory: directory,
		gka:       gka.New(gka.UserId(self)),
		aske:      aske.New(aske.UserId(self), staticKey, directory),
	}
}

// CurrentState returns the machine's current state.
func (m *Machine) CurrentState() State { return m.state }

// Recovering reports whether the current round is a full-recovery
// upflow (spec.md §4.3 "any -recover-> INIT_UPFLOW (recovering=true)").
func (m *Machine) Recovering() bool { return m.recovering }

// IsReady reports whether the session has reached READY.
func (m *Machine) IsReady() bool { return m.state == StateReady }

// GroupKey returns the current CLIQUES group key, if established.
func (m *Machine) GroupKey() ([32]byte, bool) { return m.gka.GroupKey() }

// SessionID returns the current ASKE session id, if established.
func (m *Machine) SessionID() ([]byte, bool) { return m.aske.SessionID() }

// Signers returns the current session's member-to-ephemeral-public-key
// map, the set message.DecodeEnvelope verifies packet signatures
// against.
func (m *Machine) Signers() map[UserId]ed25519.PublicKey {
	out := make(map[UserId]ed25519.PublicKey, len(m.aske.EphemeralPubKeys()))
	for k, v := range m.aske.EphemeralPubKeys() {
		out[UserId(k)] = v
	}
	return out
}

// EphemeralKey returns the machine's current ASKE ephemeral keypair, the
// key message.EncodeEnvelope signs outgoing packets with once the
// session is READY.
func (m *Machine) EphemeralKey() *keys.Ed25519KeyPair { return m.aske.EphemeralKey() }

func (m *Machine) transition(to State) {
	logger.Debug("greet transition", logger.String("self", string(m.Self)), logger.String("from", m.state.String()), logger.String("to", to.String()))
	metrics.GreetStateTransitions.WithLabelValues(m.state.String(), to.String()).Inc()
	m.state = to
}

// Start begins an Initial Key Agreement with otherMembers, driving both
// gka.Ika and aske.Commit and merging their first upflow hop.
func (m *Machine) Start(otherMembers []UserId) (*Packet, error) {
	if m.state != StateNull {
		return nil, merrors.NewProtocolError("greet.start", "greet already started")
	}
	gkaUp, err := m.gka.Ika(toGKAIds(otherMembers))
	if err != nil {
		return nil, err
	}
	askeUp, err := m.aske.Commit(toASKEIds(otherMembers))
	if err != nil {
		return nil, err
	}
	pkt, err := mergeUpflow(gkaUp, askeUp, AgreementInitial)
	if err != nil {
		return nil, err
	}
	m.recovering = false
	m.transition(StateInitUpflow)
	return pkt, nil
}

// Recover starts a full-recovery Initial Key Agreement (spec.md §4.3:
// "any -recover-> INIT_UPFLOW (recovering=true)"), usable from any
// state except QUIT.
func (m *Machine) Recover(members []UserId) (*Packet, error) {
	if m.state == StateQuit {
		return nil, merrors.NewProtocolError("greet.recover", "session already quit")
	}
	if len(members) == 0 {
		return nil, merrors.NewArgumentError("greet.recover", "members must not be empty")
	}
	others := make([]UserId, 0, len(members))
	for _, id := range members {
		if id != m.Self {
			others = append(others, id)
		}
	}
	m.gka = gka.New(gka.UserId(m.Self))
	m.aske = aske.New(aske.UserId(m.Self), m.staticKey, m.directory)

	gkaUp, err := m.gka.Ika(toGKAIds(others))
	if err != nil {
		return nil, err
	}
	askeUp, err := m.aske.Commit(toASKEIds(others))
	if err != nil {
		return nil, err
	}
	pkt, err := mergeUpflow(gkaUp, askeUp, AgreementInitial)
	if err != nil {
		return nil, err
	}
	m.recovering = true
	m.transition(StateInitUpflow)
	return pkt, nil
}

// HandleUpflow consumes an incoming merged upflow packet, dispatching
// its GKA and ASKE halves independently and re-merging their outputs.
// If self is the last member of the chain, both sub-protocols finalize
// and the result is a broadcast downflow; otherwise it is the next
// upflow hop.
func (m *Machine) HandleUpflow(pkt *Packet) (*Packet, error) {
	if pkt.Flow != FlowUpflow {
		return nil, merrors.NewProtocolError("greet.upflow", "expected an upflow packet")
	}

	gkaOut, err := m.gka.Upflow(packetToGKAUpflow(pkt))
	if err != nil {
		return nil, err
	}
	askeOut, err := m.aske.Upflow(packetToASKEUpflow(pkt))
	if err != nil {
		return nil, err
	}

	switch g := gkaOut.(type) {
	case *gka.UpflowMessage:
		a, ok := askeOut.(*aske.UpflowMessage)
		if !ok {
			return nil, merrors.NewFatalError("greet.upflow", "gka/aske disagree on round completion")
		}
		next, err := mergeUpflow(g, a, pkt.Agreement)
		if err != nil {
			return nil, err
		}
		if pkt.Agreement == AgreementAuxiliary {
			m.transition(StateAuxUpflow)
		} else {
			m.transition(StateInitUpflow)
		}
		return next, nil
	case *gka.DownflowMessage:
		a, ok := askeOut.(*aske.DownflowMessage)
		if !ok {
			return nil, merrors.NewFatalError("greet.upflow", "gka/aske disagree on round completion")
		}
		down, err := mergeDownflow(g, a, pkt.Agreement)
		if err != nil {
			return nil, err
		}
		if pkt.Agreement == AgreementAuxiliary {
			m.transition(StateAuxDownflow)
		} else {
			m.transition(StateInitDownflow)
		}
		return down, nil
	default:
		return nil, merrors.NewFatalError("greet.upflow", "unexpected gka upflow result type")
	}
}

// HandleDownflow consumes a broadcast downflow packet. Once both
// sub-protocols report full agreement (the group key is set and the
// ASKE session is fully acknowledged), the machine transitions to
// READY. On a member's first sight of a new ASKE session, aske.Downflow
// itself produces a fresh acknowledgement that must be broadcast to the
// rest of the group; HandleDownflow returns that as ack when non-nil, so
// the session can reach full mutual authentication the same way
// aske.State does on its own (spec.md §4.2).
func (m *Machine) HandleDownflow(pkt *Packet) (ack *Packet, err error) {
	if pkt.Flow != FlowDownflow {
		return nil, merrors.NewProtocolError("greet.downflow", "expected a downflow packet")
	}

	if err := m.gka.Downflow(packetToGKADownflow(pkt)); err != nil {
		return nil, err
	}
	// A pure GKA refresh (see Refresh) carries no ASKE signature: ASKE's
	// membership-bound session id is untouched by a key-only rotation.
	if len(pkt.SessionSignature) > 0 {
		out, err := m.aske.Downflow(packetToASKEDownflow(pkt))
		if err != nil {
			return nil, err
		}
		if out != nil {
			ack = &Packet{
				CorrelationID:    uuid.NewString(),
				Source:           UserId(out.Source),
				Flow:             FlowDownflow,
				Agreement:        pkt.Agreement,
				Members:          fromGKAIds(m.gka.Members()),
				Nonces:           fromASKENonceMap(out.Nonces),
				PubKeys:          fromASKEPubKeyMap(out.EphemeralPubKeys),
				SessionID:        append([]byte{}, out.SessionID...),
				SessionSignature: out.Signature,
			}
		}
	}

	if _, ok := m.gka.GroupKey(); ok && m.aske.IsSessionAcknowledged() {
		m.transition(StateReady)
	}
	return ack, nil
}

// Include starts an Auxiliary Key Agreement adding newMembers. Requires
// READY.
func (m *Machine) Include(newMembers []UserId) (*Packet, error) {
	if m.state != StateReady {
		return nil, merrors.NewProtocolError("greet.include", "session is not READY")
	}
	gkaUp, err := m.gka.AkaJoin(toGKAIds(newMembers))
	if err != nil {
		return nil, err
	}
	askeUp, err := m.aske.Join(toASKEIds(newMembers))
	if err != nil {
		return nil, err
	}
	pkt, err := mergeUpflow(gkaUp, askeUp, AgreementAuxiliary)
	if err != nil {
		return nil, err
	}
	m.transition(StateAuxUpflow)
	return pkt, nil
}

// Exclude drops excludeMembers and immediately broadcasts a downflow.
// Requires READY.
func (m *Machine) Exclude(excludeMembers []UserId) (*Packet, error) {
	if m.state != StateReady {
		return nil, merrors.NewProtocolError("greet.exclude", "session is not READY")
	}
	gkaDown, err := m.gka.AkaExclude(toGKAIds(excludeMembers))
	if err != nil {
		return nil, err
	}
	askeDown, err := m.aske.Exclude(toASKEIds(excludeMembers))
	if err != nil {
		return nil, err
	}
	pkt, err := mergeDownflow(gkaDown, askeDown, AgreementAuxiliary)
	if err != nil {
		return nil, err
	}
	m.transition(StateAuxDownflow)
	return pkt, nil
}

// Refresh rotates the group key without changing membership (GKA-only;
// ASKE's session id stays valid since membership is unchanged). Requires
// READY.
func (m *Machine) Refresh() (*Packet, error) {
	if m.state != StateReady {
		return nil, merrors.NewProtocolError("greet.refresh", "session is not READY")
	}
	gkaDown, err := m.gka.AkaRefresh()
	if err != nil {
		return nil, err
	}
	pkt := &Packet{
		CorrelationID: uuid.NewString(),
		Source:        UserId(gkaDown.Source),
		Flow:          FlowDownflow,
		Agreement:     AgreementAuxiliary,
		Members:       fromGKAIds(gkaDown.Members),
		IntKeys:       fromGKAKeyMap(gkaDown.IntKeys),
	}
	m.transition(StateAuxDownflow)
	return pkt, nil
}

// Quit tears down the session locally and returns the terminal QUIT
// packet. SigningKey is the member's released ephemeral private key
// (spec.md Data Model: "potential publication on QUIT").
func (m *Machine) Quit() (*Packet, error) {
	if m.state == StateQuit {
		return nil, merrors.NewProtocolError("greet.quit", "session already quit")
	}
	ephemeralPriv, err := m.aske.Quit()
	if err != nil {
		return nil, err
	}
	pkt := &Packet{
		CorrelationID: uuid.NewString(),
		Source:        m.Self,
		Flow:          FlowDownflow,
		Agreement:     AgreementAuxiliary,
		Members:       m.members(),
		SigningKey:    ephemeralPriv,
	}
	m.transition(StateQuit)
	return pkt, nil
}

func (m *Machine) members() []UserId {
	return fromGKAIds(m.gka.Members())
}

func mergeUpflow(g *gka.UpflowMessage, a *aske.UpflowMessage, agreement Agreement) (*Packet, error) {
	if UserId(g.Source) != UserId(a.Source) || UserId(g.Dest) != UserId(a.Dest) {
		return nil, merrors.NewFatalError("greet.merge", "gka/aske upflow source/dest mismatch")
	}
	return &Packet{
		CorrelationID: uuid.NewString(),
		Source:        UserId(g.Source),
		Dest:          UserId(g.Dest),
		Flow:          FlowUpflow,
		Agreement:     agreement,
		Members:       fromGKAIds(g.Members),
		Chain:         fromGKAIds(g.Chain),
		IntKeys:       fromGKAKeyMap(g.IntKeys),
		Cardinal:      g.Cardinal,
		Nonces:        fromASKENonceMap(a.Nonces),
		PubKeys:       fromASKEPubKeyMap(a.EphemeralPubKeys),
	}, nil
}

func mergeDownflow(g *gka.DownflowMessage, a *aske.DownflowMessage, agreement Agreement) (*Packet, error) {
	if UserId(g.Source) != UserId(a.Source) {
		return nil, merrors.NewFatalError("greet.merge", "gka/aske downflow source mismatch")
	}
	return &Packet{
		CorrelationID:    uuid.NewString(),
		Source:           UserId(g.Source),
		Flow:             FlowDownflow,
		Agreement:        agreement,
		Members:          fromGKAIds(g.Members),
		IntKeys:          fromGKAKeyMap(g.IntKeys),
		Nonces:           fromASKENonceMap(a.Nonces),
		PubKeys:          fromASKEPubKeyMap(a.EphemeralPubKeys),
		SessionID:        append([]byte{}, a.SessionID...),
		SessionSignature: a.Signature,
	}, nil
}

func packetToGKAUpflow(pkt *Packet) *gka.UpflowMessage {
	return &gka.UpflowMessage{
		Source:   gka.UserId(pkt.Source),
		Dest:     gka.UserId(pkt.Dest),
		Members:  toGKAIds(pkt.Members),
		Chain:    toGKAIds(pkt.Chain),
		IntKeys:  toGKAKeyMap(pkt.IntKeys),
		Cardinal: pkt.Cardinal,
	}
}

func packetToGKADownflow(pkt *Packet) *gka.DownflowMessage {
	return &gka.DownflowMessage{
		Source:  gka.UserId(pkt.Source),
		Members: toGKAIds(pkt.Members),
		IntKeys: toGKAKeyMap(pkt.IntKeys),
	}
}

func packetToASKEUpflow(pkt *Packet) *aske.UpflowMessage {
	return &aske.UpflowMessage{
		Source:           aske.UserId(pkt.Source),
		Dest:             aske.UserId(pkt.Dest),
		Members:          toASKEIds(pkt.Members),
		Chain:            toASKEIds(pkt.Chain),
		Nonces:           toASKENonceMap(pkt.Nonces),
		EphemeralPubKeys: toASKEPubKeyMap(pkt.PubKeys),
	}
}

func packetToASKEDownflow(pkt *Packet) *aske.DownflowMessage {
	return &aske.DownflowMessage{
		Source:           aske.UserId(pkt.Source),
		Members:          toASKEIds(pkt.Members),
		Nonces:           toASKENonceMap(pkt.Nonces),
		EphemeralPubKeys: toASKEPubKeyMap(pkt.PubKeys),
		SessionID:        pkt.SessionID,
		Signature:        pkt.SessionSignature,
	}
}

func toGKAIds(ids []UserId) []gka.UserId {
	out := make([]gka.UserId, len(ids))
	for i, id := range ids {
		out[i] = gka.UserId(id)
	}
	return out
}

func fromGKAIds(ids []gka.UserId) []UserId {
	out := make([]UserId, len(ids))
	for i, id := range ids {
		out[i] = UserId(id)
	}
	return out
}

func toASKEIds(ids []UserId) []aske.UserId {
	out := make([]aske.UserId, len(ids))
	for i, id := range ids {
		out[i] = aske.UserId(id)
	}
	return out
}

func toGKAKeyMap(m map[UserId][32]byte) map[gka.UserId][32]byte {
	out := make(map[gka.UserId][32]byte, len(m))
	for k, v := range m {
		out[gka.UserId(k)] = v
	}
	return out
}

func fromGKAKeyMap(m map[gka.UserId][32]byte) map[UserId][32]byte {
	out := make(map[UserId][32]byte, len(m))
	for k, v := range m {
		out[UserId(k)] = v
	}
	return out
}

func toASKENonceMap(m map[UserId][32]byte) map[aske.UserId][32]byte {
	out := make(map[aske.UserId][32]byte, len(m))
	for k, v := range m {
		out[aske.UserId(k)] = v
	}
	return out
}

func fromASKENonceMap(m map[aske.UserId][32]byte) map[UserId][32]byte {
	out := make(map[UserId][32]byte, len(m))
	for k, v := range m {
		out[UserId(k)] = v
	}
	return out
}

func toASKEPubKeyMap(m map[UserId]ed25519.PublicKey) map[aske.UserId]ed25519.PublicKey {
	out := make(map[aske.UserId]ed25519.PublicKey, len(m))
	for k, v := range m {
		out[aske.UserId(k)] = v
	}
	return out
}

func fromASKEPubKeyMap(m map[aske.UserId]ed25519.PublicKey) map[UserId]ed25519.PublicKey {
	out := make(map[UserId]ed25519.PublicKey, len(m))
	for k, v := range m {
		out[UserId(k)] = v
	}
	return out
}
