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

// Package aske implements Authenticated Signature Key Exchange: each
// member commits a fresh nonce and ephemeral Ed25519 keypair, and the
// resulting session id is cross-signed with every member's long-term
// static key so the group can detect an active man-in-the-middle on the
// transport (spec.md §4.2).
package aske

import (
	"crypto/ed25519"
	"sort"
	"sync"

	"github.com/mpenc-go/mpenc/crypto"
	"github.com/mpenc-go/mpenc/crypto/keys"
	"github.com/mpenc-go/mpenc/internal/logger"
	"github.com/mpenc-go/mpenc/internal/metrics"
	"github.com/mpenc-go/mpenc/merrors"
)

// UserId identifies a group member. Kept as an independent type from
// gka.UserId (both are plain strings) so this package has no import
// dependency on gka; the greet state machine that merges the two
// converts between them at its boundary.
type UserId string

// KeyDirectory resolves a member's long-term Ed25519 public key, the
// read-only external collaborator ASKE needs to verify session
// signatures (spec.md §1, §6).
type KeyDirectory interface {
	Get(id UserId) (ed25519.PublicKey, bool)
}

// MemoryKeyDirectory is the in-process reference KeyDirectory
// implementation, built on the same RWMutex-guarded-map pattern as the
// teacher's pkg/storage/memory/store.go.
type MemoryKeyDirectory struct {
	mu   sync.RWMutex
	keys map[UserId]ed25519.PublicKey
}

// NewMemoryKeyDirectory returns an empty directory.
func NewMemoryKeyDirectory() *MemoryKeyDirectory {
	return &MemoryKeyDirectory{keys: make(map[UserId]ed25519.PublicKey)}
}

// Put registers (or replaces) the long-term public key for id.
func (d *MemoryKeyDirectory) Put(id UserId, pub ed25519.PublicKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[id] = pub
}

// Get implements KeyDirectory.
func (d *MemoryKeyDirectory) Get(id UserId) (ed25519.PublicKey, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pub, ok := d.keys[id]
	return pub, ok
}

// UpflowMessage carries the accumulating nonce/ephemeral-key vectors as
// the commit/join chain is walked member by member.
type UpflowMessage struct {
	Source UserId
	Dest   UserId

	// Members is the full roster this round establishes a session for.
	Members []UserId
	// Chain is the traversal order for this round: the full roster for
	// commit, or [initiator, ...newMembers] for join. Defaults to
	// Members when nil.
	Chain []UserId

	Nonces           map[UserId][32]byte
	EphemeralPubKeys map[UserId]ed25519.PublicKey
}

// DownflowMessage is the signed broadcast that concludes a commit, join,
// or exclude round.
type DownflowMessage struct {
	Source  UserId
	Members []UserId

	Nonces           map[UserId][32]byte
	EphemeralPubKeys map[UserId]ed25519.PublicKey

	SessionID []byte
	Signature []byte
}

// State is one member's ASKE session state.
type State struct {
	Self      UserId
	directory KeyDirectory
	staticKey *keys.Ed25519KeyPair

	members      []UserId
	nonce        [32]byte
	ephemeralKey *keys.Ed25519KeyPair

	nonces           map[UserId][32]byte
	ephemeralPubKeys map[UserId]ed25519.PublicKey
	authenticated    map[UserId]bool
	sessionID        []byte
	hasSession       bool
}

// New returns a fresh ASKE state for self, using staticKey to sign
// session acknowledgements and directory to resolve peers' long-term
// public keys when verifying theirs.
func New(self UserId, staticKey *keys.Ed25519KeyPair, directory KeyDirectory) *State {
	return &State{Self: self, staticKey: staticKey, directory: directory}
}

// Members returns the current session roster.
func (s *State) Members() []UserId {
	out := make([]UserId, len(s.members))
	copy(out, s.members)
	return out
}

// SessionID returns the current session id and whether one has been
// computed yet.
func (s *State) SessionID() ([]byte, bool) {
	if !s.hasSession {
		return nil, false
	}
	return append([]byte{}, s.sessionID...), true
}

// EphemeralKey returns self's current ephemeral keypair, if one has been
// generated yet.
func (s *State) EphemeralKey() *keys.Ed25519KeyPair { return s.ephemeralKey }

// EphemeralPubKeys returns the current session's member-to-ephemeral-key
// map, the signer set a caller needs to verify packets under this
// session id.
func (s *State) EphemeralPubKeys() map[UserId]ed25519.PublicKey {
	out := make(map[UserId]ed25519.PublicKey, len(s.ephemeralPubKeys))
	for k, v := range s.ephemeralPubKeys {
		out[k] = v
	}
	return out
}

// IsSessionAcknowledged reports whether every member of the session has
// been cross-authenticated.
func (s *State) IsSessionAcknowledged() bool {
	if !s.hasSession || len(s.members) == 0 {
		return false
	}
	for _, m := range s.members {
		if !s.authenticated[m] {
			return false
		}
	}
	return true
}

// Commit initializes ASKE for a brand-new group: fresh nonce and
// ephemeral keypair for self, then an upflow targeting the first of
// otherMembers. Equivalent to running Upflow against an empty seed
// message.
func (s *State) Commit(otherMembers []UserId) (*UpflowMessage, error) {
	if len(otherMembers) == 0 {
		return nil, merrors.NewArgumentError("aske.commit", "otherMembers must not be empty")
	}
	members := append([]UserId{s.Self}, otherMembers...)
	if err := checkDuplicateFree(members); err != nil {
		return nil, err
	}

	seed := &UpflowMessage{
		Members:          members,
		Chain:            members,
		Nonces:           map[UserId][32]byte{},
		EphemeralPubKeys: map[UserId]ed25519.PublicKey{},
	}
	out, err := s.Upflow(seed)
	if err != nil {
		return nil, err
	}
	up, ok := out.(*UpflowMessage)
	if !ok {
		return nil, merrors.NewFatalError("aske.commit", "unexpected single-member commit")
	}
	return up, nil
}

// Upflow consumes an upflow message: self contributes a fresh nonce and
// ephemeral keypair, and either forwards the message to the next member
// in the chain or, if self is last, finalizes the session and returns a
// signed broadcast DownflowMessage.
func (s *State) Upflow(msg *UpflowMessage) (any, error) {
	chain := msg.Chain
	if chain == nil {
		chain = msg.Members
	}
	if err := checkDuplicateFree(chain); err != nil {
		return nil, merrors.NewArgumentError("aske.upflow", "chain contains duplicates")
	}
	pos := memberIndex(chain, s.Self)
	if pos < 0 {
		return nil, merrors.NewArgumentError("aske.upflow", "self is not a member of the upflow chain")
	}

	nonce, err := crypto.RandomBytes(32)
	if err != nil {
		return nil, merrors.NewFatalError("aske.upflow", "generate nonce: "+err.Error())
	}
	var nonceArr [32]byte
	copy(nonceArr[:], nonce)

	ephemeralKey, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return nil, merrors.NewFatalError("aske.upflow", "generate ephemeral key: "+err.Error())
	}

	newNonces := make(map[UserId][32]byte, len(msg.Nonces)+1)
	for k, v := range msg.Nonces {
		newNonces[k] = v
	}
	newNonces[s.Self] = nonceArr

	newPubKeys := make(map[UserId]ed25519.PublicKey, len(msg.EphemeralPubKeys)+1)
	for k, v := range msg.EphemeralPubKeys {
		newPubKeys[k] = v
	}
	newPubKeys[s.Self] = ed25519.PublicKey(ephemeralKey.PublicKey())

	s.nonce = nonceArr
	s.ephemeralKey = ephemeralKey

	logger.Debug("aske upflow", logger.String("self", string(s.Self)), logger.Int("pos", pos), logger.Int("chain_len", len(chain)))

	if pos == len(chain)-1 {
		sessionID := computeSessionID(msg.Members, newNonces)
		sig, err := s.staticKey.Sign(signedContent(s.Self, newPubKeys[s.Self], nonceArr, sessionID))
		if err != nil {
			return nil, merrors.NewFatalError("aske.upflow", "sign session ack: "+err.Error())
		}

		s.members = append([]UserId{}, msg.Members...)
		s.nonces = newNonces
		s.ephemeralPubKeys = newPubKeys
		s.sessionID = sessionID
		s.hasSession = true
		s.authenticated = freshAuthVector(msg.Members, s.Self)

		metrics.ASKERounds.WithLabelValues("upflow").Inc()
		return &DownflowMessage{
			Source:           s.Self,
			Members:          append([]UserId{}, msg.Members...),
			Nonces:           newNonces,
			EphemeralPubKeys: newPubKeys,
			SessionID:        sessionID,
			Signature:        sig,
		}, nil
	}

	s.members = append([]UserId{}, msg.Members...)
	return &UpflowMessage{
		Source:           s.Self,
		Dest:             chain[pos+1],
		Members:          msg.Members,
		Chain:            chain,
		Nonces:           newNonces,
		EphemeralPubKeys: newPubKeys,
	}, nil
}

// Downflow consumes a signed broadcast. On first sight of a new session
// id it verifies the sender's signature, adopts the session, signs and
// returns its own downflow for the other members to authenticate in
// turn. On a repeat broadcast for an already-known session id it simply
// records the sender's authentication and returns nil.
func (s *State) Downflow(msg *DownflowMessage) (*DownflowMessage, error) {
	if memberIndex(msg.Members, s.Self) < 0 {
		return nil, merrors.NewArgumentError("aske.downflow", "self is not a member of the session")
	}

	senderPub, ok := msg.EphemeralPubKeys[msg.Source]
	if !ok {
		return nil, merrors.NewArgumentError("aske.downflow", "missing sender ephemeral public key")
	}
	senderNonce, ok := msg.Nonces[msg.Source]
	if !ok {
		return nil, merrors.NewArgumentError("aske.downflow", "missing sender nonce")
	}
	senderStaticPub, ok := s.directory.Get(msg.Source)
	if !ok {
		metrics.ASKEAuthErrors.Inc()
		return nil, merrors.NewAuthenticationError("aske.downflow", "unknown static key for sender "+string(msg.Source), nil)
	}
	content := signedContent(msg.Source, senderPub, senderNonce, msg.SessionID)
	if !ed25519.Verify(senderStaticPub, content, msg.Signature) {
		metrics.ASKEAuthErrors.Inc()
		return nil, merrors.NewAuthenticationError("aske.downflow", "invalid session signature from "+string(msg.Source), nil)
	}

	if !s.hasSession || !sessionIDEqual(s.sessionID, msg.SessionID) {
		s.members = append([]UserId{}, msg.Members...)
		s.nonces = msg.Nonces
		s.ephemeralPubKeys = msg.EphemeralPubKeys
		s.sessionID = append([]byte{}, msg.SessionID...)
		s.hasSession = true
		s.authenticated = freshAuthVector(msg.Members, s.Self)
		s.authenticated[msg.Source] = true

		ownNonce, ok := msg.Nonces[s.Self]
		if !ok {
			return nil, merrors.NewFatalError("aske.downflow", "missing own nonce in adopted session")
		}
		s.nonce = ownNonce
		ownPub, ok := msg.EphemeralPubKeys[s.Self]
		if !ok {
			return nil, merrors.NewFatalError("aske.downflow", "missing own ephemeral key in adopted session")
		}
		if s.ephemeralKey == nil || !ed25519PubEqual(s.ephemeralKey.PublicKey(), ownPub) {
			return nil, merrors.NewFatalError("aske.downflow", "adopted session does not carry self's own ephemeral key")
		}

		sig, err := s.staticKey.Sign(signedContent(s.Self, ownPub, ownNonce, s.sessionID))
		if err != nil {
			return nil, merrors.NewFatalError("aske.downflow", "sign session ack: "+err.Error())
		}
		metrics.ASKERounds.WithLabelValues("downflow").Inc()
		return &DownflowMessage{
			Source:           s.Self,
			Members:          append([]UserId{}, msg.Members...),
			Nonces:           msg.Nonces,
			EphemeralPubKeys: msg.EphemeralPubKeys,
			SessionID:        s.sessionID,
			Signature:        sig,
		}, nil
	}

	if s.authenticated == nil {
		s.authenticated = freshAuthVector(s.members, s.Self)
	}
	s.authenticated[msg.Source] = true
	if s.IsSessionAcknowledged() {
		metrics.ASKESessionsAcknowledged.Inc()
	}
	return nil, nil
}

// Join extends the session to newMembers: builds an upflow chain of
// [self, ...newMembers] carrying the existing nonce/ephemeral-key
// vectors forward unchanged, targeting the first new member. Requires
// an already-established session.
func (s *State) Join(newMembers []UserId) (*UpflowMessage, error) {
	if !s.hasSession {
		return nil, merrors.NewProtocolError("aske.join", "no established session to join")
	}
	if len(newMembers) == 0 {
		return nil, merrors.NewArgumentError("aske.join", "newMembers must not be empty")
	}
	for _, m := range newMembers {
		if contains(s.members, m) {
			return nil, merrors.NewArgumentError("aske.join", "member already present: "+string(m))
		}
	}
	if err := checkDuplicateFree(newMembers); err != nil {
		return nil, err
	}

	chain := append([]UserId{s.Self}, newMembers...)
	members := append(append([]UserId{}, s.members...), newMembers...)

	nonces := make(map[UserId][32]byte, len(s.nonces))
	for k, v := range s.nonces {
		nonces[k] = v
	}
	pubKeys := make(map[UserId]ed25519.PublicKey, len(s.ephemeralPubKeys))
	for k, v := range s.ephemeralPubKeys {
		pubKeys[k] = v
	}

	return &UpflowMessage{
		Source:           s.Self,
		Dest:             newMembers[0],
		Members:          members,
		Chain:            chain,
		Nonces:           nonces,
		EphemeralPubKeys: pubKeys,
	}, nil
}

// Exclude drops excludeMembers from the session, recomputes the session
// id over the remaining roster, and broadcasts a freshly signed
// downflow. excludeMembers must be a non-empty strict subset of the
// current roster and must not contain self. There is no ASKE-level
// refresh: a GKA-only aka_refresh rotates the shared secret without
// touching membership, and the existing session id already binds every
// member, so no re-authentication is needed.
func (s *State) Exclude(excludeMembers []UserId) (*DownflowMessage, error) {
	if len(excludeMembers) == 0 {
		return nil, merrors.NewArgumentError("aske.exclude", "excludeMembers must not be empty")
	}
	if !s.hasSession {
		return nil, merrors.NewProtocolError("aske.exclude", "no established session")
	}
	for _, m := range excludeMembers {
		if m == s.Self {
			return nil, merrors.NewArgumentError("aske.exclude", "cannot exclude self")
		}
		if !contains(s.members, m) {
			return nil, merrors.NewArgumentError("aske.exclude", "not a member: "+string(m))
		}
	}
	if err := checkDuplicateFree(excludeMembers); err != nil {
		return nil, err
	}

	remaining := make([]UserId, 0, len(s.members))
	for _, m := range s.members {
		if !contains(excludeMembers, m) {
			remaining = append(remaining, m)
		}
	}

	newNonces := make(map[UserId][32]byte, len(remaining))
	newPubKeys := make(map[UserId]ed25519.PublicKey, len(remaining))
	for _, m := range remaining {
		newNonces[m] = s.nonces[m]
		newPubKeys[m] = s.ephemeralPubKeys[m]
	}

	sessionID := computeSessionID(remaining, newNonces)
	sig, err := s.staticKey.Sign(signedContent(s.Self, newPubKeys[s.Self], s.nonce, sessionID))
	if err != nil {
		return nil, merrors.NewFatalError("aske.exclude", "sign session ack: "+err.Error())
	}

	s.members = remaining
	s.nonces = newNonces
	s.ephemeralPubKeys = newPubKeys
	s.sessionID = sessionID
	s.authenticated = freshAuthVector(remaining, s.Self)

	metrics.ASKERounds.WithLabelValues("exclude").Inc()
	return &DownflowMessage{
		Source:           s.Self,
		Members:          append([]UserId{}, remaining...),
		Nonces:           newNonces,
		EphemeralPubKeys: newPubKeys,
		SessionID:        sessionID,
		Signature:        sig,
	}, nil
}

// Quit tears down the session locally and returns the ephemeral private
// key so the caller may choose to publish it (spec.md Data Model:
// "private exclusively owned by its member until potential publication
// on QUIT"). ASKE itself never publishes or transmits it.
func (s *State) Quit() ([]byte, error) {
	if s.ephemeralKey == nil {
		return nil, merrors.NewProtocolError("aske.quit", "no ephemeral key to release")
	}
	priv := append([]byte{}, s.ephemeralKey.PrivateKeyBytes()...)
	s.ephemeralKey.Zero()
	s.members = nil
	s.nonces = nil
	s.ephemeralPubKeys = nil
	s.authenticated = nil
	s.sessionID = nil
	s.hasSession = false
	return priv, nil
}

func signedContent(id UserId, ephPub ed25519.PublicKey, nonce [32]byte, sessionID []byte) []byte {
	buf := make([]byte, 0, len("acksig")+len(id)+len(ephPub)+len(nonce)+len(sessionID))
	buf = append(buf, "acksig"...)
	buf = append(buf, id...)
	buf = append(buf, ephPub...)
	buf = append(buf, nonce[:]...)
	buf = append(buf, sessionID...)
	return buf
}

func computeSessionID(members []UserId, nonces map[UserId][32]byte) []byte {
	sorted := append([]UserId{}, members...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([][]byte, 0, 2*len(sorted))
	for _, id := range sorted {
		n := nonces[id]
		parts = append(parts, []byte(id), n[:])
	}
	return crypto.SHA256(parts...)
}

func freshAuthVector(members []UserId, self UserId) map[UserId]bool {
	out := make(map[UserId]bool, len(members))
	for _, m := range members {
		out[m] = m == self
	}
	return out
}

func sessionIDEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ed25519PubEqual(a, b ed25519.PublicKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkDuplicateFree(members []UserId) error {
	seen := make(map[UserId]struct{}, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			return merrors.NewArgumentError("aske", "duplicate member: "+string(m))
		}
		seen[m] = struct{}{}
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
