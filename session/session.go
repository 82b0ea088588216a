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

package session

import (
	"crypto/ed25519"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpenc-go/mpenc/codec"
	"github.com/mpenc-go/mpenc/crypto/keys"
	"github.com/mpenc-go/mpenc/greet"
	"github.com/mpenc-go/mpenc/internal/logger"
	"github.com/mpenc-go/mpenc/internal/metrics"
	"github.com/mpenc-go/mpenc/merrors"
	"github.com/mpenc-go/mpenc/message"
	"github.com/mpenc-go/mpenc/monitor"
	"github.com/mpenc-go/mpenc/transcript"
)

// Handlers are the external callbacks a Session fires as it processes
// inbound traffic (spec.md §2's MsgAccepted/MsgReady/MsgFullyAcked
// events, plus a roster-change and a consistency-warning hook). Every
// field is optional.
type Handlers struct {
	// OnMsgAccepted fires as soon as a message's signature verifies and
	// it decrypts cleanly, before its causal position is known.
	OnMsgAccepted func(transcript.MessageId)
	// OnMsgReady fires once a message has been inserted into the
	// transcript DAG, in causal order: a message's OnMsgReady always
	// follows every one of its parents'.
	OnMsgReady func(transcript.MessageId, []byte)
	// OnMsgFullyAcked fires once every intended reader of a message has
	// authored a causal descendant of it.
	OnMsgFullyAcked func(transcript.MessageId)
	// OnWarn is full_ack_warn(key, final) relayed from the consistency
	// monitor (spec.md §4.6).
	OnWarn func(transcript.MessageId, bool)
	// OnSessionReady fires every time the greet session (re-)reaches
	// READY, including after an Include/Exclude/Refresh round.
	OnSessionReady func()
}

// Session is the controller spec.md §2 describes: it drives one
// member's greet.Machine, feeds accepted payload messages into a
// transcript.Store, and keeps a monitor.Monitor watching for stalled
// acks, all behind a single Channel.
type Session struct {
	mu sync.Mutex

	self      greet.UserId
	directory KeyDirectory
	channel   Channel
	cfg       Config
	handlers  Handlers

	machine    *greet.Machine
	tracker    *greet.ServerOrderTracker
	store      *transcript.Store
	mon        *monitor.Monitor
	candidates *CandidateStore
	replay     *ReplayGuard

	roster map[greet.UserId]*RosterEntryBuilder

	tips       []transcript.MessageId
	authorLast map[transcript.UserId]transcript.MessageId
	blockedOn  map[transcript.MessageId][]transcript.Message
	ready      map[transcript.MessageId]bool

	stop chan struct{}
	done chan struct{}
}

// New wires a Session for self around channel, using directory to
// resolve peers' long-term keys and cfg to bound candidate/replay
// lifetimes (Default() if a caller has no opinion). The background
// inbound-drain goroutine starts immediately.
func New(self greet.UserId, staticKey *keys.Ed25519KeyPair, directory KeyDirectory, channel Channel, cfg Config, handlers Handlers) *Session {
	cfg = withDefaults(cfg)

	s := &Session{
		self:      self,
		directory: directory,
		channel:   channel,
		cfg:       cfg,
		handlers:  handlers,

		machine: greet.New(self, staticKey, directory),
		tracker: greet.NewServerOrderTracker(self),
		store:   transcript.NewStore(),
		candidates: NewCandidateStore(message.Config{
			MaxAge:      cfg.CandidateMaxAge,
			IdleTimeout: cfg.CandidateIdleTimeout,
			MaxMessages: cfg.CandidateMaxMessages,
		}, time.Minute),
		replay: NewReplayGuard(cfg.ReplayTTL),

		roster:     make(map[greet.UserId]*RosterEntryBuilder),
		authorLast: make(map[transcript.UserId]transcript.MessageId),
		blockedOn:  make(map[transcript.MessageId][]transcript.Message),
		ready:      make(map[transcript.MessageId]bool),

		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.roster[self] = NewRosterEntryBuilder(self).WithStatus("authenticated")

	s.mon = monitor.New(monitor.RealTimer{}, monitor.Config{
		Self:           string(self),
		FullAckTimeout: func(monitor.Key) time.Duration { return cfg.CandidateIdleTimeout },
		UnackBy:        s.unackByStrings,
		OnWarn: func(key monitor.Key, final bool) {
			if s.handlers.OnWarn != nil {
				s.handlers.OnWarn(transcript.MessageId(key), final)
			}
		},
	})

	s.store.OnFullyAcked(func(id transcript.MessageId) {
		s.mon.Resolve(monitor.Key(id))
		if s.handlers.OnMsgFullyAcked != nil {
			s.handlers.OnMsgFullyAcked(id)
		}
	})

	go s.run()
	return s
}

func (s *Session) unackByStrings(key monitor.Key) []string {
	ids := s.store.UnackBy(transcript.MessageId(key))
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// Tracker exposes the server-order tracker so a transport adapter can
// call Accept/Leave as packets cross the wire: the tracker's ordering
// metadata has no representation in greet.Packet (spec.md's Non-goals
// exclude a built-in transport, and the tracker operates one level
// below the cryptographic packet, on the channel's own delivery order).
func (s *Session) Tracker() *greet.ServerOrderTracker { return s.tracker }

// Start begins an Initial Key Agreement with otherMembers.
func (s *Session) Start(otherMembers []greet.UserId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkt, err := s.machine.Start(otherMembers)
	if err != nil {
		return err
	}
	for _, m := range otherMembers {
		s.roster[m] = NewRosterEntryBuilder(m)
	}
	return s.sendGreetLocked(pkt)
}

// Include starts an Auxiliary Key Agreement adding newMembers.
func (s *Session) Include(newMembers []greet.UserId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkt, err := s.machine.Include(newMembers)
	if err != nil {
		return err
	}
	for _, m := range newMembers {
		s.roster[m] = NewRosterEntryBuilder(m)
	}
	return s.sendGreetLocked(pkt)
}

// Exclude drops excludeMembers from the session.
func (s *Session) Exclude(excludeMembers []greet.UserId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkt, err := s.machine.Exclude(excludeMembers)
	if err != nil {
		return err
	}
	if err := s.sendGreetLocked(pkt); err != nil {
		return err
	}
	for _, m := range excludeMembers {
		if rb, known := s.roster[m]; known {
			s.roster[m] = rebuildWithStatus(rb, "left")
		}
	}
	return nil
}

// Refresh rotates the group key without changing membership.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkt, err := s.machine.Refresh()
	if err != nil {
		return err
	}
	return s.sendGreetLocked(pkt)
}

// Quit tears down the session and broadcasts the terminal QUIT packet.
func (s *Session) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkt, err := s.machine.Quit()
	if err != nil {
		return err
	}
	return s.sendGreetLocked(pkt)
}

// Close stops the Session's background goroutines. It does not send a
// QUIT packet; call Quit first if the protocol should be torn down
// cleanly.
func (s *Session) Close() {
	close(s.stop)
	<-s.done
	s.candidates.Close()
	s.replay.Close()
	s.mon.Stop()
}

// Status reports the Session's current roster and outstanding acks.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	roster := make([]RosterEntry, 0, len(s.roster))
	for _, rb := range s.roster {
		roster = append(roster, rb.Build())
	}
	st := Status{State: s.machine.CurrentState().String(), Roster: roster}
	if sid, ok := s.machine.SessionID(); ok {
		st.SessionID = hex.EncodeToString(sid)
	}
	for id := range s.ready {
		if len(s.store.UnackBy(id)) > 0 {
			st.Unacked = append(st.Unacked, string(id))
		}
	}
	return st
}

// Send encrypts body under the current group key and broadcasts it,
// appending it to the local transcript as the new tip of self's own
// causal chain. Requires the greet session to be READY.
func (s *Session) Send(body []byte) (transcript.MessageId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.IsReady() {
		return "", merrors.NewProtocolError("session.send", "greet session is not ready")
	}

	groupKey, ephKey, sessionID, err := s.sessionKeyLocked()
	if err != nil {
		return "", err
	}

	readers := make([]transcript.UserId, 0, len(s.roster))
	for id := range s.roster {
		if id != s.self {
			readers = append(readers, transcript.UserId(id))
		}
	}

	preRUID := make(map[transcript.UserId]transcript.MessageId, len(readers))
	for _, r := range readers {
		if last, ok := s.authorLast[r]; ok {
			preRUID[r] = last
		}
	}

	m := transcript.Message{
		ID:      transcript.MessageId(uuid.NewString()),
		Author:  transcript.UserId(s.self),
		Parents: append([]transcript.MessageId{}, s.tips...),
		Readers: readers,
		Body:    body,
		PreRUID: preRUID,
	}

	if err := s.store.Add(m); err != nil {
		return "", err
	}
	s.adoptAcceptedLocked(m)

	raw, err := encodeCausalBody(m)
	if err != nil {
		return "", err
	}
	envelope, err := message.EncodeEnvelope(sessionID, groupKey, ephKey, 0, raw, s.cfg.MinPadding)
	if err != nil {
		return "", err
	}
	metrics.SessionPacketsRouted.WithLabelValues("message").Inc()
	return m.ID, s.channel.Send(envelope)
}

// sessionKeyLocked derives the AES-128 group key and returns the local
// signing key and session id needed to encode an outgoing envelope.
func (s *Session) sessionKeyLocked() (groupKey [16]byte, ephKey *keys.Ed25519KeyPair, sessionID []byte, err error) {
	cardinal, ok := s.machine.GroupKey()
	if !ok {
		return groupKey, nil, nil, merrors.NewProtocolError("session.key", "no group key established")
	}
	sessionID, ok = s.machine.SessionID()
	if !ok {
		return groupKey, nil, nil, merrors.NewProtocolError("session.key", "no session id established")
	}
	groupKey, err = message.DeriveGroupKey(cardinal, sessionID)
	if err != nil {
		return groupKey, nil, nil, err
	}
	return groupKey, s.machine.EphemeralKey(), sessionID, nil
}

func (s *Session) sendGreetLocked(pkt *greet.Packet) error {
	frame, err := greet.EncodePacket(pkt)
	if err != nil {
		return err
	}
	metrics.SessionPacketsRouted.WithLabelValues("greet").Inc()
	if err := s.channel.Send(frame); err != nil {
		return err
	}
	s.refreshCandidateIfReadyLocked()
	return nil
}

// refreshCandidateIfReadyLocked installs a fresh session-key candidate
// the moment the greet session reaches READY, so DecodeEnvelope has
// something to trial-decrypt against as soon as peers can send.
func (s *Session) refreshCandidateIfReadyLocked() {
	if !s.machine.IsReady() {
		return
	}
	groupKey, _, sessionID, err := s.sessionKeyLocked()
	if err != nil {
		logger.Warn("session could not derive group key on ready", logger.Error(err))
		return
	}

	signers := make(map[string]ed25519.PublicKey, len(s.machine.Signers()))
	for id, pub := range s.machine.Signers() {
		signers[string(id)] = pub
	}

	s.candidates.Add(message.NewSessionKeyCandidate(sessionID, groupKey, signers, message.Config{
		MaxAge:      s.cfg.CandidateMaxAge,
		IdleTimeout: s.cfg.CandidateIdleTimeout,
		MaxMessages: s.cfg.CandidateMaxMessages,
	}))

	if s.handlers.OnSessionReady != nil {
		s.handlers.OnSessionReady()
	}
}

// run drains the Channel's inbound frames until Close stops it.
func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case frame, ok := <-s.channel.Inbound():
			if !ok {
				return
			}
			s.handleInbound(frame)
		}
	}
}

// handleInbound discriminates a greet packet from a message envelope by
// checking for TypeFlow, a field only greet packets carry, rather than
// trying one decoder and falling back to the other: a blind fallback
// would swallow a message-layer decode failure as "not a greet packet"
// and vice versa, hiding real errors.
func (s *Session) handleInbound(frame string) {
	if s.replay.Seen(frame) {
		metrics.SessionReplaysDropped.Inc()
		return
	}

	p, ok, err := codec.ParseEnvelope(frame)
	if err != nil || !ok {
		metrics.SessionPacketsRouted.WithLabelValues("rejected").Inc()
		logger.Warn("session dropped unparseable inbound frame")
		return
	}

	if _, isGreet := p.Get(codec.TypeFlow); isGreet {
		s.handleGreetFrame(frame)
		return
	}
	s.handleMessageFrame(frame)
}

func (s *Session) handleGreetFrame(frame string) {
	pkt, err := greet.DecodePacket(frame)
	if err != nil {
		metrics.SessionPacketsRouted.WithLabelValues("rejected").Inc()
		logger.Warn("session dropped malformed greet packet", logger.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range pkt.Members {
		if _, known := s.roster[m]; !known {
			s.roster[m] = NewRosterEntryBuilder(m)
		}
	}

	var out *greet.Packet
	switch pkt.Flow {
	case greet.FlowUpflow:
		out, err = s.machine.HandleUpflow(pkt)
	case greet.FlowDownflow:
		out, err = s.machine.HandleDownflow(pkt)
		if err == nil {
			if rb, known := s.roster[pkt.Source]; known {
				s.roster[pkt.Source] = rebuildAcknowledged(rb)
			}
		}
	default:
		err = merrors.NewProtocolError("session.greet", "packet carries no recognized flow")
	}
	if err != nil {
		logger.Warn("session rejected greet packet", logger.Error(err))
		return
	}

	if out == nil {
		s.refreshCandidateIfReadyLocked()
		return
	}
	// sendGreetLocked refreshes the candidate itself once the send succeeds.
	if err := s.sendGreetLocked(out); err != nil {
		logger.Warn("session failed to send greet follow-up", logger.Error(err))
		s.refreshCandidateIfReadyLocked()
	}
}

func (s *Session) handleMessageFrame(frame string) {
	s.mu.Lock()
	candidates := s.candidates.Candidates()
	roster := make([]greet.UserId, 0, len(s.roster))
	for id := range s.roster {
		roster = append(roster, id)
	}
	s.mu.Unlock()

	// The sender identity isn't known until a signer key verifies the
	// packet, but DecodeEnvelope needs one up front to pick a signer:
	// try every known roster member. Candidates are already narrowed by
	// sidkey_hint, so the per-candidate signature check this performs
	// is cheap.
	for _, sender := range roster {
		plaintext, err := message.DecodeEnvelope(frame, string(sender), candidates)
		if err != nil {
			continue
		}
		m, err := decodeCausalBody(plaintext)
		if err != nil {
			logger.Warn("session dropped malformed causal body", logger.Error(err))
			return
		}
		if m.Author != transcript.UserId(sender) {
			logger.Warn("session dropped causal body whose claimed author does not match its signer")
			return
		}

		if s.handlers.OnMsgAccepted != nil {
			s.handlers.OnMsgAccepted(m.ID)
		}

		s.mu.Lock()
		s.tryAddLocked(m)
		s.mu.Unlock()
		return
	}

	metrics.SessionPacketsRouted.WithLabelValues("rejected").Inc()
}

// tryAddLocked inserts m into the transcript once every one of its
// parents is already there, buffering it against blockedOn otherwise;
// inserting it in turn unblocks any children waiting on it (spec.md
// §2's "in causal order" MsgReady guarantee, enforced here rather than
// inside transcript.Store, since the store itself only ever accepts
// messages whose parents are already present — it has no notion of
// "not yet, but will be soon").
func (s *Session) tryAddLocked(m transcript.Message) {
	for _, p := range m.Parents {
		if !s.ready[p] {
			s.blockedOn[p] = append(s.blockedOn[p], m)
			return
		}
	}

	if err := s.store.Add(m); err != nil {
		logger.Warn("session dropped message failing transcript validation", logger.Error(err))
		return
	}
	s.adoptAcceptedLocked(m)

	if s.handlers.OnMsgReady != nil {
		s.handlers.OnMsgReady(m.ID, m.Body)
	}

	blocked := s.blockedOn[m.ID]
	delete(s.blockedOn, m.ID)
	for _, child := range blocked {
		s.tryAddLocked(child)
	}
}

// adoptAcceptedLocked updates the bookkeeping tryAddLocked and Send
// share once a message is durably in the transcript: its tips replace
// whichever of their own tips it names as parents, its author's
// last-known message advances, and the monitor starts watching it for
// a stalled ack.
func (s *Session) adoptAcceptedLocked(m transcript.Message) {
	s.ready[m.ID] = true
	s.authorLast[m.Author] = m.ID

	newTips := make([]transcript.MessageId, 0, len(s.tips)+1)
	for _, t := range s.tips {
		if !containsID(m.Parents, t) {
			newTips = append(newTips, t)
		}
	}
	newTips = append(newTips, m.ID)
	s.tips = newTips

	if len(m.Readers) > 0 {
		s.mon.Track(monitor.Key(m.ID))
	}
}

func containsID(ids []transcript.MessageId, id transcript.MessageId) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func rebuildWithStatus(rb *RosterEntryBuilder, status string) *RosterEntryBuilder {
	e := rb.Build()
	out := &RosterEntryBuilder{entry: e}
	return out.WithStatus(status)
}

func rebuildAcknowledged(rb *RosterEntryBuilder) *RosterEntryBuilder {
	e := rb.Build()
	out := &RosterEntryBuilder{entry: e}
	return out.WithStatus("authenticated").WithAcknowledgedAt(time.Now())
}
