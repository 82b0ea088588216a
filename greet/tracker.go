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
	"encoding/hex"
	"sort"

	"github.com/mpenc-go/mpenc/crypto"
	"github.com/mpenc-go/mpenc/internal/metrics"
	"github.com/mpenc-go/mpenc/merrors"
)

// LeaveSender is the synthetic sender id on a transport-evicted \xffleave
// pseudo-packet (spec.md §4.3).
const LeaveSender UserId = "__server__"

const leaveMarker = "\xffleave"

// PacketType flags whether a membership packet opens an operation,
// closes one, or (for a single-hop round) both.
type PacketType int

const (
	PacketInitial PacketType = iota
	PacketFinal
	PacketBoth
)

func (p PacketType) String() string {
	switch p {
	case PacketInitial:
		return "initial"
	case PacketFinal:
		return "final"
	case PacketBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Metadata is the (prev_final_pid, prev_chain_hash, claimed_prev_sender,
// claimed_parent_mids) tuple every membership packet carries (spec.md
// §4.3). For an initial packet, PrevFinalPacketID/PrevChainHash name the
// sender's view of the last completed operation. For a final-only
// packet, PrevFinalPacketID instead names the initial packet id of the
// operation it closes — the "prev_pi" check in spec.md's acceptance
// rule — since only one operation is ever ongoing at a time and a
// final-only packet has no completed-operation predecessor of its own
// to report.
type Metadata struct {
	PrevFinalPacketID      string
	PrevChainHash          string
	ClaimedPrevSender      UserId
	ClaimedParentMessageIDs []string
}

// ValidationResult reports a tracker decision in the vocabulary the
// transport/session layer consumes.
type ValidationResult struct {
	Accepted         bool
	Err              error
	Duplicate        bool
	OutOfOrder       bool
	BootstrappedFrom string
	PacketID         string
	ChainHash        string
}

// ServerOrderTracker enforces the server-order acceptance rules for
// membership (greet) packets: packet_id/chain_hash bookkeeping, the
// single-ongoing-operation invariant, and late-join bootstrap (spec.md
// §4.3).
type ServerOrderTracker struct {
	self UserId

	synced bool
	seen   map[string]struct{}

	lastFinalPacketID      string
	lastFinalChainHash     string
	ongoingInitialPacketID string
}

// NewServerOrderTracker returns a tracker that has not yet synced to any
// chain.
func NewServerOrderTracker(self UserId) *ServerOrderTracker {
	return &ServerOrderTracker{self: self, seen: make(map[string]struct{})}
}

// Synced reports whether the tracker has bootstrapped to a chain.
func (t *ServerOrderTracker) Synced() bool { return t.synced }

// Accept validates and, if accepted, records one membership packet.
// sender/channelMembers/packet feed packet_id; ptype selects which of
// the initial/final acceptance rules apply.
func (t *ServerOrderTracker) Accept(sender UserId, channelMembers []UserId, packet []byte, ptype PacketType, meta Metadata) ValidationResult {
	pid := PacketID(sender, channelMembers, packet)

	if _, dup := t.seen[pid]; dup {
		metrics.ServerOrderRejections.WithLabelValues("duplicate").Inc()
		return ValidationResult{Duplicate: true, PacketID: pid}
	}

	isInitial := ptype == PacketInitial || ptype == PacketBoth
	isFinal := ptype == PacketFinal || ptype == PacketBoth

	bootstrappedFrom := ""
	if isInitial {
		if t.ongoingInitialPacketID != "" {
			metrics.ServerOrderRejections.WithLabelValues("ongoing").Inc()
			return ValidationResult{OutOfOrder: true, PacketID: pid,
				Err: merrors.NewProtocolError("greet.tracker", "an operation is already ongoing")}
		}
		if !t.synced {
			if !contains(channelMembers, t.self) {
				metrics.ServerOrderRejections.WithLabelValues("not-bootstrapped").Inc()
				return ValidationResult{OutOfOrder: true, PacketID: pid,
					Err: merrors.NewProtocolError("greet.tracker", "not yet synced and self is not a member of this packet")}
			}
			t.lastFinalPacketID = meta.PrevFinalPacketID
			t.lastFinalChainHash = meta.PrevChainHash
			t.synced = true
			bootstrappedFrom = meta.PrevFinalPacketID
		} else if meta.PrevFinalPacketID != t.lastFinalPacketID {
			metrics.ServerOrderRejections.WithLabelValues("prev-mismatch").Inc()
			return ValidationResult{OutOfOrder: true, PacketID: pid,
				Err: merrors.NewProtocolError("greet.tracker", "prev_pf does not match the locally recorded last final packet")}
		}
	}

	if isFinal {
		if t.ongoingInitialPacketID == "" && !isInitial {
			metrics.ServerOrderRejections.WithLabelValues("not-ongoing").Inc()
			return ValidationResult{OutOfOrder: true, PacketID: pid,
				Err: merrors.NewProtocolError("greet.tracker", "no ongoing operation to finalize")}
		}
		if !isInitial && meta.PrevFinalPacketID != t.ongoingInitialPacketID {
			metrics.ServerOrderRejections.WithLabelValues("prev-mismatch").Inc()
			return ValidationResult{OutOfOrder: true, PacketID: pid,
				Err: merrors.NewProtocolError("greet.tracker", "prev_pi does not match the ongoing operation's initial packet")}
		}
	}

	chainHash := ChainHash(t.lastFinalChainHash, pid, ptype.String())

	t.seen[pid] = struct{}{}
	if isInitial {
		t.ongoingInitialPacketID = pid
	}
	if isFinal {
		t.lastFinalPacketID = pid
		t.lastFinalChainHash = chainHash
		t.ongoingInitialPacketID = ""
	}

	return ValidationResult{Accepted: true, PacketID: pid, ChainHash: chainHash, BootstrappedFrom: bootstrappedFrom}
}

// Leave accepts a locally-synthesized \xffleave pseudo-packet for
// evicted, forcibly closing whatever operation was ongoing (spec.md
// §4.3: "accepted as final when the group transport evicts members").
// Unlike Accept, this never fails on "no ongoing operation" — an
// eviction can happen at any time, not only mid-round.
func (t *ServerOrderTracker) Leave(channelMembers []UserId, evicted []UserId) ValidationResult {
	packet := leavePacketBytes(evicted)
	pid := PacketID(LeaveSender, channelMembers, packet)
	if _, dup := t.seen[pid]; dup {
		return ValidationResult{Duplicate: true, PacketID: pid}
	}

	chainHash := ChainHash(t.lastFinalChainHash, pid, PacketFinal.String())
	t.seen[pid] = struct{}{}
	t.lastFinalPacketID = pid
	t.lastFinalChainHash = chainHash
	t.ongoingInitialPacketID = ""
	t.synced = true

	return ValidationResult{Accepted: true, PacketID: pid, ChainHash: chainHash}
}

func leavePacketBytes(evicted []UserId) []byte {
	sorted := append([]UserId{}, evicted...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	buf := []byte(leaveMarker)
	for _, id := range sorted {
		buf = append(buf, '\n')
		buf = append(buf, []byte(id)...)
	}
	return buf
}

// PacketID computes packet_id(packet, sender, channel_members) =
// SHA-256(sender ‖ "\n" ‖ sort(others) ‖ "\n\n" ‖ packet), where others
// is channel_members with sender removed (spec.md §4.3).
func PacketID(sender UserId, channelMembers []UserId, packet []byte) string {
	others := make([]UserId, 0, len(channelMembers))
	for _, m := range channelMembers {
		if m != sender {
			others = append(others, m)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i] < others[j] })

	var otherBuf []byte
	for i, o := range others {
		if i > 0 {
			otherBuf = append(otherBuf, '\n')
		}
		otherBuf = append(otherBuf, []byte(o)...)
	}

	sum := crypto.SHA256([]byte(sender), []byte("\n"), otherBuf, []byte("\n\n"), packet)
	return hex.EncodeToString(sum)
}

// ChainHash computes chain_hash(prev_ch, pid, ptype) = SHA-256(prev_ch ‖
// pid ‖ ptype) (spec.md §4.3).
func ChainHash(prevChainHash, packetID, packetType string) string {
	sum := crypto.SHA256([]byte(prevChainHash), []byte(packetID), []byte(packetType))
	return hex.EncodeToString(sum)
}

func contains(ids []UserId, id UserId) bool {
	for _, m := range ids {
		if m == id {
			return true
		}
	}
	return false
}
