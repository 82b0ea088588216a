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
	"encoding/binary"

	"github.com/mpenc-go/mpenc/codec"
	"github.com/mpenc-go/mpenc/merrors"
)

// EncodePacket serializes pkt into the shared mpENC TLV envelope
// (spec.md §6), so a Channel implementation can move it as a plain
// string alongside encrypted payload envelopes.
func EncodePacket(pkt *Packet) (string, error) {
	b := codec.NewBuilder()
	b.Set(codec.TypeCorrelationID, []byte(pkt.CorrelationID))
	b.Set(codec.TypeSource, []byte(pkt.Source))
	if pkt.Dest != "" {
		b.Set(codec.TypeDest, []byte(pkt.Dest))
	}
	b.Set(codec.TypeFlow, []byte(pkt.Flow))
	b.Set(codec.TypeAgreement, []byte(pkt.Agreement))
	if len(pkt.Members) > 0 {
		b.Set(codec.TypeMember, encodeUserList(pkt.Members))
	}
	if len(pkt.Chain) > 0 {
		b.Set(codec.TypeChain, encodeUserList(pkt.Chain))
	}
	if len(pkt.IntKeys) > 0 {
		b.Set(codec.TypeIntKey, encodeKeyedFixed(pkt.IntKeys))
	}
	if pkt.Cardinal != ([32]byte{}) {
		b.Set(codec.TypeCardinal, append([]byte{}, pkt.Cardinal[:]...))
	}
	if len(pkt.Nonces) > 0 {
		b.Set(codec.TypeNonce, encodeKeyedFixed(pkt.Nonces))
	}
	if len(pkt.PubKeys) > 0 {
		b.Set(codec.TypePubKey, encodeKeyedVariable(pkt.PubKeys))
	}
	if len(pkt.SessionID) > 0 {
		b.Set(codec.TypeGreetSessionID, pkt.SessionID)
	}
	if len(pkt.SessionSignature) > 0 {
		b.Set(codec.TypeSessionSignature, pkt.SessionSignature)
	}
	if len(pkt.SigningKey) > 0 {
		b.Set(codec.TypeSigningKey, pkt.SigningKey)
	}
	return b.Envelope()
}

// DecodePacket parses a string produced by EncodePacket back into a
// Packet.
func DecodePacket(s string) (*Packet, error) {
	p, ok, err := codec.ParseEnvelope(s)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, merrors.NewProtocolError("greet.wire", "not an mpENC envelope")
	}

	pkt := &Packet{}

	corr, err := p.Require(codec.TypeCorrelationID, "correlation_id")
	if err != nil {
		return nil, err
	}
	pkt.CorrelationID = string(corr)

	src, err := p.Require(codec.TypeSource, "source")
	if err != nil {
		return nil, err
	}
	pkt.Source = UserId(src)

	if v, ok := p.Get(codec.TypeDest); ok {
		pkt.Dest = UserId(v)
	}

	flow, err := p.Require(codec.TypeFlow, "flow")
	if err != nil {
		return nil, err
	}
	pkt.Flow = Flow(flow)

	agreement, err := p.Require(codec.TypeAgreement, "agreement")
	if err != nil {
		return nil, err
	}
	pkt.Agreement = Agreement(agreement)

	if v, ok := p.Get(codec.TypeMember); ok {
		if pkt.Members, err = decodeUserList(v); err != nil {
			return nil, err
		}
	}
	if v, ok := p.Get(codec.TypeChain); ok {
		if pkt.Chain, err = decodeUserList(v); err != nil {
			return nil, err
		}
	}
	if v, ok := p.Get(codec.TypeIntKey); ok {
		if pkt.IntKeys, err = decodeKeyedFixed(v); err != nil {
			return nil, err
		}
	}
	if v, ok := p.Get(codec.TypeCardinal); ok {
		if len(v) != 32 {
			return nil, merrors.NewProtocolError("greet.wire", "bad cardinal length")
		}
		copy(pkt.Cardinal[:], v)
	}
	if v, ok := p.Get(codec.TypeNonce); ok {
		if pkt.Nonces, err = decodeKeyedFixed(v); err != nil {
			return nil, err
		}
	}
	if v, ok := p.Get(codec.TypePubKey); ok {
		if pkt.PubKeys, err = decodeKeyedVariable(v); err != nil {
			return nil, err
		}
	}
	if v, ok := p.Get(codec.TypeGreetSessionID); ok {
		pkt.SessionID = append([]byte{}, v...)
	}
	if v, ok := p.Get(codec.TypeSessionSignature); ok {
		pkt.SessionSignature = append([]byte{}, v...)
	}
	if v, ok := p.Get(codec.TypeSigningKey); ok {
		pkt.SigningKey = append([]byte{}, v...)
	}

	return pkt, nil
}

// The map-valued Packet fields (IntKeys, Nonces, PubKeys) and the
// ordered Members/Chain lists each collapse into a single TLV value, so
// they carry their own length-prefixed sub-encoding below.

func appendLP(dst, v []byte) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(v)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, v...)
}

func readLP(buf []byte) (value, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, merrors.NewProtocolError("greet.wire", "truncated length prefix")
	}
	n := int(binary.BigEndian.Uint16(buf[0:2]))
	buf = buf[2:]
	if len(buf) < n {
		return nil, nil, merrors.NewProtocolError("greet.wire", "truncated length-prefixed value")
	}
	return buf[:n], buf[n:], nil
}

func encodeUserList(ids []UserId) []byte {
	var out []byte
	for _, id := range ids {
		out = appendLP(out, []byte(id))
	}
	return out
}

func decodeUserList(buf []byte) ([]UserId, error) {
	var out []UserId
	for len(buf) > 0 {
		v, rest, err := readLP(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, UserId(v))
		buf = rest
	}
	return out, nil
}

func encodeKeyedFixed(m map[UserId][32]byte) []byte {
	var out []byte
	for id, v := range m {
		out = appendLP(out, []byte(id))
		out = append(out, v[:]...)
	}
	return out
}

func decodeKeyedFixed(buf []byte) (map[UserId][32]byte, error) {
	m := make(map[UserId][32]byte)
	for len(buf) > 0 {
		idBytes, rest, err := readLP(buf)
		if err != nil {
			return nil, err
		}
		if len(rest) < 32 {
			return nil, merrors.NewProtocolError("greet.wire", "truncated fixed-size keyed value")
		}
		var v [32]byte
		copy(v[:], rest[:32])
		m[UserId(idBytes)] = v
		buf = rest[32:]
	}
	return m, nil
}

func encodeKeyedVariable(m map[UserId]ed25519.PublicKey) []byte {
	var out []byte
	for id, v := range m {
		out = appendLP(out, []byte(id))
		out = appendLP(out, v)
	}
	return out
}

func decodeKeyedVariable(buf []byte) (map[UserId]ed25519.PublicKey, error) {
	m := make(map[UserId]ed25519.PublicKey)
	for len(buf) > 0 {
		idBytes, rest, err := readLP(buf)
		if err != nil {
			return nil, err
		}
		valBytes, rest2, err := readLP(rest)
		if err != nil {
			return nil, err
		}
		m[UserId(idBytes)] = ed25519.PublicKey(append([]byte{}, valBytes...))
		buf = rest2
	}
	return m, nil
}
