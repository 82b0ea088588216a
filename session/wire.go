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
	"encoding/binary"

	"github.com/mpenc-go/mpenc/codec"
	"github.com/mpenc-go/mpenc/merrors"
	"github.com/mpenc-go/mpenc/transcript"
)

// encodeCausalBody serializes a transcript.Message's DAG metadata plus
// its body into the TLV bundle that becomes message.EncodeEnvelope's
// plaintext: the message-security layer only knows how to move opaque
// bytes, so Session is the layer that gives those bytes the causal
// structure the transcript needs on the receiving end (spec.md §2's
// boundary between §4.4 and §4.5).
func encodeCausalBody(m transcript.Message) ([]byte, error) {
	b := codec.NewBuilder().
		Set(codec.TypeCausalID, []byte(m.ID)).
		Set(codec.TypeCausalAuthor, []byte(m.Author)).
		Set(codec.TypeCausalBody, m.Body)

	if len(m.Parents) > 0 {
		b.Set(codec.TypeCausalParents, encodeStringList(idsToStrings(m.Parents)))
	}
	if len(m.Readers) > 0 {
		b.Set(codec.TypeCausalReaders, encodeStringList(usersToStrings(m.Readers)))
	}
	if len(m.PreRUID) > 0 {
		b.Set(codec.TypeCausalPreRUID, encodeStringMap(m.PreRUID))
	}
	return b.Build()
}

// decodeCausalBody is encodeCausalBody's inverse.
func decodeCausalBody(raw []byte) (transcript.Message, error) {
	p, err := codec.Parse(raw)
	if err != nil {
		return transcript.Message{}, err
	}

	id, err := p.Require(codec.TypeCausalID, "causal_id")
	if err != nil {
		return transcript.Message{}, err
	}
	author, err := p.Require(codec.TypeCausalAuthor, "causal_author")
	if err != nil {
		return transcript.Message{}, err
	}
	body, _ := p.Get(codec.TypeCausalBody)

	m := transcript.Message{
		ID:     transcript.MessageId(id),
		Author: transcript.UserId(author),
		Body:   append([]byte{}, body...),
	}

	if raw, ok := p.Get(codec.TypeCausalParents); ok {
		strs, err := decodeStringList(raw)
		if err != nil {
			return transcript.Message{}, err
		}
		m.Parents = stringsToIds(strs)
	}
	if raw, ok := p.Get(codec.TypeCausalReaders); ok {
		strs, err := decodeStringList(raw)
		if err != nil {
			return transcript.Message{}, err
		}
		m.Readers = stringsToUsers(strs)
	}
	if raw, ok := p.Get(codec.TypeCausalPreRUID); ok {
		m.PreRUID, err = decodeStringMap(raw)
		if err != nil {
			return transcript.Message{}, err
		}
	}

	return m, nil
}

func appendLP(dst []byte, v []byte) []byte {
	var lp [2]byte
	binary.BigEndian.PutUint16(lp[:], uint16(len(v)))
	dst = append(dst, lp[:]...)
	return append(dst, v...)
}

func readLP(buf []byte) (value, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, merrors.NewProtocolError("session.wire", "truncated length prefix")
	}
	n := int(binary.BigEndian.Uint16(buf[0:2]))
	buf = buf[2:]
	if len(buf) < n {
		return nil, nil, merrors.NewProtocolError("session.wire", "truncated length-prefixed value")
	}
	return buf[:n], buf[n:], nil
}

func encodeStringList(items []string) []byte {
	var out []byte
	for _, it := range items {
		out = appendLP(out, []byte(it))
	}
	return out
}

func decodeStringList(buf []byte) ([]string, error) {
	var out []string
	for len(buf) > 0 {
		var v []byte
		var err error
		v, buf, err = readLP(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, string(v))
	}
	return out, nil
}

func encodeStringMap(m map[transcript.UserId]transcript.MessageId) []byte {
	var out []byte
	for k, v := range m {
		out = appendLP(out, []byte(k))
		out = appendLP(out, []byte(v))
	}
	return out
}

func decodeStringMap(buf []byte) (map[transcript.UserId]transcript.MessageId, error) {
	out := make(map[transcript.UserId]transcript.MessageId)
	for len(buf) > 0 {
		var k, v []byte
		var err error
		k, buf, err = readLP(buf)
		if err != nil {
			return nil, err
		}
		v, buf, err = readLP(buf)
		if err != nil {
			return nil, err
		}
		out[transcript.UserId(k)] = transcript.MessageId(v)
	}
	return out, nil
}

func idsToStrings(ids []transcript.MessageId) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func stringsToIds(strs []string) []transcript.MessageId {
	out := make([]transcript.MessageId, len(strs))
	for i, s := range strs {
		out[i] = transcript.MessageId(s)
	}
	return out
}

func usersToStrings(ids []transcript.UserId) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func stringsToUsers(strs []string) []transcript.UserId {
	out := make([]transcript.UserId, len(strs))
	for i, s := range strs {
		out[i] = transcript.UserId(s)
	}
	return out
}
