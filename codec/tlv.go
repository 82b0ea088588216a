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

// Package codec implements the mpENC wire format: a TLV-framed packet
// body wrapped in a "?mpENC:"-prefixed base64 envelope (spec.md §6).
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/mpenc-go/mpenc/merrors"
)

// Type identifies a TLV field.
type Type uint16

// Recognized TLV types, in the fixed emission order a signed packet uses
// (spec.md §6): sidkey hint and signature first, then the plaintext
// message header fields, then the greet/membership fields.
const (
	TypeSidkeyHint Type = iota + 1
	TypeSignature
	TypeProtocolVersion
	TypeMessageType
	TypeMessageIV
	TypeDataMessage

	TypeSource
	TypeDest
	TypeAgreement
	TypeFlow
	TypeMember
	TypeIntKey
	TypeNonce
	TypePubKey
	TypeSessionSignature
	TypeSigningKey

	TypeCorrelationID
	TypeChain
	TypeCardinal
	TypeGreetSessionID

	TypeCausalID
	TypeCausalAuthor
	TypeCausalParents
	TypeCausalReaders
	TypeCausalPreRUID
	TypeCausalBody
)

// emissionOrder is the canonical order types are serialized in; a parser
// never relies on this (it reads whatever types arrive), but a builder
// always emits in this order so two implementations agree byte-for-byte.
var emissionOrder = []Type{
	TypeSidkeyHint,
	TypeSignature,
	TypeProtocolVersion,
	TypeMessageType,
	TypeMessageIV,
	TypeDataMessage,
	TypeSource,
	TypeDest,
	TypeAgreement,
	TypeFlow,
	TypeMember,
	TypeIntKey,
	TypeNonce,
	TypePubKey,
	TypeSessionSignature,
	TypeSigningKey,
	TypeCorrelationID,
	TypeChain,
	TypeCardinal,
	TypeGreetSessionID,

	TypeCausalID,
	TypeCausalAuthor,
	TypeCausalParents,
	TypeCausalReaders,
	TypeCausalPreRUID,
	TypeCausalBody,
}

// maxTLVLength is the largest value a 16-bit length field can express.
const maxTLVLength = 0xFFFF

// TLV is a single decoded type-length-value field.
type TLV struct {
	Type  Type
	Value []byte
}

// encode appends this TLV's wire encoding to dst and returns the result.
func (t TLV) encode(dst []byte) ([]byte, error) {
	if len(t.Value) > maxTLVLength {
		return nil, merrors.NewArgumentError("codec.encode", fmt.Sprintf("tlv value too large for type %d: %d bytes", int(t.Type), len(t.Value)))
	}
	var header [4]byte
	binary.BigEndian.PutUint16(header[0:2], uint16(t.Type))
	binary.BigEndian.PutUint16(header[2:4], uint16(len(t.Value)))
	dst = append(dst, header[:]...)
	dst = append(dst, t.Value...)
	return dst, nil
}

// decodeTLVs parses a flat sequence of TLV fields from buf. It does not
// interpret the fields; that is the Parser's job.
func decodeTLVs(buf []byte) ([]TLV, error) {
	var out []TLV
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, merrors.NewProtocolError("codec.decode", "truncated tlv header")
		}
		typ := Type(binary.BigEndian.Uint16(buf[0:2]))
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		buf = buf[4:]
		if len(buf) < length {
			return nil, merrors.NewProtocolError("codec.decode", fmt.Sprintf("truncated tlv value for type %d", int(typ)))
		}
		value := make([]byte, length)
		copy(value, buf[:length])
		out = append(out, TLV{Type: typ, Value: value})
		buf = buf[length:]
	}
	return out, nil
}
