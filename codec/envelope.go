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

package codec

import (
	"encoding/base64"
	"strings"

	"github.com/mpenc-go/mpenc/merrors"
)

const (
	envelopePrefix = "?mpENC:"
	envelopeSuffix = "."
)

// Builder accumulates TLV fields and serializes them into the "?mpENC:"
// envelope. Fields may be added in any order; Build always emits them in
// the canonical order (emissionOrder) so two implementations of this
// codec agree byte-for-byte, mirroring the accumulate-then-serialize shape
// of the teacher's rfc9421.MessageBuilder.
type Builder struct {
	fields map[Type][]byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{fields: make(map[Type][]byte)}
}

// Set stores value under typ, overwriting any previous value for typ.
func (b *Builder) Set(typ Type, value []byte) *Builder {
	b.fields[typ] = value
	return b
}

// Has reports whether typ has been set.
func (b *Builder) Has(typ Type) bool {
	_, ok := b.fields[typ]
	return ok
}

// Build serializes the accumulated fields into the raw TLV body (not yet
// base64-encoded, no envelope prefix/suffix).
func (b *Builder) Build() ([]byte, error) {
	var body []byte
	var err error
	for _, typ := range emissionOrder {
		value, ok := b.fields[typ]
		if !ok {
			continue
		}
		body, err = (TLV{Type: typ, Value: value}).encode(body)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// Envelope serializes and wraps the result in the "?mpENC:...." envelope.
func (b *Builder) Envelope() (string, error) {
	body, err := b.Build()
	if err != nil {
		return "", err
	}
	return Wrap(body), nil
}

// Wrap base64-encodes a raw TLV body and wraps it in the mpENC envelope.
func Wrap(body []byte) string {
	return envelopePrefix + base64.StdEncoding.EncodeToString(body) + envelopeSuffix
}

// Unwrap strips the "?mpENC:"/"." envelope and base64-decodes the body.
// It returns ok=false (no error) for strings that are not mpENC packets at
// all, so callers can pass through plain query/auto-response text
// (spec.md §6) without treating it as a malformed packet.
func Unwrap(s string) (body []byte, ok bool, err error) {
	if !strings.HasPrefix(s, envelopePrefix) || !strings.HasSuffix(s, envelopeSuffix) {
		return nil, false, nil
	}
	encoded := strings.TrimSuffix(strings.TrimPrefix(s, envelopePrefix), envelopeSuffix)
	body, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, true, merrors.NewProtocolError("codec.unwrap", "invalid base64 envelope: "+err.Error())
	}
	return body, true, nil
}

// Parser exposes a decoded TLV field set for read access by field type.
type Parser struct {
	fields map[Type][]byte
}

// Parse decodes a raw TLV body (as produced by Builder.Build, i.e. already
// base64-decoded) into a Parser.
func Parse(body []byte) (*Parser, error) {
	tlvs, err := decodeTLVs(body)
	if err != nil {
		return nil, err
	}
	fields := make(map[Type][]byte, len(tlvs))
	for _, t := range tlvs {
		fields[t.Type] = t.Value
	}
	return &Parser{fields: fields}, nil
}

// ParseEnvelope unwraps and parses a full "?mpENC:...." string.
func ParseEnvelope(s string) (*Parser, bool, error) {
	body, ok, err := Unwrap(s)
	if err != nil || !ok {
		return nil, ok, err
	}
	p, err := Parse(body)
	return p, true, err
}

// Get returns the raw value for typ and whether it was present.
func (p *Parser) Get(typ Type) ([]byte, bool) {
	v, ok := p.fields[typ]
	return v, ok
}

// Require returns the value for typ or a ProtocolError naming the missing
// field.
func (p *Parser) Require(typ Type, fieldName string) ([]byte, error) {
	v, ok := p.fields[typ]
	if !ok {
		return nil, merrors.NewProtocolError("codec.parse", "missing required field: "+fieldName)
	}
	return v, nil
}
