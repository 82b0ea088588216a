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

package message

import (
	"crypto/ed25519"

	"github.com/mpenc-go/mpenc/codec"
	"github.com/mpenc-go/mpenc/crypto"
	"github.com/mpenc-go/mpenc/crypto/keys"
	"github.com/mpenc-go/mpenc/internal/metrics"
	"github.com/mpenc-go/mpenc/merrors"
)

// ProtocolVersion is the single version this codec understands.
const ProtocolVersion byte = 1

// wireIVSize is the random IV carried on the wire (spec.md §4.4); it is
// zero-extended to cbcIVSize to form AES-CBC's actual IV (see
// DESIGN.md's "AES IV size" open-question resolution).
const wireIVSize = 12
const cbcIVSize = 16

// Encrypt pads plaintext, generates a random 12-byte wire IV, and
// AES-128-CBC-encrypts it under groupKey.
func Encrypt(groupKey [16]byte, plaintext []byte, minPadding int) (iv, ciphertext []byte, err error) {
	padded := Pad(plaintext, minPadding)
	iv, err = crypto.RandomBytes(wireIVSize)
	if err != nil {
		return nil, nil, err
	}
	ciphertext, err = crypto.AES128CBCEncrypt(groupKey[:], extendIV(iv), padded)
	if err != nil {
		return nil, nil, err
	}
	return iv, ciphertext, nil
}

// Decrypt reverses Encrypt given the wire-size IV.
func Decrypt(groupKey [16]byte, iv, ciphertext []byte) ([]byte, error) {
	if len(iv) != wireIVSize {
		return nil, merrors.NewDecryptionError("message.decrypt", "iv must be 12 bytes", nil)
	}
	padded, err := crypto.AES128CBCDecrypt(groupKey[:], extendIV(iv), ciphertext)
	if err != nil {
		return nil, merrors.NewDecryptionError("message.decrypt", "aes-cbc decrypt failed", err)
	}
	return Unpad(padded)
}

func extendIV(iv []byte) []byte {
	out := make([]byte, cbcIVSize)
	copy(out, iv)
	return out
}

func sidkeyHint(sessionID []byte, groupKey [16]byte) byte {
	var sidByte byte
	if len(sessionID) > 0 {
		sidByte = sessionID[0]
	}
	return sidByte ^ groupKey[0]
}

func signedFields(protocolVersion, messageType byte, iv, ciphertext []byte) ([]byte, error) {
	b := codec.NewBuilder().
		Set(codec.TypeProtocolVersion, []byte{protocolVersion}).
		Set(codec.TypeMessageType, []byte{messageType}).
		Set(codec.TypeMessageIV, iv).
		Set(codec.TypeDataMessage, ciphertext)
	return b.Build()
}

// EncodeEnvelope encrypts plaintext under groupKey, signs the resulting
// TLV fields with signingKey (the sender's ephemeral session key, spec.md
// §4.4), and returns the full "?mpENC:...." envelope.
func EncodeEnvelope(sessionID []byte, groupKey [16]byte, signingKey *keys.Ed25519KeyPair, messageType byte, plaintext []byte, minPadding int) (string, error) {
	iv, ciphertext, err := Encrypt(groupKey, plaintext, minPadding)
	if err != nil {
		return "", err
	}

	toSign, err := signedFields(ProtocolVersion, messageType, iv, ciphertext)
	if err != nil {
		return "", err
	}
	sig, err := signingKey.Sign(toSign)
	if err != nil {
		return "", err
	}

	full := codec.NewBuilder().
		Set(codec.TypeSidkeyHint, []byte{sidkeyHint(sessionID, groupKey)}).
		Set(codec.TypeSignature, sig).
		Set(codec.TypeProtocolVersion, []byte{ProtocolVersion}).
		Set(codec.TypeMessageType, []byte{messageType}).
		Set(codec.TypeMessageIV, iv).
		Set(codec.TypeDataMessage, ciphertext)
	return full.Envelope()
}

// DecodeEnvelope parses envelope, narrows to candidates whose sidkey_hint
// matches, then trial-decrypts across that session/group-key matrix
// until one candidate's signature verifies and its key decrypts
// cleanly (spec.md §4.4). sender selects which candidate signer's
// ephemeral public key must verify the packet's signature.
func DecodeEnvelope(envelope string, sender string, candidates []*SessionKeyCandidate) ([]byte, error) {
	p, ok, err := codec.ParseEnvelope(envelope)
	if err != nil {
		metrics.MessagesDecrypted.WithLabelValues("bad-envelope").Inc()
		return nil, err
	}
	if !ok {
		metrics.MessagesDecrypted.WithLabelValues("bad-envelope").Inc()
		return nil, merrors.NewProtocolError("message.decode", "not an mpENC envelope")
	}

	hintBytes, err := p.Require(codec.TypeSidkeyHint, "sidkey_hint")
	if err != nil {
		return nil, err
	}
	if len(hintBytes) != 1 {
		return nil, merrors.NewProtocolError("message.decode", "malformed sidkey_hint")
	}
	hint := hintBytes[0]

	sig, err := p.Require(codec.TypeSignature, "signature")
	if err != nil {
		return nil, err
	}
	protocolVersion, err := p.Require(codec.TypeProtocolVersion, "protocol_version")
	if err != nil {
		return nil, err
	}
	messageType, err := p.Require(codec.TypeMessageType, "message_type")
	if err != nil {
		return nil, err
	}
	iv, err := p.Require(codec.TypeMessageIV, "iv")
	if err != nil {
		return nil, err
	}
	ciphertext, err := p.Require(codec.TypeDataMessage, "data_message")
	if err != nil {
		return nil, err
	}

	toVerify, err := signedFields(protocolVersion[0], messageType[0], iv, ciphertext)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		if c.IsExpired() || c.sidkeyHint() != hint {
			continue
		}
		signer, ok := c.signers[sender]
		if !ok {
			continue
		}
		if !ed25519.Verify(signer, toVerify, sig) {
			continue
		}
		plaintext, err := Decrypt(c.groupKey, iv, ciphertext)
		if err != nil {
			metrics.MessagesDecrypted.WithLabelValues("bad-padding").Inc()
			continue
		}
		c.touch()
		metrics.MessagesDecrypted.WithLabelValues("ok").Inc()
		return plaintext, nil
	}

	metrics.MessagesDecrypted.WithLabelValues("no-key").Inc()
	return nil, merrors.NewDecryptionError("message.decode", "no session/group-key candidate matched", nil)
}
