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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpenc-go/mpenc/crypto/keys"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var groupKey [16]byte
	copy(groupKey[:], []byte("0123456789abcdef"))

	plaintext := []byte("the group chat payload")
	iv, ciphertext, err := Encrypt(groupKey, plaintext, DefaultMinPadding)
	require.NoError(t, err)
	assert.Len(t, iv, wireIVSize)

	got, err := Decrypt(groupKey, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	var groupKey [16]byte
	copy(groupKey[:], []byte("0123456789abcdef"))
	sessionID := []byte{0x42, 0x01, 0x02, 0x03}

	alice, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	envelope, err := EncodeEnvelope(sessionID, groupKey, alice, 1, []byte("hello group"), DefaultMinPadding)
	require.NoError(t, err)

	signers := map[string]ed25519.PublicKey{"alice": ed25519.PublicKey(alice.PublicKey())}
	candidate := NewSessionKeyCandidate(sessionID, groupKey, signers, Config{})

	plaintext, err := DecodeEnvelope(envelope, "alice", []*SessionKeyCandidate{candidate})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello group"), plaintext)
	assert.Equal(t, 1, candidate.GetMessageCount())
}

func TestDecodeEnvelopeTrialDecryptsAcrossCandidates(t *testing.T) {
	var oldKey, newKey [16]byte
	copy(oldKey[:], []byte("oldoldoldoldoldo"))
	copy(newKey[:], []byte("newnewnewnewnewn"))

	alice, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	newSessionID := []byte{0xAA, 0xBB}
	envelope, err := EncodeEnvelope(newSessionID, newKey, alice, 1, []byte("after refresh"), DefaultMinPadding)
	require.NoError(t, err)

	signers := map[string]ed25519.PublicKey{"alice": ed25519.PublicKey(alice.PublicKey())}
	stale := NewSessionKeyCandidate([]byte{0x01, 0x02}, oldKey, signers, Config{})
	current := NewSessionKeyCandidate(newSessionID, newKey, signers, Config{})

	plaintext, err := DecodeEnvelope(envelope, "alice", []*SessionKeyCandidate{stale, current})
	require.NoError(t, err)
	assert.Equal(t, []byte("after refresh"), plaintext)
}

func TestDecodeEnvelopeFailsWithNoMatchingCandidate(t *testing.T) {
	var groupKey [16]byte
	copy(groupKey[:], []byte("0123456789abcdef"))

	alice, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	envelope, err := EncodeEnvelope([]byte{0x01}, groupKey, alice, 1, []byte("hello"), DefaultMinPadding)
	require.NoError(t, err)

	mallory, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)
	signers := map[string]ed25519.PublicKey{"alice": ed25519.PublicKey(mallory.PublicKey())}
	candidate := NewSessionKeyCandidate([]byte{0x01}, groupKey, signers, Config{})

	_, err = DecodeEnvelope(envelope, "alice", []*SessionKeyCandidate{candidate})
	assert.Error(t, err)
}

func TestDecodeEnvelopeSkipsExpiredCandidate(t *testing.T) {
	var groupKey [16]byte
	copy(groupKey[:], []byte("0123456789abcdef"))

	alice, err := keys.GenerateEd25519KeyPair()
	require.NoError(t, err)

	sessionID := []byte{0x01}
	envelope, err := EncodeEnvelope(sessionID, groupKey, alice, 1, []byte("hello"), DefaultMinPadding)
	require.NoError(t, err)

	signers := map[string]ed25519.PublicKey{"alice": ed25519.PublicKey(alice.PublicKey())}
	candidate := NewSessionKeyCandidate(sessionID, groupKey, signers, Config{MaxMessages: 1})
	candidate.touch() // consume the single allowed message up front

	_, err = DecodeEnvelope(envelope, "alice", []*SessionKeyCandidate{candidate})
	assert.Error(t, err)
}

func TestDecodeEnvelopeRejectsNonEnvelopeString(t *testing.T) {
	_, err := DecodeEnvelope("not an envelope", "alice", nil)
	assert.Error(t, err)
}
