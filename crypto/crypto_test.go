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

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampScalar(t *testing.T) {
	s := [32]byte{0xFF, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
		16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 0xFF}
	ClampScalar(&s)

	assert.Zero(t, s[0]&0x07, "low 3 bits must be cleared")
	assert.NotZero(t, s[31]&0x40, "bit 254 must be set")
	assert.Zero(t, s[31]&0x80, "bit 255 must be cleared")
}

func TestGenerateX25519ScalarIsClamped(t *testing.T) {
	scalar, err := GenerateX25519Scalar()
	require.NoError(t, err)

	assert.Zero(t, scalar[0]&0x07)
	assert.NotZero(t, scalar[31]&0x40)
	assert.Zero(t, scalar[31]&0x80)
}

func TestScalarBaseMultAndScalarMultAgree(t *testing.T) {
	a, err := GenerateX25519Scalar()
	require.NoError(t, err)
	b, err := GenerateX25519Scalar()
	require.NoError(t, err)

	aPub, err := ScalarBaseMult(a)
	require.NoError(t, err)
	bPub, err := ScalarBaseMult(b)
	require.NoError(t, err)

	shared1, err := ScalarMult(a, bPub)
	require.NoError(t, err)
	shared2, err := ScalarMult(b, aPub)
	require.NoError(t, err)

	assert.Equal(t, shared1, shared2)
}

func TestScalarMultRejectsLowOrderPoint(t *testing.T) {
	scalar, err := GenerateX25519Scalar()
	require.NoError(t, err)

	var zeroPoint [32]byte
	_, err = ScalarMult(scalar, zeroPoint)
	assert.ErrorIs(t, err, ErrLowOrderPoint)
}

func TestScalarMultRejectsIdentityPointAtDecodeTime(t *testing.T) {
	scalar, err := GenerateX25519Scalar()
	require.NoError(t, err)

	// Exercises the rejectLowOrderPoint decode path directly (as
	// opposed to the all-zero-result check at the end of ScalarMult):
	// the all-zero encoding is rejected before curve25519.X25519 ever
	// runs.
	err = rejectLowOrderPoint([32]byte{})
	assert.ErrorIs(t, err, ErrLowOrderPoint)
}

func TestSHA256Deterministic(t *testing.T) {
	h1 := SHA256([]byte("a"), []byte("b"))
	h2 := SHA256([]byte("ab"))
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
}

func TestSHA512(t *testing.T) {
	assert.Len(t, SHA512([]byte("x")), 64)
}

func TestAES128CBCRoundTrip(t *testing.T) {
	key, err := RandomBytes(16)
	require.NoError(t, err)
	iv, err := RandomBytes(16)
	require.NoError(t, err)
	plaintext := make([]byte, 64)
	copy(plaintext, []byte("sixteen-byte-aligned-plaintext!"))

	ciphertext, err := AES128CBCEncrypt(key, iv, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := AES128CBCDecrypt(key, iv, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAES128CBCRejectsUnalignedPlaintext(t *testing.T) {
	key, err := RandomBytes(16)
	require.NoError(t, err)
	iv, err := RandomBytes(16)
	require.NoError(t, err)

	_, err = AES128CBCEncrypt(key, iv, []byte("not block aligned"))
	assert.Error(t, err)
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zero(b)
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
}
