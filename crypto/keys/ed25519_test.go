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

package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mpcrypto "github.com/mpenc-go/mpenc/crypto"
)

func TestGenerateEd25519KeyPair(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)
	require.NotNil(t, kp)

	assert.Equal(t, mpcrypto.KeyTypeEd25519, kp.Type())
	assert.Len(t, kp.PublicKey(), 32)
	assert.NotEmpty(t, kp.ID())
}

func TestEd25519SignAndVerify(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	message := []byte("session_id acksig material")
	sig, err := kp.Sign(message)
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	assert.True(t, kp.Verify(message, sig))
	assert.False(t, kp.Verify([]byte("tampered"), sig))

	tamperedSig := append([]byte(nil), sig...)
	tamperedSig[0] ^= 0xFF
	assert.False(t, kp.Verify(message, tamperedSig))
}

func TestEd25519KeyPairsHaveDistinctIDs(t *testing.T) {
	kp1, err := GenerateEd25519KeyPair()
	require.NoError(t, err)
	kp2, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, kp1.ID(), kp2.ID())
	assert.NotEqual(t, kp1.PublicKey(), kp2.PublicKey())
}

func TestImportEd25519KeyPairFromSeed(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	_, err = ImportEd25519KeyPair(make([]byte, 31))
	assert.ErrorIs(t, err, mpcrypto.ErrInvalidPrivateKeySize)

	message := []byte("round trip")
	sig, err := kp.Sign(message)
	require.NoError(t, err)
	assert.True(t, kp.Verify(message, sig))

	imported, err := ImportEd25519KeyPair(kp.PrivateKeyBytes())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), imported.PublicKey())
	assert.True(t, imported.Verify(message, sig))
}

func TestImportEd25519PublicKeyCannotSign(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	pub, err := ImportEd25519PublicKey(kp.PublicKey())
	require.NoError(t, err)

	_, err = pub.Sign([]byte("anything"))
	assert.Error(t, err)

	message := []byte("signed by the real key")
	sig, err := kp.Sign(message)
	require.NoError(t, err)
	assert.True(t, pub.Verify(message, sig))

	_, err = ImportEd25519PublicKey(make([]byte, 31))
	assert.ErrorIs(t, err, mpcrypto.ErrInvalidPublicKeySize)
}

func TestEd25519KeyPairZero(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	assert.NotPanics(t, func() { kp.Zero() })

	pub, err := ImportEd25519PublicKey(kp.PublicKey())
	require.NoError(t, err)
	assert.NotPanics(t, func() { pub.Zero() })
}
