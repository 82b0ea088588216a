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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"
	"golang.org/x/crypto/curve25519"
)

// Curve25519PrivateKeySize is the size of a clamped Curve25519 scalar.
const Curve25519PrivateKeySize = 32

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("crypto: rng read: %w", err)
	}
	return b, nil
}

// ClampScalar applies the RFC 7748 X25519 clamping to a 32-byte scalar in
// place: the low three bits are cleared, bit 254 is set, and bit 255 is
// cleared (spec.md §4.1 "Scalar multiplication").
func ClampScalar(s *[32]byte) {
	s[0] &= 248
	s[31] &= 127
	s[31] |= 64
}

// GenerateX25519Scalar returns a fresh, clamped 32-byte ECDH private
// scalar, used as a CLIQUES per-member contribution (spec.md §4.1 "ika").
func GenerateX25519Scalar() ([32]byte, error) {
	var scalar [32]byte
	raw, err := RandomBytes(32)
	if err != nil {
		return scalar, err
	}
	copy(scalar[:], raw)
	ClampScalar(&scalar)
	return scalar, nil
}

// ScalarMult computes scalar*point on Curve25519. point must be 32 bytes;
// use curve25519.Basepoint to compute a member's first public
// contribution. Returns ErrLowOrderPoint if point is the all-zero
// identity encoding or does not decode to any point on the curve (a
// wire-supplied CLIQUES contribution is untrusted input, so this is
// checked before the multiply, not only on the result), or if the
// result of the multiplication itself is the all-zero point.
func ScalarMult(scalar [32]byte, point [32]byte) ([32]byte, error) {
	var out [32]byte
	if err := rejectLowOrderPoint(point); err != nil {
		return out, err
	}
	dst, err := curve25519.X25519(scalar[:], point[:])
	if err != nil {
		return out, fmt.Errorf("crypto: scalar mult: %w", err)
	}
	copy(out[:], dst)
	var zero [32]byte
	if out == zero {
		return out, ErrLowOrderPoint
	}
	return out, nil
}

// rejectLowOrderPoint decodes a Curve25519 Montgomery u-coordinate and
// rejects the all-zero identity encoding and any encoding that is not a
// point on the curve at all, mirroring the teacher's use of
// edwards25519.Point.SetBytes to validate an untrusted encoded point
// before use (crypto/keys/x25519.go's convertEd25519PubToX25519). u is
// birationally mapped to the twisted Edwards y-coordinate
// y = (u-1)/(u+1); SetBytes fails when no curve point has that
// y-coordinate, which catches malformed contributions at decode time
// instead of only after an expensive scalar multiplication. It is not a
// substitute for the all-zero-result check in ScalarMult: most of the
// classic small-subgroup points (u = 0, 1, p-1, ...) do lie on the
// curve and decode here without error.
func rejectLowOrderPoint(point [32]byte) error {
	var zero [32]byte
	if point == zero {
		return ErrLowOrderPoint
	}

	var u field.Element
	if _, err := u.SetBytes(point[:]); err != nil {
		return ErrLowOrderPoint
	}

	one := new(field.Element).One()
	var num, den, denInv, y field.Element
	num.Subtract(&u, one)
	den.Add(&u, one)
	denInv.Invert(&den)
	y.Multiply(&num, &denInv)

	if _, err := new(edwards25519.Point).SetBytes(y.Bytes()); err != nil {
		return ErrLowOrderPoint
	}
	return nil
}

// ScalarBaseMult computes scalar*basepoint, i.e. this member's initial
// public contribution to the CLIQUES chain.
func ScalarBaseMult(scalar [32]byte) ([32]byte, error) {
	var base [32]byte
	copy(base[:], curve25519.Basepoint)
	return ScalarMult(scalar, base)
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// SHA512 returns the SHA-512 digest of data.
func SHA512(data ...[]byte) []byte {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// AES128CBCEncrypt encrypts plaintext (which must already be a multiple of
// the AES block size — padding is the message package's concern, spec.md
// §4.4) under key with the given 16-byte IV. key must be 16 bytes.
func AES128CBCEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("crypto: iv must be %d bytes", aes.BlockSize)
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("crypto: plaintext not block-aligned")
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// AES128CBCDecrypt reverses AES128CBCEncrypt.
func AES128CBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("crypto: iv must be %d bytes", aes.BlockSize)
	}
	if len(ciphertext)%aes.BlockSize != 0 || len(ciphertext) == 0 {
		return nil, fmt.Errorf("crypto: ciphertext not block-aligned")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// Zero overwrites b with zero bytes in place (best-effort; spec.md §5
// "Ephemeral private keys are wiped").
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
