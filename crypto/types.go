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

// Package crypto wraps the primitive operations mpENC is built from:
// Curve25519 ECDH scalar multiplication, Ed25519 signing, AES-128-CBC,
// SHA-256/512 and the system RNG (spec.md §4.1, §4.2, §4.4).
package crypto

import "errors"

// KeyType identifies the algorithm family of a KeyPair.
type KeyType string

const (
	KeyTypeEd25519 KeyType = "Ed25519"
)

// KeyPair is a signing key pair: a long-term static identity key, or a
// per-session ephemeral key (spec.md Data Model, "Identity & keys").
type KeyPair interface {
	// PublicKey returns the raw 32-byte Ed25519 public key.
	PublicKey() []byte
	// Sign signs message with the private key.
	Sign(message []byte) ([]byte, error)
	// Verify reports whether sig is a valid signature over message under
	// this key pair's public key.
	Verify(message, sig []byte) bool
	// Type returns the key type.
	Type() KeyType
	// ID returns a short identifier derived from the public key.
	ID() string
	// Zero overwrites the private key material. Best-effort; Go cannot
	// guarantee the backing memory is not copied elsewhere by the
	// runtime, but every caller that owns a private key exclusively
	// (spec.md §9 "per-session ephemeral private keys") must call this
	// on rotation/quit.
	Zero()
}

// KeyStorage provides storage for static key pairs, keyed by owner id.
// Kept from the teacher's crypto.KeyStorage shape; mpENC only ever needs
// it for the in-memory long-term identity directory (spec.md §6).
type KeyStorage interface {
	Store(id string, keyPair KeyPair) error
	Load(id string) (KeyPair, error)
	Delete(id string) error
	List() ([]string, error)
	Exists(id string) bool
}

// Common sentinel errors.
var (
	ErrKeyNotFound           = errors.New("crypto: key not found")
	ErrKeyExists             = errors.New("crypto: key already exists")
	ErrInvalidPublicKeySize  = errors.New("crypto: invalid public key size")
	ErrInvalidPrivateKeySize = errors.New("crypto: invalid private key size")
	ErrInvalidSignatureSize  = errors.New("crypto: invalid signature size")
	ErrLowOrderPoint         = errors.New("crypto: low-order or identity curve point")
)
