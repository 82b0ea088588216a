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

// Package keys provides the Ed25519 KeyPair implementation used for both
// long-term static identities and per-session ephemeral signing keys
// (spec.md Data Model).
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	mpcrypto "github.com/mpenc-go/mpenc/crypto"
)

// Ed25519KeyPair implements mpcrypto.KeyPair.
type Ed25519KeyPair struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	id         string
}

// GenerateEd25519KeyPair generates a new Ed25519 key pair, suitable for
// either a long-term static identity key or a fresh per-session ephemeral
// signing key.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate ed25519: %w", err)
	}
	return newEd25519KeyPair(publicKey, privateKey), nil
}

// ImportEd25519KeyPair reconstructs a key pair from a 32-byte seed, e.g.
// one persisted by the embedding application's long-term key store
// (spec.md §1: the key store is an external collaborator).
func ImportEd25519KeyPair(seed []byte) (*Ed25519KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, mpcrypto.ErrInvalidPrivateKeySize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return newEd25519KeyPair(pub, priv), nil
}

// ImportEd25519PublicKey wraps a known peer public key so it can be used
// with Verify through the same interface.
func ImportEd25519PublicKey(pub []byte) (*Ed25519KeyPair, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, mpcrypto.ErrInvalidPublicKeySize
	}
	return newEd25519KeyPair(ed25519.PublicKey(pub), nil), nil
}

func newEd25519KeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey) *Ed25519KeyPair {
	hash := sha256.Sum256(pub)
	return &Ed25519KeyPair{
		privateKey: priv,
		publicKey:  pub,
		id:         hex.EncodeToString(hash[:8]),
	}
}

func (kp *Ed25519KeyPair) PublicKey() []byte {
	out := make([]byte, len(kp.publicKey))
	copy(out, kp.publicKey)
	return out
}

func (kp *Ed25519KeyPair) Sign(message []byte) ([]byte, error) {
	if kp.privateKey == nil {
		return nil, fmt.Errorf("keys: no private key available to sign")
	}
	return ed25519.Sign(kp.privateKey, message), nil
}

func (kp *Ed25519KeyPair) Verify(message, sig []byte) bool {
	return ed25519.Verify(kp.publicKey, message, sig)
}

func (kp *Ed25519KeyPair) Type() mpcrypto.KeyType { return mpcrypto.KeyTypeEd25519 }

func (kp *Ed25519KeyPair) ID() string { return kp.id }

// Zero wipes the private key material. Safe to call on a public-key-only
// wrapper (ImportEd25519PublicKey) — it is then a no-op.
func (kp *Ed25519KeyPair) Zero() {
	if kp.privateKey != nil {
		mpcrypto.Zero(kp.privateKey)
	}
}

// PrivateKeyBytes returns the raw private key seed, or nil on a
// public-key-only wrapper. Only a caller that is about to publish or
// zero the key (e.g. aske.State.Quit, spec.md Data Model "potential
// publication on QUIT") should reach for this.
func (kp *Ed25519KeyPair) PrivateKeyBytes() []byte {
	if kp.privateKey == nil {
		return nil
	}
	seed := kp.privateKey.Seed()
	out := make([]byte, len(seed))
	copy(out, seed)
	return out
}
