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
	"fmt"
	"sync"

	mpcrypto "github.com/mpenc-go/mpenc/crypto"
)

// MemoryKeyDirectory implements mpcrypto.KeyStorage. It is the in-memory
// long-term identity key directory that sits outside the protocol core
// proper (spec.md Non-goals: no persistent key storage) — an embedding
// application is expected to populate it from whatever durable store it
// owns and hand it to the session layer.
type MemoryKeyDirectory struct {
	mu   sync.RWMutex
	keys map[string]mpcrypto.KeyPair
}

// NewMemoryKeyDirectory returns an empty directory.
func NewMemoryKeyDirectory() *MemoryKeyDirectory {
	return &MemoryKeyDirectory{keys: make(map[string]mpcrypto.KeyPair)}
}

func (d *MemoryKeyDirectory) Store(id string, keyPair mpcrypto.KeyPair) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.keys[id]; exists {
		return fmt.Errorf("keys: %w: %s", mpcrypto.ErrKeyExists, id)
	}
	d.keys[id] = keyPair
	return nil
}

func (d *MemoryKeyDirectory) Load(id string) (mpcrypto.KeyPair, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kp, exists := d.keys[id]
	if !exists {
		return nil, fmt.Errorf("keys: %w: %s", mpcrypto.ErrKeyNotFound, id)
	}
	return kp, nil
}

func (d *MemoryKeyDirectory) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.keys[id]; !exists {
		return fmt.Errorf("keys: %w: %s", mpcrypto.ErrKeyNotFound, id)
	}
	delete(d.keys, id)
	return nil
}

func (d *MemoryKeyDirectory) List() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.keys))
	for id := range d.keys {
		ids = append(ids, id)
	}
	return ids, nil
}

func (d *MemoryKeyDirectory) Exists(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.keys[id]
	return exists
}
