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
	"crypto/sha256"
	"io"

	"github.com/mpenc-go/mpenc/merrors"
	"golang.org/x/crypto/hkdf"
)

// DeriveGroupKey reduces the 32-byte CLIQUES cardinal key into the
// 16-byte AES-128 key this package's envelopes are encrypted under,
// via HKDF-SHA256 keyed on the session id so two sessions sharing a
// cardinal value by coincidence never collide on group key.
func DeriveGroupKey(cardinal [32]byte, sessionID []byte) ([16]byte, error) {
	var out [16]byte
	r := hkdf.New(sha256.New, cardinal[:], sessionID, []byte("mpenc-group-key"))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, merrors.NewFatalError("message.keyderiv", "hkdf expansion failed: "+err.Error())
	}
	return out, nil
}
