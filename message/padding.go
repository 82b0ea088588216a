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

// Package message implements the payload encryption, padding, and signed
// TLV envelope of spec.md §4.4.
package message

import (
	"github.com/mpenc-go/mpenc/merrors"
)

// DefaultMinPadding is the default minimum padded size in bytes.
const DefaultMinPadding = 128

const aesBlockSize = 16

const padTerminator = 0xFF

// Pad grows plaintext to the smallest power-of-two size that
// accommodates it plus a terminator byte (at least minPadding, unless
// minPadding is 0), then appends 0xFF followed by zero fill. minPadding
// == 0 disables only the 128-byte floor, not the power-of-two-plus-
// terminator scheme itself: the result must still be block-aligned for
// AES-CBC, so some padding always happens.
func Pad(plaintext []byte, minPadding int) []byte {
	size := nextPowerOfTwo(len(plaintext) + 1)
	if minPadding > 0 && size < minPadding {
		size = minPadding
	}
	if size%aesBlockSize != 0 {
		size += aesBlockSize - size%aesBlockSize
	}
	out := make([]byte, size)
	copy(out, plaintext)
	out[len(plaintext)] = padTerminator
	return out
}

// Unpad strips the trailing zero fill and the 0xFF terminator Pad added.
func Unpad(padded []byte) ([]byte, error) {
	i := len(padded) - 1
	for i >= 0 && padded[i] == 0 {
		i--
	}
	if i < 0 || padded[i] != padTerminator {
		return nil, merrors.NewDecryptionError("message.unpad", "missing padding terminator", nil)
	}
	return padded[:i], nil
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
