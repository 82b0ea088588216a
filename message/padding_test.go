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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPadUnpadRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		{0x00},
		{0xFF},
		{0x41, 0x00},
		{0x00, 0x00, 0x00},
		[]byte("hello, mpenc"),
		make([]byte, 127),
		make([]byte, 128),
		make([]byte, 129),
		make([]byte, 4096),
	}
	for _, c := range cases {
		padded := Pad(c, DefaultMinPadding)
		assert.Zero(t, len(padded)%16, "padded output must be block-aligned")
		got, err := Unpad(padded)
		require.NoError(t, err)
		if len(c) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, c, got)
		}
	}
}

func TestPadMinPaddingZeroStillBlockAligns(t *testing.T) {
	padded := Pad([]byte("x"), 0)
	assert.Zero(t, len(padded)%16)
	got, err := Unpad(padded)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestPadRespectsMinimum(t *testing.T) {
	padded := Pad([]byte("tiny"), DefaultMinPadding)
	assert.GreaterOrEqual(t, len(padded), DefaultMinPadding)
}

func TestUnpadRejectsMissingTerminator(t *testing.T) {
	_, err := Unpad(make([]byte, 16))
	assert.Error(t, err)
}
