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

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpenc-go/mpenc/transcript"
)

func TestEncodeDecodeCausalBodyRoundTrip(t *testing.T) {
	m := transcript.Message{
		ID:      "msg-2",
		Author:  "alice",
		Parents: []transcript.MessageId{"msg-1"},
		Readers: []transcript.UserId{"bob", "carol"},
		Body:    []byte("hello group"),
		PreRUID: map[transcript.UserId]transcript.MessageId{"bob": "msg-0"},
	}

	raw, err := encodeCausalBody(m)
	require.NoError(t, err)

	got, err := decodeCausalBody(raw)
	require.NoError(t, err)

	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Author, got.Author)
	assert.Equal(t, m.Parents, got.Parents)
	assert.ElementsMatch(t, m.Readers, got.Readers)
	assert.Equal(t, m.Body, got.Body)
	assert.Equal(t, m.PreRUID, got.PreRUID)
}

func TestEncodeDecodeCausalBodyWithNoParents(t *testing.T) {
	m := transcript.Message{ID: "root", Author: "alice", Body: []byte("hi")}

	raw, err := encodeCausalBody(m)
	require.NoError(t, err)

	got, err := decodeCausalBody(raw)
	require.NoError(t, err)
	assert.Empty(t, got.Parents)
	assert.Empty(t, got.Readers)
	assert.Empty(t, got.PreRUID)
}

func TestDecodeCausalBodyRejectsTruncatedInput(t *testing.T) {
	_, err := decodeCausalBody([]byte{0, 1, 2})
	assert.Error(t, err)
}
