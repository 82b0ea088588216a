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

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func resetDemoFlags() {
	demoMembers = "alice,bob,carol"
	demoInitiator = ""
	demoMessage = "hello, group"
	demoExclude = ""
	demoRefresh = false
	configPath = ""
}

func TestRunDemoHandshakeAndMessageExchange(t *testing.T) {
	resetDemoFlags()
	require.NoError(t, runDemo(demoCmd, nil))
}

func TestRunDemoWithExcludeAndRefresh(t *testing.T) {
	resetDemoFlags()
	demoExclude = "carol"
	demoRefresh = true
	require.NoError(t, runDemo(demoCmd, nil))
}

func TestRunDemoRejectsTooFewMembers(t *testing.T) {
	resetDemoFlags()
	demoMembers = "alice"
	require.Error(t, runDemo(demoCmd, nil))
}
