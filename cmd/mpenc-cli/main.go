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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mpenc-cli",
	Short: "mpenc-cli drives the mpENC group-chat protocol core",
	Long: `mpenc-cli generates Ed25519 identities and exercises the mpENC
group key agreement, authentication and messaging protocol.

Since this module specifies only the protocol core (spec.md §1: no
transport, no persistent store), sessions only run against an
in-process broadcast channel — see "mpenc-cli demo" for a scripted
multi-member walkthrough.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config.yaml (defaults to built-in config.Default)")
}

var configPath string
