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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpenc-go/mpenc/crypto/keys"
)

var keygenOutputFile string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new Ed25519 identity key pair",
	Long: `Generate a long-term Ed25519 key pair, the static identity key an
mpENC member authenticates with during ASKE (spec.md §4.2).`,
	Example: `  # Generate a key and print it to stdout
  mpenc-cli keygen

  # Generate a key and save it to a file
  mpenc-cli keygen --output alice.json`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOutputFile, "output", "o", "", "output file (default: stdout)")
}

type keyFile struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Fingerprint string `json:"fingerprint"`
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	out := keyFile{
		PublicKey:   base64.StdEncoding.EncodeToString(kp.PublicKey()),
		PrivateKey:  base64.StdEncoding.EncodeToString(kp.PrivateKeyBytes()),
		Fingerprint: kp.ID(),
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	data = append(data, '\n')

	if keygenOutputFile == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(keygenOutputFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	fmt.Printf("key saved to %s (fingerprint %s)\n", keygenOutputFile, out.Fingerprint)
	return nil
}

// loadKeyFile reads back a file runKeygen wrote.
func loadKeyFile(path string) (*keys.Ed25519KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	seed, err := base64.StdEncoding.DecodeString(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key encoding: %w", err)
	}
	return keys.ImportEd25519KeyPair(seed)
}
