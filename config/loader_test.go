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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoaderOptions(t *testing.T) {
	assert.Equal(t, "config", DefaultLoaderOptions().ConfigDir)
}

func TestLoadWithCustomConfigDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte(`
identity:
  user_id: dave
`), 0o644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "development"})
	require.NoError(t, err)
	assert.Equal(t, "dave", cfg.Identity.UserID)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoadFallsBackToDefaultsWhenNoFileExists(t *testing.T) {
	t.Setenv("MPENC_USER_ID", "fallback-user")
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir(), Environment: "development"})
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.NotZero(t, cfg.Session.CandidateMaxAge)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("MPENC_USER_ID", "override-user")
	t.Setenv("MPENC_LOG_LEVEL", "debug")

	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir(), Environment: "development"})
	require.NoError(t, err)
	assert.Equal(t, "override-user", cfg.Identity.UserID)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	_, err := Load(LoaderOptions{ConfigDir: t.TempDir(), Environment: "nonsense"})
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MPENC_USER_ID", "env-user")
	t.Setenv("MPENC_ENV", "staging")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Identity.UserID)
	assert.Equal(t, "staging", cfg.Environment)
}

func TestMustLoadPanicsOnInvalidEnvironment(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: t.TempDir(), Environment: "nonsense"})
	})
}
