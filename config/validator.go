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
	"fmt"
	"os"
	"strings"
)

// ValidationError is one configuration problem Load or ValidateFile
// surfaced; Level distinguishes what must block startup ("error") from
// what's merely worth a warning ("warning"/"info").
type ValidationError struct {
	Field   string
	Message string
	Level   string // "error", "warning", "info"
}

// ValidateConfiguration checks cfg for problems a Session would
// otherwise fail on only much later, or silently misbehave under.
func ValidateConfiguration(cfg *Config) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateIdentity(cfg.Identity)...)
	errs = append(errs, validateSession(cfg.Session)...)
	errs = append(errs, validateMonitor(cfg.Monitor)...)
	errs = append(errs, validateEnvironment(cfg.Environment)...)
	return errs
}

func validateIdentity(c IdentityConfig) []ValidationError {
	var errs []ValidationError
	if c.UserID == "" {
		errs = append(errs, ValidationError{
			Field: "Identity.UserID", Message: "user id is required", Level: "error",
		})
	}
	return errs
}

func validateSession(c SessionConfig) []ValidationError {
	var errs []ValidationError
	if c.CandidateMaxMessages < 0 {
		errs = append(errs, ValidationError{
			Field: "Session.CandidateMaxMessages", Message: "cannot be negative", Level: "error",
		})
	}
	if c.CandidateMaxAge < 0 || c.CandidateIdleTimeout < 0 || c.ReplayTTL < 0 {
		errs = append(errs, ValidationError{
			Field: "Session", Message: "durations cannot be negative", Level: "error",
		})
	}
	if c.MinPadding < 0 {
		errs = append(errs, ValidationError{
			Field: "Session.MinPadding", Message: "cannot be negative", Level: "error",
		})
	}
	return errs
}

func validateMonitor(c MonitorConfig) []ValidationError {
	var errs []ValidationError
	if c.FullAckTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field: "Monitor.FullAckTimeout", Message: "should be set to a positive duration", Level: "warning",
		})
	}
	for i, d := range c.ActiveAckIntervals {
		if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("Monitor.ActiveAckIntervals[%d]", i),
				Message: "intervals must be positive",
				Level:   "error",
			})
		}
	}
	return errs
}

func validateEnvironment(env string) []ValidationError {
	var errs []ValidationError
	env = strings.ToLower(env)

	valid := map[string]bool{"local": true, "development": true, "staging": true, "production": true}
	if !valid[env] {
		errs = append(errs, ValidationError{
			Field:   "Environment",
			Message: fmt.Sprintf("unknown environment: %s", env),
			Level:   "error",
		})
	}
	if env == "production" {
		errs = append(errs, ValidationError{
			Field: "Environment", Message: "running in production mode", Level: "info",
		})
	}
	return errs
}

// ValidateFile loads path and validates the result.
func ValidateFile(path string) ([]ValidationError, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return ValidateConfiguration(cfg), nil
}

// PrintValidationErrors prints a human-readable validation report,
// grouped error/warning/info, for CLI use.
func PrintValidationErrors(errs []ValidationError) {
	if len(errs) == 0 {
		fmt.Println("configuration is valid")
		return
	}

	var errorCount, warnCount, infoCount int
	for _, e := range errs {
		switch e.Level {
		case "error":
			errorCount++
		case "warning":
			warnCount++
		case "info":
			infoCount++
		}
	}
	fmt.Printf("configuration validation found %d errors, %d warnings, %d info messages\n\n",
		errorCount, warnCount, infoCount)

	for _, level := range []string{"error", "warning", "info"} {
		for _, e := range errs {
			if e.Level == level {
				fmt.Printf("%s: %s - %s\n", strings.ToUpper(level), e.Field, e.Message)
			}
		}
	}
}
