// Copyright (C) 2025 mpenc-go
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package merrors holds the shared error taxonomy used across the GKA,
// ASKE, greet, message and transcript packages (spec.md §7).
package merrors

import "fmt"

// ArgumentError signals a caller-supplied argument violated a precondition:
// duplicate members, empty add/exclude set, excluding self.
type ArgumentError struct {
	Op  string
	Msg string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func NewArgumentError(op, msg string) error {
	return &ArgumentError{Op: op, Msg: msg}
}

// ProtocolError signals an unexpected flow, a merged-message source/dest
// mismatch, a disallowed state transition, a duplicate packet, an
// anti-chain violation, or an author total-order violation.
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func NewProtocolError(op, msg string) error {
	return &ProtocolError{Op: op, Msg: msg}
}

// AuthenticationError signals an invalid session signature or a missing
// signing key. The caller should drop the offending packet; it is not
// fatal to the session (spec.md §7).
type AuthenticationError struct {
	Op  string
	Msg string
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func NewAuthenticationError(op, msg string, cause error) error {
	return &AuthenticationError{Op: op, Msg: msg, Err: cause}
}

// DecryptionError signals no session key matched the sidkey hint, or
// padding removal failed. Not fatal; the offending packet is dropped.
type DecryptionError struct {
	Op  string
	Msg string
	Err error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

func NewDecryptionError(op, msg string, cause error) error {
	return &DecryptionError{Op: op, Msg: msg, Err: cause}
}

// FatalError indicates an internal assertion failed and the owning session
// must move to a terminal error state.
type FatalError struct {
	Op  string
	Msg string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %s", e.Op, e.Msg)
}

func NewFatalError(op, msg string) error {
	return &FatalError{Op: op, Msg: msg}
}

// IsArgument, IsProtocol, IsAuthentication, IsDecryption, IsFatal classify
// an error against the taxonomy above.
func IsArgument(err error) bool {
	_, ok := err.(*ArgumentError)
	return ok
}

func IsProtocol(err error) bool {
	_, ok := err.(*ProtocolError)
	return ok
}

func IsAuthentication(err error) bool {
	_, ok := err.(*AuthenticationError)
	return ok
}

func IsDecryption(err error) bool {
	_, ok := err.(*DecryptionError)
	return ok
}

func IsFatal(err error) bool {
	_, ok := err.(*FatalError)
	return ok
}
