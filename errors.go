// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mfrc522

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Error categories for retry and polling decisions
var (
	// Link errors - recoverable, usually retried on the next poll
	ErrTimeout         = errors.New("no response from chip")
	ErrAddressMismatch = errors.New("register write echo mismatch")
	ErrTransportWrite  = errors.New("transport write failed")
	ErrTransportClosed = errors.New("transport is closed")
	ErrNotConnected    = errors.New("reader not connected")

	// Card protocol errors
	ErrCardTimeout      = errors.New("card response timer expired")
	ErrChipError        = errors.New("chip reported an error")
	ErrChecksumMismatch = errors.New("UID checksum mismatch")
	ErrCRCTimeout       = errors.New("CRC coprocessor did not finish")
	ErrShortRead        = errors.New("unexpected response length")
	ErrWriteRejected    = errors.New("write not acknowledged by card")
	ErrAuthFailed       = errors.New("card authentication failed")
	ErrSelectFailed     = errors.New("card select failed")
	ErrHaltRejected     = errors.New("card answered HALT")

	// Caller sequencing errors - never retried
	ErrAuthNotConfigured = errors.New("authentication method and key not set")
	ErrNoTagSelected     = errors.New("no tag selected")
	ErrInvalidParameter  = errors.New("invalid parameter")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates the chip did not answer in time
	ErrorTypeTimeout
)

// TransportError wraps link-level errors with the failing operation and port
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or bus identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RegisterError describes a failed register access
type RegisterError struct {
	Err     error
	Op      string
	Address byte
	Echo    byte
}

func (e *RegisterError) Error() string {
	if errors.Is(e.Err, ErrAddressMismatch) {
		return fmt.Sprintf("%s 0x%02X: %v (echo 0x%02X)", e.Op, e.Address, e.Err, e.Echo)
	}
	return fmt.Sprintf("%s 0x%02X: %v", e.Op, e.Address, e.Err)
}

func (e *RegisterError) Unwrap() error {
	return e.Err
}

// ChipError carries the RegError content after a failed command
type ChipError struct {
	Command  byte
	ErrorReg byte
}

func (e *ChipError) Error() string {
	return fmt.Sprintf("command 0x%02X: error register 0x%02X (%s)", e.Command, e.ErrorReg, errorRegMeaning(e.ErrorReg))
}

func (*ChipError) Unwrap() error {
	return ErrChipError
}

// errorRegMeaning names the bits set in RegError
func errorRegMeaning(reg byte) string {
	bits := []struct {
		name string
		mask byte
	}{
		{"write error", 0x80},
		{"temperature error", 0x40},
		{"buffer overflow", 0x10},
		{"collision", 0x08},
		{"CRC error", 0x04},
		{"parity error", 0x02},
		{"protocol error", 0x01},
	}
	var names []string
	for _, b := range bits {
		if reg&b.mask != 0 {
			names = append(names, b.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// IsRetryable returns true if the operation may succeed on a later attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrAddressMismatch),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrCardTimeout),
		errors.Is(err, ErrChipError),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrCRCTimeout):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the reader is gone and polling should stop entirely.
// This is distinct from IsRetryable which only concerns a single operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrNotConnected),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// IsNoCard reports the expected "nothing in the field" outcome of a poll
func IsNoCard(err error) bool {
	return errors.Is(err, ErrCardTimeout)
}

// IsSequencingError reports a caller error such as reading before auth
func IsSequencingError(err error) bool {
	return errors.Is(err, ErrAuthNotConfigured) ||
		errors.Is(err, ErrNoTagSelected) ||
		errors.Is(err, ErrInvalidParameter)
}

// NewTimeoutError creates a retryable timeout error for a transport operation
func NewTimeoutError(op, port string) error {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrTimeout,
		Type:      ErrorTypeTimeout,
		Retryable: true,
	}
}

// NewTransportWriteError creates a retryable short write error
func NewTransportWriteError(op, port string) error {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       ErrTransportWrite,
		Type:      ErrorTypeTransient,
		Retryable: true,
	}
}

// NewTransportIOError classifies an I/O error returned by a port or bus
func NewTransportIOError(op, port string, err error) error {
	if isDeviceGoneError(err) || errors.Is(err, io.EOF) {
		return &TransportError{Op: op, Port: port, Err: err, Type: ErrorTypePermanent}
	}
	return &TransportError{Op: op, Port: port, Err: err, Type: ErrorTypeTransient, Retryable: true}
}

// NewAddressMismatchError reports a register write echoed with the wrong address
func NewAddressMismatchError(address, echo byte) error {
	return &RegisterError{Op: "write register", Address: address, Echo: echo, Err: ErrAddressMismatch}
}
