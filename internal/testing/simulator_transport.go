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

package testing

import (
	"errors"
	"time"
)

// ErrSimulatedFailure is returned by SimulatorTransport for injected faults
var ErrSimulatedFailure = errors.New("simulated transport failure")

// RegisterAccess records one register operation seen by the transport
type RegisterAccess struct {
	Address byte
	Value   byte
	Write   bool
}

// SimulatorTransport wraps VirtualMFRC522 with the lifecycle half of the
// reader's Transport contract and records every register access.
type SimulatorTransport struct {
	sim        *VirtualMFRC522
	errs       map[byte]error
	Log        []RegisterAccess
	timeout    time.Duration
	closeCount int
	connected  bool
	// FailAfter makes every access after the first N fail (0 disables)
	FailAfter int
}

// NewSimulatorTransport creates a connected transport backed by sim
func NewSimulatorTransport(sim *VirtualMFRC522) *SimulatorTransport {
	return &SimulatorTransport{
		sim:       sim,
		errs:      make(map[byte]error),
		timeout:   time.Second,
		connected: true,
	}
}

func (t *SimulatorTransport) check(address byte) error {
	if !t.connected {
		return errors.New("transport is closed")
	}
	if t.FailAfter > 0 && len(t.Log) >= t.FailAfter {
		return ErrSimulatedFailure
	}
	if err, ok := t.errs[address]; ok {
		return err
	}
	return nil
}

// WriteRegister forwards a register write to the simulator
func (t *SimulatorTransport) WriteRegister(address, value byte) error {
	if err := t.check(address); err != nil {
		return err
	}
	t.Log = append(t.Log, RegisterAccess{Address: address, Value: value, Write: true})
	return t.sim.WriteRegister(address, value)
}

// ReadRegister forwards a register read to the simulator
func (t *SimulatorTransport) ReadRegister(address byte) (byte, error) {
	if err := t.check(address); err != nil {
		return 0, err
	}
	value, err := t.sim.ReadRegister(address)
	t.Log = append(t.Log, RegisterAccess{Address: address, Value: value})
	return value, err
}

// SetTimeout records the timeout
func (t *SimulatorTransport) SetTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// Timeout returns the last timeout set
func (t *SimulatorTransport) Timeout() time.Duration {
	return t.timeout
}

// Close marks the transport closed
func (t *SimulatorTransport) Close() error {
	t.closeCount++
	t.connected = false
	return nil
}

// IsConnected reports whether Close has not been called
func (t *SimulatorTransport) IsConnected() bool {
	return t.connected
}

// CloseCount returns how often Close was called
func (t *SimulatorTransport) CloseCount() int {
	return t.closeCount
}

// SetError makes every access to address fail with err
func (t *SimulatorTransport) SetError(address byte, err error) {
	t.errs[address] = err
}

// ClearErrors removes injected errors
func (t *SimulatorTransport) ClearErrors() {
	t.errs = make(map[byte]error)
	t.FailAfter = 0
}

// Writes returns the values written to address, in order
func (t *SimulatorTransport) Writes(address byte) []byte {
	var out []byte
	for _, a := range t.Log {
		if a.Write && a.Address == address {
			out = append(out, a.Value)
		}
	}
	return out
}

// Reads returns how often address was read
func (t *SimulatorTransport) Reads(address byte) int {
	n := 0
	for _, a := range t.Log {
		if !a.Write && a.Address == address {
			n++
		}
	}
	return n
}

// ResetLog clears the access log
func (t *SimulatorTransport) ResetLog() {
	t.Log = nil
}

// Sim returns the simulated chip
func (t *SimulatorTransport) Sim() *VirtualMFRC522 {
	return t.sim
}
