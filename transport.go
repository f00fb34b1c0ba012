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
	"fmt"
	"sync"
	"time"
)

// Transport defines register-level access to an MFRC522.
// This can be implemented by UART, I2C, or SPI backends; each owns the
// framing of its bus.
type Transport interface {
	// WriteRegister stores value in the chip register at address
	WriteRegister(address, value byte) error

	// ReadRegister returns the content of the chip register at address
	ReadRegister(address byte) (byte, error)

	// SetTimeout sets the per-byte read timeout of the link
	SetTimeout(timeout time.Duration) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TypedTransport is implemented by transports that report their bus type
type TypedTransport interface {
	Type() TransportType
}

// MockTransport is a plain register file for testing register helpers.
// It has no card protocol behaviour; use internal/testing for that.
type MockTransport struct {
	registers  map[byte]byte
	readCount  map[byte]int
	writeCount map[byte]int
	errorMap   map[byte]error
	writes     []RegisterWrite
	timeout    time.Duration
	mu         sync.RWMutex
	connected  bool
}

// RegisterWrite records one write seen by MockTransport
type RegisterWrite struct {
	Address byte
	Value   byte
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		registers:  make(map[byte]byte),
		readCount:  make(map[byte]int),
		writeCount: make(map[byte]int),
		errorMap:   make(map[byte]error),
		timeout:    time.Second,
		connected:  true,
	}
}

// WriteRegister implements Transport
func (m *MockTransport) WriteRegister(address, value byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrTransportClosed
	}
	m.writeCount[address]++
	if err, exists := m.errorMap[address]; exists {
		return err
	}
	m.registers[address] = value
	m.writes = append(m.writes, RegisterWrite{Address: address, Value: value})
	return nil
}

// ReadRegister implements Transport
func (m *MockTransport) ReadRegister(address byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrTransportClosed
	}
	m.readCount[address]++
	if err, exists := m.errorMap[address]; exists {
		return 0, err
	}
	return m.registers[address], nil
}

// SetTimeout implements Transport
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Type implements TypedTransport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetRegister presets a register value
func (m *MockTransport) SetRegister(address, value byte) {
	m.mu.Lock()
	m.registers[address] = value
	m.mu.Unlock()
}

// Register returns the current value of a register
func (m *MockTransport) Register(address byte) byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registers[address]
}

// SetError makes every access to address fail with err
func (m *MockTransport) SetError(address byte, err error) {
	m.mu.Lock()
	m.errorMap[address] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a register
func (m *MockTransport) ClearError(address byte) {
	m.mu.Lock()
	delete(m.errorMap, address)
	m.mu.Unlock()
}

// ReadCount returns how many times a register was read
func (m *MockTransport) ReadCount(address byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readCount[address]
}

// WriteCount returns how many times a register was written
func (m *MockTransport) WriteCount(address byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writeCount[address]
}

// Writes returns a copy of every successful write in order
func (m *MockTransport) Writes() []RegisterWrite {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RegisterWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

// String describes the mock for log output
func (m *MockTransport) String() string {
	return fmt.Sprintf("mock transport (%d registers)", len(m.registers))
}
