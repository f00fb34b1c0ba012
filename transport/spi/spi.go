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

// Package spi provides the MFRC522 register protocol over SPI.
//
// The address byte is (register << 1) with bit 7 set for reads; bit 0 is
// always zero. A read clocks out one dummy byte to receive the value.
package spi

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// DefaultFrequency is well under the chip's 10 MHz limit
	DefaultFrequency = 4 * physic.MegaHertz
	mode             = spi.Mode0

	readFlag    = 0x80
	addressMask = 0x7E
)

// Conn is the part of spi.Conn the transport uses
type Conn interface {
	Tx(w, r []byte) error
}

// Transport implements the mfrc522.Transport interface for SPI communication
type Transport struct {
	conn     Conn
	port     io.Closer
	portName string
	timeout  time.Duration
	mu       sync.Mutex
	closed   bool
}

// New opens the SPI port by periph name (for example "/dev/spidev0.0" or "SPI0.0").
func New(portName string) (*Transport, error) {
	return NewWithFrequency(portName, DefaultFrequency)
}

// NewWithFrequency opens the SPI port at the given clock.
func NewWithFrequency(portName string, freq physic.Frequency) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(freq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	return NewFromConn(conn, port, portName), nil
}

// NewFromConn wraps an established connection. closer may be nil.
func NewFromConn(conn Conn, closer io.Closer, portName string) *Transport {
	return &Transport{
		conn:     conn,
		port:     closer,
		portName: portName,
		timeout:  50 * time.Millisecond,
	}
}

func addressByte(address byte) byte {
	return (address << 1) & addressMask
}

// WriteRegister writes value to the register at address.
func (t *Transport) WriteRegister(address, value byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mfrc522.ErrTransportClosed
	}

	rx := make([]byte, 2)
	if err := t.conn.Tx([]byte{addressByte(address), value}, rx); err != nil {
		return mfrc522.NewTransportIOError("write register", t.portName, err)
	}
	return nil
}

// ReadRegister reads the register at address.
func (t *Transport) ReadRegister(address byte) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, mfrc522.ErrTransportClosed
	}

	rx := make([]byte, 2)
	if err := t.conn.Tx([]byte{addressByte(address) | readFlag, 0x00}, rx); err != nil {
		return 0, mfrc522.NewTransportIOError("read register", t.portName, err)
	}
	return rx[1], nil
}

// SetTimeout records the timeout; SPI transfers are clocked by the host
// and do not wait on the chip.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportSPI
}
