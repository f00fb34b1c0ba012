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

// Package i2c provides the MFRC522 register protocol over I2C.
//
// A write is one transaction [register, value]; a read writes [register]
// and reads one byte back in the same transaction.
package i2c

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the 7-bit address with EA tied high and ADR pins low
	DefaultAddress = 0x28

	maxClockFreq = 400 * physic.KiloHertz
	nackRetries  = 3
	nackDelay    = 2 * time.Millisecond
)

// Device is the part of i2c.Dev the transport uses
type Device interface {
	Tx(w, r []byte) error
}

// Transport implements the mfrc522.Transport interface for I2C communication
type Transport struct {
	dev     Device
	bus     io.Closer
	busName string
	timeout time.Duration
	mu      sync.Mutex
	closed  bool
}

// ParsePath splits "/dev/i2c-1:0x28" into bus and address. A bare bus name
// uses DefaultAddress.
func ParsePath(path string) (bus string, addr uint16, err error) {
	bus, rawAddr, found := strings.Cut(path, ":")
	if bus == "" {
		return "", 0, fmt.Errorf("%w: empty I2C bus in %q", mfrc522.ErrInvalidParameter, path)
	}
	if !found {
		return bus, DefaultAddress, nil
	}
	value, err := strconv.ParseUint(rawAddr, 0, 7)
	if err != nil {
		return "", 0, fmt.Errorf("%w: I2C address %q: %w", mfrc522.ErrInvalidParameter, rawAddr, err)
	}
	return bus, uint16(value), nil
}

// New opens the bus named in path ("/dev/i2c-1" or "/dev/i2c-1:0x28").
func New(path string) (*Transport, error) {
	busName, addr, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	if err := bus.SetSpeed(maxClockFreq); err != nil {
		mfrc522.Debugf("I2C %s: keeping default clock: %v", busName, err)
	}

	return NewFromDevice(&i2c.Dev{Addr: addr, Bus: bus}, bus, path), nil
}

// NewFromDevice wraps an addressed device. closer may be nil.
func NewFromDevice(dev Device, closer io.Closer, busName string) *Transport {
	return &Transport{
		dev:     dev,
		bus:     closer,
		busName: busName,
		timeout: 100 * time.Millisecond,
	}
}

// tx runs one transaction, retrying a few times when the chip NACKs while
// it is still busy with a previous command.
func (t *Transport) tx(op string, w, r []byte) error {
	var err error
	for attempt := range nackRetries {
		if err = t.dev.Tx(w, r); err == nil {
			return nil
		}
		if attempt < nackRetries-1 {
			time.Sleep(nackDelay)
		}
	}
	return mfrc522.NewTransportIOError(op, t.busName, err)
}

// WriteRegister writes value to the register at address.
func (t *Transport) WriteRegister(address, value byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return mfrc522.ErrTransportClosed
	}
	return t.tx("write register", []byte{address, value}, nil)
}

// ReadRegister reads the register at address.
func (t *Transport) ReadRegister(address byte) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, mfrc522.ErrTransportClosed
	}
	r := make([]byte, 1)
	if err := t.tx("read register", []byte{address}, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

// SetTimeout records the timeout; the bus clock bounds each transaction.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = timeout
	return nil
}

// Close releases the bus
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.bus != nil {
		if err := t.bus.Close(); err != nil {
			return fmt.Errorf("I2C close failed: %w", err)
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
	return mfrc522.TransportI2C
}
