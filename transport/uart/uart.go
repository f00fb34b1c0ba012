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

// Package uart implements the MFRC522 register protocol over a serial port.
//
// Every register access is one short frame. A write sends the address with
// bit 7 clear followed by the value, and the chip echoes the address. A
// read sends the address with bit 7 set and the chip answers the value.
package uart

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the MFRC522 UART rate after power-up
	DefaultBaudRate = 9600
	// DefaultTimeout is how long a register access waits for the chip
	DefaultTimeout = 5 * time.Second

	readFlag    = 0x80
	addressMask = 0x7F
	maxEINTR    = 3
)

// Transport implements the mfrc522.Transport interface for UART communication.
type Transport struct {
	port     serial.Port
	portName string
	timeout  time.Duration
	mu       sync.Mutex
	closed   bool
}

// New opens portName at the default baud rate.
func New(portName string) (*Transport, error) {
	return NewWithBaud(portName, DefaultBaudRate)
}

// NewWithBaud opens portName at baud, 8N1.
func NewWithBaud(portName string, baud int) (*Transport, error) {
	if baud <= 0 {
		return nil, fmt.Errorf("%w: baud rate %d", mfrc522.ErrInvalidParameter, baud)
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := NewFromPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewFromPort wraps an already opened port. The transport takes ownership
// of port and closes it on Close.
func NewFromPort(port serial.Port, portName string) (*Transport, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil serial port", mfrc522.ErrInvalidParameter)
	}
	if err := port.SetReadTimeout(DefaultTimeout); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		mfrc522.Debugf("UART %s: input reset failed: %v", portName, err)
	}
	return &Transport{
		port:     port,
		portName: portName,
		timeout:  DefaultTimeout,
	}, nil
}

// WriteRegister writes value to the register at address and checks the echo.
func (t *Transport) WriteRegister(address, value byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}

	if err := t.send([]byte{address & addressMask, value}, "write register"); err != nil {
		return err
	}
	echo, err := t.receive("write register")
	if err != nil {
		mfrc522.Debugf("UART %s: write 0x%02X: silence", t.portName, address)
		return err
	}
	if echo != address {
		mfrc522.Debugf("UART %s: W[FAIL] 0x%02X <- 0x%02X: ret=0x%02X", t.portName, address, value, echo)
		return mfrc522.NewAddressMismatchError(address, echo)
	}
	return nil
}

// ReadRegister reads the register at address.
func (t *Transport) ReadRegister(address byte) (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return 0, err
	}

	if err := t.send([]byte{address | readFlag}, "read register"); err != nil {
		return 0, err
	}
	return t.receive("read register")
}

func (t *Transport) checkOpen() error {
	if t.closed || t.port == nil {
		return mfrc522.ErrTransportClosed
	}
	return nil
}

func (t *Transport) send(frame []byte, op string) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return mfrc522.NewTransportIOError(op, t.portName, err)
	}
	if n != len(frame) {
		return mfrc522.NewTransportWriteError(op, t.portName)
	}
	return nil
}

// receive reads the single reply byte. A read that returns nothing within
// the port timeout is a chip timeout; the input buffer is reset so a late
// reply cannot be mistaken for the next answer.
func (t *Transport) receive(op string) (byte, error) {
	buf := make([]byte, 1)
	for attempt := 0; ; attempt++ {
		n, err := t.port.Read(buf)
		if err != nil {
			if isInterruptedSystemCall(err) && attempt < maxEINTR {
				continue
			}
			return 0, mfrc522.NewTransportIOError(op, t.portName, err)
		}
		if n == 0 {
			_ = t.port.ResetInputBuffer()
			return 0, mfrc522.NewTimeoutError(op, t.portName)
		}
		return buf[0], nil
	}
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	t.timeout = timeout
	return nil
}

// Timeout returns the current read timeout
func (t *Transport) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

// Close closes the serial port. Closing twice is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.port != nil
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportUART
}

// PortName returns the serial device path
func (t *Transport) PortName() string {
	return t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}
