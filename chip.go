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

import "fmt"

func (r *Reader) writeRegister(address, value byte) error {
	if err := r.transport.WriteRegister(address, value); err != nil {
		Emit(r.sink, EventWarning, "write register", err, "register 0x%02X <- 0x%02X failed", address, value)
		return err
	}
	return nil
}

func (r *Reader) readRegister(address byte) (byte, error) {
	value, err := r.transport.ReadRegister(address)
	if err != nil {
		Emit(r.sink, EventWarning, "read register", err, "register 0x%02X read failed", address)
		return 0, err
	}
	return value, nil
}

func (r *Reader) setBits(address, mask byte) error {
	current, err := r.readRegister(address)
	if err != nil {
		return err
	}
	return r.writeRegister(address, current|mask)
}

func (r *Reader) clearBits(address, mask byte) error {
	current, err := r.readRegister(address)
	if err != nil {
		return err
	}
	return r.writeRegister(address, current&^mask)
}

func checkAddress(address byte) error {
	if address > maxRegisterNum {
		return fmt.Errorf("%w: register address 0x%02X out of range", ErrInvalidParameter, address)
	}
	return nil
}

// WriteRegister writes one chip register
func (r *Reader) WriteRegister(address, value byte) error {
	if err := checkAddress(address); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeRegister(address, value)
}

// ReadRegister reads one chip register
func (r *Reader) ReadRegister(address byte) (byte, error) {
	if err := checkAddress(address); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readRegister(address)
}

// SetBits ORs mask into a register (read-modify-write)
func (r *Reader) SetBits(address, mask byte) error {
	if err := checkAddress(address); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setBits(address, mask)
}

// ClearBits clears mask in a register (read-modify-write)
func (r *Reader) ClearBits(address, mask byte) error {
	if err := checkAddress(address); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearBits(address, mask)
}

func (r *Reader) reset() error {
	return r.writeRegister(RegCommand, ModeSoftReset)
}

// Reset issues a soft reset. The chip loses its configuration; call
// Reinitialize to restore it.
func (r *Reader) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.reset(); err != nil {
		return err
	}
	r.connected = false
	r.authenticated = false
	r.hasSelected = false
	return nil
}

func (r *Reader) setAntenna(on bool) error {
	if !on {
		return r.clearBits(RegTxControl, antennaBits)
	}
	current, err := r.readRegister(RegTxControl)
	if err != nil {
		return err
	}
	if current&antennaBits == antennaBits {
		return nil
	}
	return r.writeRegister(RegTxControl, current|antennaBits)
}

// SetAntenna switches the TX1/TX2 antenna drivers
func (r *Reader) SetAntenna(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setAntenna(on)
}

func (r *Reader) setAntennaGain(gain byte) error {
	current, err := r.readRegister(RegRFCfg)
	if err != nil {
		return err
	}
	return r.writeRegister(RegRFCfg, current&^gainMask|(gain<<4)&gainMask)
}

// AntennaGain returns the receiver gain field (0-7) of RFCfgReg
func (r *Reader) AntennaGain() (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, err := r.readRegister(RegRFCfg)
	if err != nil {
		return 0, err
	}
	return (value & gainMask) >> 4, nil
}

// SetAntennaGain sets the receiver gain field (0-7, 18 dB to 48 dB)
func (r *Reader) SetAntennaGain(gain byte) error {
	if gain > 7 {
		return fmt.Errorf("%w: antenna gain must be 0-7, got %d", ErrInvalidParameter, gain)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setAntennaGain(gain)
}
