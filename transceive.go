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
	"context"
	"fmt"
)

// Response is what a card sent back during a Transceive command
type Response struct {
	// Data holds at most FIFOLimit bytes drained from the FIFO
	Data []byte
	// Bits is the number of valid bits received, including a partial last byte
	Bits int
}

func irqMasks(command byte) (enable, wait byte, err error) {
	switch command {
	case ModeAuthenticate:
		return authIRQEnable, authIRQWait, nil
	case ModeTransceive:
		return transceiveIRQEnable, transceiveIRQWait, nil
	default:
		return 0, 0, fmt.Errorf("%w: chip command 0x%02X cannot transceive", ErrInvalidParameter, command)
	}
}

// Transceive loads data into the FIFO, runs command (ModeTransceive or
// ModeAuthenticate) and collects the card's answer.
func (r *Reader) Transceive(ctx context.Context, command byte, data []byte) (*Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return nil, err
	}
	return r.transceive(ctx, command, data)
}

func (r *Reader) transceive(ctx context.Context, command byte, data []byte) (*Response, error) {
	irqEnable, irqWait, err := irqMasks(command)
	if err != nil {
		return nil, err
	}

	setup := []struct {
		address byte
		value   byte
	}{
		{RegComIEn, irqEnable | irqSet},
		{RegComIrq, ^byte(irqSet)}, // Set1=0 clears every flag written as 1
		{RegFIFOLevel, fifoFlush},
		{RegCommand, ModeIdle},
	}
	for _, s := range setup {
		if err := r.writeRegister(s.address, s.value); err != nil {
			return nil, fmt.Errorf("transceive setup: %w", err)
		}
	}
	for _, b := range data {
		if err := r.writeRegister(RegFIFOData, b); err != nil {
			return nil, fmt.Errorf("FIFO load: %w", err)
		}
	}
	if err := r.writeRegister(RegCommand, command); err != nil {
		return nil, fmt.Errorf("transceive start: %w", err)
	}
	if command == ModeTransceive {
		if err := r.setBits(RegBitFraming, startSend); err != nil {
			return nil, fmt.Errorf("start send: %w", err)
		}
	}

	irq, waitErr := r.waitIRQ(ctx, irqWait)

	// StartSend is cleared on every path, including aborted polls.
	if err := r.clearBits(RegBitFraming, startSend); err != nil && waitErr == nil {
		waitErr = fmt.Errorf("stop send: %w", err)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	errReg, err := r.readRegister(RegError)
	if err != nil {
		return nil, fmt.Errorf("error register: %w", err)
	}
	if errReg&errorMask != 0 {
		chipErr := &ChipError{Command: command, ErrorReg: errReg}
		Emit(r.sink, EventDebug, "transceive", chipErr, "chip error")
		return nil, chipErr
	}
	if irq&irqEnable&irqTimer != 0 {
		return nil, fmt.Errorf("command 0x%02X: %w", command, ErrCardTimeout)
	}

	resp := &Response{}
	if command != ModeTransceive {
		return resp, nil
	}

	level, err := r.readRegister(RegFIFOLevel)
	if err != nil {
		return nil, fmt.Errorf("FIFO level: %w", err)
	}
	control, err := r.readRegister(RegControl)
	if err != nil {
		return nil, fmt.Errorf("control register: %w", err)
	}

	n := int(level & 0x7F)
	lastBits := int(control & lastBitsMask)
	switch {
	case n == 0:
		// an empty FIFO yields no data rather than one stale byte
		resp.Bits = 0
	case lastBits != 0:
		resp.Bits = (n-1)*8 + lastBits
	default:
		resp.Bits = n * 8
	}

	if n > FIFOLimit {
		n = FIFOLimit
	}
	resp.Data = make([]byte, 0, n)
	for range n {
		b, err := r.readRegister(RegFIFOData)
		if err != nil {
			return nil, fmt.Errorf("FIFO drain: %w", err)
		}
		resp.Data = append(resp.Data, b)
	}
	return resp, nil
}

// waitIRQ polls ComIrqReg until a bit of wait is raised or the chip timer
// fires. Zero reads mean the chip has not started yet and are not counted
// against the poll limit, but are capped separately.
func (r *Reader) waitIRQ(ctx context.Context, wait byte) (byte, error) {
	limit := r.config.IRQPollLimit
	polls, idle := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			r.abortCommand()
			return 0, err
		}
		if polls >= limit || idle >= limit {
			r.abortCommand()
			Emit(r.sink, EventWarning, "transceive", ErrTimeout, "no interrupt after %d polls", polls+idle)
			return 0, fmt.Errorf("interrupt wait: %w", ErrTimeout)
		}

		irq, err := r.readRegister(RegComIrq)
		if err != nil {
			r.abortCommand()
			return 0, fmt.Errorf("interrupt poll: %w", err)
		}
		if irq == 0 {
			idle++
			continue
		}
		polls++
		if irq&wait != 0 {
			return irq, nil
		}
		if irq&irqTimer != 0 {
			return irq, ErrCardTimeout
		}
	}
}

func (r *Reader) abortCommand() {
	if err := r.writeRegister(RegCommand, ModeIdle); err != nil {
		Emit(r.sink, EventWarning, "transceive", err, "failed to idle chip after abort")
	}
}

// CalculateCRC runs the coprocessor over data and returns the CRC_A in wire
// order (low byte first).
func (r *Reader) CalculateCRC(ctx context.Context, data []byte) ([2]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return [2]byte{}, err
	}
	return r.calculateCRC(ctx, data)
}

func (r *Reader) calculateCRC(ctx context.Context, data []byte) ([2]byte, error) {
	var crc [2]byte

	if err := r.writeRegister(RegDivIrq, irqCRC); err != nil {
		return crc, fmt.Errorf("CRC setup: %w", err)
	}
	if err := r.writeRegister(RegFIFOLevel, fifoFlush); err != nil {
		return crc, fmt.Errorf("CRC setup: %w", err)
	}
	for _, b := range data {
		if err := r.writeRegister(RegFIFOData, b); err != nil {
			return crc, fmt.Errorf("FIFO load: %w", err)
		}
	}
	if err := r.writeRegister(RegCommand, ModeCalcCRC); err != nil {
		return crc, fmt.Errorf("CRC start: %w", err)
	}

	done := false
	for range crcPollLimit {
		if err := ctx.Err(); err != nil {
			r.abortCommand()
			return crc, err
		}
		div, err := r.readRegister(RegDivIrq)
		if err != nil {
			r.abortCommand()
			return crc, fmt.Errorf("CRC poll: %w", err)
		}
		if div&irqCRC != 0 {
			done = true
			break
		}
	}
	if !done {
		r.abortCommand()
		return crc, ErrCRCTimeout
	}

	low, err := r.readRegister(RegCRCResultL)
	if err != nil {
		return crc, fmt.Errorf("CRC result: %w", err)
	}
	high, err := r.readRegister(RegCRCResultH)
	if err != nil {
		return crc, fmt.Errorf("CRC result: %w", err)
	}
	crc[0], crc[1] = low, high

	if err := r.writeRegister(RegCommand, ModeIdle); err != nil {
		return crc, fmt.Errorf("CRC stop: %w", err)
	}
	return crc, nil
}

// appendCRC returns data followed by its CRC_A
func (r *Reader) appendCRC(ctx context.Context, data []byte) ([]byte, error) {
	crc, err := r.calculateCRC(ctx, data)
	if err != nil {
		return nil, err
	}
	return append(data, crc[0], crc[1]), nil
}
