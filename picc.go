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

const (
	atqaBits   = 16
	selectBits = 24
	ackBits    = 4
)

// Request sends REQA (ReqIdle) or WUPA (ReqAll) as a 7-bit short frame and
// returns the two ATQA bytes. No card in the field yields ErrCardTimeout.
func (r *Reader) Request(ctx context.Context, mode byte) ([]byte, error) {
	if mode != ReqIdle && mode != ReqAll {
		return nil, fmt.Errorf("%w: request mode 0x%02X", ErrInvalidParameter, mode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return nil, err
	}

	if err := r.writeRegister(RegBitFraming, 0x07); err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	resp, err := r.transceive(ctx, ModeTransceive, []byte{mode})
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if resp.Bits != atqaBits {
		return nil, fmt.Errorf("request: ATQA has %d bits: %w", resp.Bits, ErrShortRead)
	}
	return resp.Data, nil
}

// Anticollision runs cascade level 1 anticollision and returns the UID of
// the card that answered.
func (r *Reader) Anticollision(ctx context.Context) (UID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return UID{}, err
	}

	if err := r.writeRegister(RegBitFraming, 0x00); err != nil {
		return UID{}, fmt.Errorf("anticollision: %w", err)
	}
	resp, err := r.transceive(ctx, ModeTransceive, []byte{piccAnticoll, 0x20})
	if err != nil {
		return UID{}, fmt.Errorf("anticollision: %w", err)
	}
	uid, err := ValidateAnticollision(resp.Data)
	if err != nil {
		Emit(r.sink, EventDebug, "anticollision", err, "rejected answer % X", resp.Data)
		return UID{}, fmt.Errorf("anticollision: %w", err)
	}
	return uid, nil
}

// ValidateAnticollision checks a 5-byte anticollision answer (UID + BCC)
func ValidateAnticollision(resp []byte) (UID, error) {
	var uid UID
	if len(resp) != len(uid)+1 {
		return uid, fmt.Errorf("%w: anticollision answer has %d bytes", ErrChecksumMismatch, len(resp))
	}
	copy(uid[:], resp)
	if uid.Checksum() != resp[len(uid)] {
		return uid, fmt.Errorf("%w: got 0x%02X, computed 0x%02X", ErrChecksumMismatch, resp[len(uid)], uid.Checksum())
	}
	return uid, nil
}

// SelectTag selects the card with uid and returns its SAK byte
func (r *Reader) SelectTag(ctx context.Context, uid UID) (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return 0, err
	}

	r.hasSelected = false
	frame := append([]byte{piccSelect, 0x70}, uid[:]...)
	frame = append(frame, uid.Checksum())
	frame, err := r.appendCRC(ctx, frame)
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", uid, err)
	}

	resp, err := r.transceive(ctx, ModeTransceive, frame)
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", uid, err)
	}
	if resp.Bits != selectBits || len(resp.Data) == 0 {
		return 0, fmt.Errorf("select %s: %w (%d bits)", uid, ErrSelectFailed, resp.Bits)
	}

	r.selected = uid
	r.hasSelected = true
	Emit(r.sink, EventDebug, "select", nil, "selected %s, SAK 0x%02X", uid, resp.Data[0])
	return resp.Data[0], nil
}

// Authenticate runs MIFARE Crypto1 authentication for block with key. The
// card must be selected first.
func (r *Reader) Authenticate(ctx context.Context, method AuthMethod, block byte, key Key, uid UID) error {
	if !method.Valid() {
		return fmt.Errorf("%w: auth method 0x%02X", ErrInvalidParameter, byte(method))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return err
	}

	frame := make([]byte, 0, 2+len(key)+len(uid))
	frame = append(frame, byte(method), block)
	frame = append(frame, key[:]...)
	frame = append(frame, uid[:]...)

	r.authenticated = false
	if _, err := r.transceive(ctx, ModeAuthenticate, frame); err != nil {
		return fmt.Errorf("authenticate block %d: %w", block, err)
	}

	status, err := r.readRegister(RegStatus2)
	if err != nil {
		return fmt.Errorf("authenticate block %d: %w", block, err)
	}
	if status&crypto1On == 0 {
		Emit(r.sink, EventDebug, "authenticate", ErrAuthFailed, "block %d key %s rejected", block, method)
		return fmt.Errorf("authenticate block %d: %w", block, ErrAuthFailed)
	}

	r.authenticated = true
	return nil
}

func (r *Reader) stopCrypto() error {
	if err := r.clearBits(RegStatus2, crypto1On); err != nil {
		return fmt.Errorf("stop crypto: %w", err)
	}
	r.authenticated = false
	return nil
}

// StopCrypto ends the Crypto1 session. Calling it with no session is harmless.
func (r *Reader) StopCrypto() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCrypto()
}

// Halt puts the selected card into HALT state and ends the Crypto1 session.
// A halted card stays silent, so a card timeout is the expected outcome.
func (r *Reader) Halt(ctx context.Context) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return err
	}

	// crypto is dropped however the halt ends
	defer func() {
		if stopErr := r.stopCrypto(); stopErr != nil && err == nil {
			err = fmt.Errorf("halt: %w", stopErr)
		}
		r.authenticated = false
		r.hasSelected = false
	}()

	if err := r.clearBits(RegStatus2, tempSensClear); err != nil {
		return fmt.Errorf("halt: %w", err)
	}
	frame, err := r.appendCRC(ctx, []byte{piccHalt, 0x00})
	if err != nil {
		return fmt.Errorf("halt: %w", err)
	}

	resp, haltErr := r.transceive(ctx, ModeTransceive, frame)
	switch {
	case haltErr == nil:
		return fmt.Errorf("halt: %w (%d bits)", ErrHaltRejected, resp.Bits)
	case IsNoCard(haltErr):
		return nil
	default:
		return fmt.Errorf("halt: %w", haltErr)
	}
}

// ReadBlock reads one 16-byte block. The sector must be authenticated.
func (r *Reader) ReadBlock(ctx context.Context, block byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return nil, err
	}

	frame, err := r.appendCRC(ctx, []byte{piccRead, block})
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", block, err)
	}
	resp, err := r.transceive(ctx, ModeTransceive, frame)
	if err != nil {
		return nil, fmt.Errorf("read block %d: %w", block, err)
	}
	if len(resp.Data) != BlockSize {
		return nil, fmt.Errorf("read block %d: %w (%d bytes)", block, ErrShortRead, len(resp.Data))
	}
	return resp.Data, nil
}

// WriteBlock writes 16 bytes to block in the two-phase MIFARE write
func (r *Reader) WriteBlock(ctx context.Context, block byte, data []byte) error {
	if len(data) != BlockSize {
		return fmt.Errorf("%w: block data must be %d bytes, got %d", ErrInvalidParameter, BlockSize, len(data))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureConnected(); err != nil {
		return err
	}

	if err := r.writePhase(ctx, []byte{piccWrite, block}); err != nil {
		return fmt.Errorf("write block %d command: %w", block, err)
	}
	payload := make([]byte, BlockSize, BlockSize+2)
	copy(payload, data)
	if err := r.writePhase(ctx, payload); err != nil {
		return fmt.Errorf("write block %d data: %w", block, err)
	}
	return nil
}

func (r *Reader) writePhase(ctx context.Context, payload []byte) error {
	frame, err := r.appendCRC(ctx, payload)
	if err != nil {
		return err
	}
	resp, err := r.transceive(ctx, ModeTransceive, frame)
	if err != nil {
		return err
	}
	if !isACK(resp) {
		return ErrWriteRejected
	}
	return nil
}

// isACK reports a 4-bit MIFARE ACK (low nibble 0xA)
func isACK(resp *Response) bool {
	return resp.Bits == ackBits && len(resp.Data) > 0 && resp.Data[0]&0x0F == mifareACK
}
