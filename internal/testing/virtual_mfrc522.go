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

// Package testing provides a register-level MFRC522 simulator and a virtual
// MIFARE Classic 1K card for tests.
//
// VirtualMFRC522 answers register reads and writes the way the chip does,
// including the Set1/Set2 semantics of the interrupt registers, the FIFO,
// the CRC coprocessor and the Transceive/Authenticate commands. Its
// WriteRegister/ReadRegister methods satisfy the reader's Transport
// contract directly; Write/Read speak the UART byte protocol.
package testing

import (
	"fmt"

	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// Register addresses used by the simulator
const (
	regCommand    = 0x01
	regComIEn     = 0x02
	regComIrq     = 0x04
	regDivIrq     = 0x05
	regError      = 0x06
	regStatus2    = 0x08
	regFIFOData   = 0x09
	regFIFOLevel  = 0x0A
	regControl    = 0x0C
	regBitFraming = 0x0D
	regMode       = 0x11
	regTxControl  = 0x14
	regTxASK      = 0x15
	regCRCResultH = 0x21
	regCRCResultL = 0x22
	regRFCfg      = 0x26
	regTMode      = 0x2A
	regTPrescaler = 0x2B
	regTReloadH   = 0x2C
	regTReloadL   = 0x2D
	regVersion    = 0x37
)

// Chip commands
const (
	cmdIdle         = 0x00
	cmdCalcCRC      = 0x03
	cmdTransceive   = 0x0C
	cmdAuthenticate = 0x0E
	cmdSoftReset    = 0x0F
)

const (
	irqTimer = 0x01
	irqIdle  = 0x10
	irqRx    = 0x20
	irqCRC   = 0x04

	fifoSize = 64
)

// Card commands counted by the simulator
const (
	CardREQA   = 0x26
	CardWUPA   = 0x52
	CardSelect = 0x93
	CardHalt   = 0x50
	CardRead   = 0x30
	CardWrite  = 0xA0
	CardAuth   = 0x60 // key A and key B are both counted here
)

// VirtualMFRC522 simulates an MFRC522 with an optional card in its field
type VirtualMFRC522 struct {
	card        *VirtualClassic
	counts      map[byte]int
	regs        [64]byte
	fifo        []byte
	rx          []byte
	pendingAddr int
	mu          syncutil.Mutex

	// Version is returned from the version register
	Version byte
	// ZeroIRQPolls makes the next N reads of ComIrqReg after a command return 0
	ZeroIRQPolls int
	// Phase1Ack and Phase2Ack replace the card's write ACK nibble when non-zero
	Phase1Ack byte
	Phase2Ack byte
	// FailReadEvery makes every Nth READ go unanswered (0 disables)
	FailReadEvery int
	// CRCStuck keeps the CRC coprocessor from ever finishing
	CRCStuck bool
	// InjectError is reported in ErrorReg after the next transceive
	InjectError byte
	// Silent drops every byte-level frame, emulating a dead link
	Silent bool
	// BadEcho makes write frames echo the wrong address
	BadEcho bool
	// NoIRQ keeps the chip from ever raising an interrupt
	NoIRQ bool
	// ShortSelect drops the CRC from the select answer
	ShortSelect bool

	zeroPending int
	reads       int
}

// NewVirtualMFRC522 creates a v2.0 chip with no card in the field
func NewVirtualMFRC522() *VirtualMFRC522 {
	v := &VirtualMFRC522{
		Version:     0x92,
		counts:      make(map[byte]int),
		pendingAddr: -1,
	}
	v.softReset()
	return v
}

// InsertCard puts card into the field
func (v *VirtualMFRC522) InsertCard(card *VirtualClassic) {
	v.mu.Lock()
	defer v.mu.Unlock()
	card.reset()
	v.card = card
}

// RemoveCard takes the card out of the field
func (v *VirtualMFRC522) RemoveCard() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.card = nil
	v.regs[regStatus2] &^= 0x08
}

// Card returns the card in the field, or nil
func (v *VirtualMFRC522) Card() *VirtualClassic {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.card
}

// CommandCount returns how often a card command reached the card
func (v *VirtualMFRC522) CommandCount(cmd byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[cmd]
}

// Reg returns the raw register content without side effects
func (v *VirtualMFRC522) Reg(address byte) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regs[address&0x3F]
}

// AntennaOn reports whether both antenna drivers are enabled
func (v *VirtualMFRC522) AntennaOn() bool {
	return v.Reg(regTxControl)&0x03 == 0x03
}

func (v *VirtualMFRC522) softReset() {
	v.regs = [64]byte{}
	v.regs[regCommand] = 0x20
	v.regs[regComIEn] = 0x80
	v.regs[regComIrq] = 0x14
	v.regs[regMode] = 0x3F
	v.regs[regTxControl] = 0x80
	v.regs[regRFCfg] = 0x48
	v.fifo = v.fifo[:0]
	if v.card != nil {
		v.card.deauth()
	}
}

// WriteRegister applies a register write
func (v *VirtualMFRC522) WriteRegister(address, value byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.write(address&0x3F, value)
	return nil
}

// ReadRegister returns a register value, applying read side effects
func (v *VirtualMFRC522) ReadRegister(address byte) (byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.read(address & 0x3F), nil
}

func (v *VirtualMFRC522) write(address, value byte) {
	switch address {
	case regCommand:
		v.runCommand(value & 0x0F)
	case regComIrq, regDivIrq:
		if value&0x80 != 0 {
			v.regs[address] |= value & 0x7F
		} else {
			v.regs[address] &^= value & 0x7F
		}
	case regFIFOLevel:
		if value&0x80 != 0 {
			v.fifo = v.fifo[:0]
			v.regs[regError] &^= 0x10
		}
	case regFIFOData:
		if len(v.fifo) >= fifoSize {
			v.regs[regError] |= 0x10
			return
		}
		v.fifo = append(v.fifo, value)
	case regBitFraming:
		v.regs[regBitFraming] = value &^ 0x80
		if value&0x80 != 0 && v.regs[regCommand]&0x0F == cmdTransceive {
			v.regs[regBitFraming] |= 0x80
			v.transceive()
		}
	case regStatus2:
		// only MFCrypto1On can be cleared by software; TempSensClear is writable
		v.regs[regStatus2] = v.regs[regStatus2]&value&0x08 | value&0x80
		if value&0x08 == 0 && v.card != nil {
			v.card.deauth()
		}
	case regVersion:
	default:
		v.regs[address] = value
	}
}

func (v *VirtualMFRC522) read(address byte) byte {
	switch address {
	case regComIrq:
		if v.zeroPending > 0 {
			v.zeroPending--
			return 0
		}
		return v.regs[regComIrq]
	case regFIFOData:
		if len(v.fifo) == 0 {
			return 0
		}
		b := v.fifo[0]
		v.fifo = v.fifo[1:]
		return b
	case regFIFOLevel:
		return byte(len(v.fifo))
	case regVersion:
		return v.Version
	default:
		return v.regs[address]
	}
}

func (v *VirtualMFRC522) runCommand(cmd byte) {
	v.regs[regCommand] = v.regs[regCommand]&0xF0 | cmd
	switch cmd {
	case cmdSoftReset:
		v.softReset()
	case cmdCalcCRC:
		if v.CRCStuck {
			return
		}
		crc := CRCA(v.fifo)
		v.fifo = v.fifo[:0]
		v.regs[regCRCResultL] = crc[0]
		v.regs[regCRCResultH] = crc[1]
		v.regs[regDivIrq] |= irqCRC
	case cmdAuthenticate:
		v.authenticate()
	case cmdTransceive, cmdIdle:
	}
}

func (v *VirtualMFRC522) finish(irq byte) {
	v.zeroPending = v.ZeroIRQPolls
	if v.NoIRQ {
		return
	}
	v.regs[regComIrq] |= irq
}

// authenticate consumes [method, block, key(6), uid(4)] from the FIFO
func (v *VirtualMFRC522) authenticate() {
	frame := append([]byte(nil), v.fifo...)
	v.fifo = v.fifo[:0]
	v.regs[regError] = 0
	v.regs[regCommand] &^= 0x0F

	if len(frame) != 12 {
		v.regs[regError] |= 0x01
		v.finish(irqIdle)
		return
	}
	v.counts[CardAuth]++

	card := v.card
	method, block := frame[0], int(frame[1])
	if card == nil || card.state != cardActive ||
		[4]byte(frame[8:12]) != card.UID || !card.checkKey(method, block, frame[2:8]) {
		if card != nil {
			card.reset()
		}
		v.regs[regStatus2] &^= 0x08
		v.finish(irqTimer)
		return
	}

	card.authSector = block / 4
	card.pendingWrite = -1
	v.regs[regStatus2] |= 0x08
	v.finish(irqIdle)
}

// transceive sends the FIFO to the card and loads its answer
func (v *VirtualMFRC522) transceive() {
	frame := append([]byte(nil), v.fifo...)
	v.fifo = v.fifo[:0]
	v.regs[regError] = 0
	v.regs[regControl] &^= 0x07
	txLastBits := v.regs[regBitFraming] & 0x07

	answer, bits := v.cardAnswer(frame, txLastBits)
	if v.InjectError != 0 {
		v.regs[regError] = v.InjectError
		v.InjectError = 0
	}
	if bits == 0 {
		v.finish(irqTimer)
		return
	}

	v.fifo = append(v.fifo, answer...)
	if rem := bits % 8; rem != 0 {
		v.regs[regControl] |= byte(rem)
	}
	v.finish(irqRx | irqIdle)
}

// cardAnswer returns the card's reply and its length in bits; zero bits
// means the card stayed silent.
func (v *VirtualMFRC522) cardAnswer(frame []byte, txLastBits byte) ([]byte, int) {
	card := v.card
	if card == nil || len(frame) == 0 {
		return nil, 0
	}

	if txLastBits == 7 && len(frame) == 1 {
		v.counts[frame[0]]++
		switch {
		case frame[0] == CardREQA && card.state == cardIdle,
			frame[0] == CardWUPA && (card.state == cardIdle || card.state == cardHalt):
			card.state = cardReady
			return []byte{0x04, 0x00}, 16
		default:
			return nil, 0
		}
	}

	if card.pendingWrite >= 0 {
		return v.writeData(card, frame)
	}

	switch {
	case len(frame) == 2 && frame[0] == CardSelect && frame[1] == 0x20:
		if card.state != cardReady {
			return nil, 0
		}
		return append(card.UID[:], card.bcc()), 40
	case len(frame) == 9 && frame[0] == CardSelect && frame[1] == 0x70:
		v.counts[CardSelect]++
		if card.state != cardReady && card.state != cardActive ||
			!checkCRCA(frame) || [4]byte(frame[2:6]) != card.UID {
			return nil, 0
		}
		card.state = cardActive
		card.deauth()
		if v.ShortSelect {
			return []byte{card.SAK}, 8
		}
		return AppendCRCA([]byte{card.SAK}), 24
	case len(frame) == 4 && frame[0] == CardHalt:
		v.counts[CardHalt]++
		if checkCRCA(frame) && card.state == cardActive {
			card.state = cardHalt
			card.deauth()
		}
		return nil, 0
	case len(frame) == 4 && frame[0] == CardRead:
		v.counts[CardRead]++
		return v.readData(card, frame)
	case len(frame) == 4 && frame[0] == CardWrite:
		v.counts[CardWrite]++
		if !checkCRCA(frame) || !v.authorized(card, int(frame[1])) {
			return []byte{0x04}, 4
		}
		card.pendingWrite = int(frame[1])
		return []byte{ackNibble(v.Phase1Ack)}, 4
	default:
		return nil, 0
	}
}

func (v *VirtualMFRC522) authorized(card *VirtualClassic, block int) bool {
	return card.state == cardActive && block < ClassicBlocks && card.authSector == block/4
}

func (v *VirtualMFRC522) readData(card *VirtualClassic, frame []byte) ([]byte, int) {
	v.reads++
	if v.FailReadEvery > 0 && v.reads%v.FailReadEvery == 0 {
		return nil, 0
	}
	block := int(frame[1])
	if !checkCRCA(frame) || !v.authorized(card, block) {
		return []byte{0x04}, 4
	}
	return AppendCRCA(card.readBlock(block)), 18 * 8
}

func (v *VirtualMFRC522) writeData(card *VirtualClassic, frame []byte) ([]byte, int) {
	block := card.pendingWrite
	card.pendingWrite = -1
	if len(frame) != blockSize+2 || !checkCRCA(frame) {
		return []byte{0x01}, 4
	}
	card.SetBlock(block, frame[:blockSize])
	return []byte{ackNibble(v.Phase2Ack)}, 4
}

func ackNibble(override byte) byte {
	if override != 0 {
		return override
	}
	return 0x0A
}

// Write consumes UART frames: [addr|0x80] reads a register, [addr, value]
// writes one and queues the address echo.
func (v *VirtualMFRC522) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Silent {
		return len(p), nil
	}
	for _, b := range p {
		if v.pendingAddr >= 0 {
			address := byte(v.pendingAddr)
			v.pendingAddr = -1
			v.write(address&0x3F, b)
			echo := address
			if v.BadEcho {
				echo = ^address
			}
			v.rx = append(v.rx, echo)
			continue
		}
		if b&0x80 != 0 {
			v.rx = append(v.rx, v.read(b&0x3F))
			continue
		}
		v.pendingAddr = int(b)
	}
	return len(p), nil
}

// Read returns queued reply bytes; nothing queued reads as zero bytes,
// which a serial port reports on timeout.
func (v *VirtualMFRC522) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := copy(p, v.rx)
	v.rx = v.rx[n:]
	return n, nil
}

// Pending returns the number of reply bytes not yet read
func (v *VirtualMFRC522) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.rx)
}

func (v *VirtualMFRC522) String() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	state := "empty"
	if v.card != nil {
		state = v.card.UIDString() + " " + v.card.state.String()
	}
	return fmt.Sprintf("VirtualMFRC522(version=0x%02X, card=%s, fifo=%d)", v.Version, state, len(v.fifo))
}
