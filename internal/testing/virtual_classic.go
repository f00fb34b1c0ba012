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
	"encoding/hex"
	"fmt"
)

// MIFARE Classic 1K geometry
const (
	ClassicBlocks  = 64
	ClassicSectors = 16
	blockSize      = 16
)

// Test UIDs
var (
	// TestUID has BCC 0x70
	TestUID      = [4]byte{0x12, 0x34, 0x56, 0x00}
	TestAltUID   = [4]byte{0xDE, 0xAD, 0xBE, 0xEF}
	DefaultKey   = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	defaultTrail = []byte{
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
		0xFF, 0x07, 0x80, 0x69,
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	}
)

type cardState int

const (
	cardIdle cardState = iota
	cardReady
	cardActive
	cardHalt
)

func (s cardState) String() string {
	switch s {
	case cardIdle:
		return "idle"
	case cardReady:
		return "ready"
	case cardActive:
		return "active"
	case cardHalt:
		return "halt"
	default:
		return fmt.Sprintf("cardState(%d)", int(s))
	}
}

// VirtualClassic is a simulated MIFARE Classic 1K card. It tracks the
// ISO 14443-A activation states and per-sector authentication but does not
// encrypt traffic.
type VirtualClassic struct {
	Blocks       [ClassicBlocks][blockSize]byte
	UID          [4]byte
	state        cardState
	authSector   int
	pendingWrite int
	// SAK returned on select, 0x08 for 1K
	SAK byte
	// MaskKeyA reads key A back as zeros, as real cards do
	MaskKeyA bool
}

// NewVirtualClassic creates a factory-fresh 1K card
func NewVirtualClassic(uid [4]byte) *VirtualClassic {
	c := &VirtualClassic{
		UID:          uid,
		SAK:          0x08,
		authSector:   -1,
		pendingWrite: -1,
	}
	bcc := uid[0] ^ uid[1] ^ uid[2] ^ uid[3]
	copy(c.Blocks[0][:], uid[:])
	c.Blocks[0][4] = bcc
	c.Blocks[0][5] = c.SAK
	c.Blocks[0][6] = 0x04
	c.Blocks[0][7] = 0x00
	for sector := range ClassicSectors {
		copy(c.Blocks[sector*4+3][:], defaultTrail)
	}
	return c
}

// SetBlock overwrites a block directly, bypassing authentication
func (c *VirtualClassic) SetBlock(block int, data []byte) {
	copy(c.Blocks[block][:], data)
}

// Block returns a copy of a block
func (c *VirtualClassic) Block(block int) []byte {
	out := make([]byte, blockSize)
	copy(out, c.Blocks[block][:])
	return out
}

// SetSectorKeys replaces key A and key B in a sector trailer
func (c *VirtualClassic) SetSectorKeys(sector int, keyA, keyB [6]byte) {
	trailer := &c.Blocks[sector*4+3]
	copy(trailer[0:6], keyA[:])
	copy(trailer[10:16], keyB[:])
}

// State returns the activation state name
func (c *VirtualClassic) State() string {
	return c.state.String()
}

// AuthenticatedSector returns the sector of the current Crypto1 session or -1
func (c *VirtualClassic) AuthenticatedSector() int {
	return c.authSector
}

// UIDString returns the UID as a hex string
func (c *VirtualClassic) UIDString() string {
	return hex.EncodeToString(c.UID[:])
}

func (c *VirtualClassic) bcc() byte {
	return c.UID[0] ^ c.UID[1] ^ c.UID[2] ^ c.UID[3]
}

// checkKey compares key against the sector trailer for method 0x60 (A) or 0x61 (B)
func (c *VirtualClassic) checkKey(method byte, block int, key []byte) bool {
	if block < 0 || block >= ClassicBlocks {
		return false
	}
	trailer := c.Blocks[(block/4)*4+3]
	var stored []byte
	switch method {
	case 0x60:
		stored = trailer[0:6]
	case 0x61:
		stored = trailer[10:16]
	default:
		return false
	}
	for i := range stored {
		if stored[i] != key[i] {
			return false
		}
	}
	return true
}

func (c *VirtualClassic) deauth() {
	c.authSector = -1
	c.pendingWrite = -1
}

// readBlock returns the block as the card sends it
func (c *VirtualClassic) readBlock(block int) []byte {
	data := c.Block(block)
	if block%4 == 3 && c.MaskKeyA {
		for i := range 6 {
			data[i] = 0
		}
	}
	return data
}

func (c *VirtualClassic) reset() {
	c.state = cardIdle
	c.deauth()
}
