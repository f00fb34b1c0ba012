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

package tagops

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
)

// MIFARE Classic 1K layout
const (
	BlocksPerSector = 4
	TotalSectors    = 16
	TotalBlocks     = BlocksPerSector * TotalSectors
	trailerBlock    = 3
)

var (
	// ErrManufacturerBlock is returned for writes to block 0
	ErrManufacturerBlock = errors.New("block 0 holds manufacturer data and is read-only")
	// ErrInvalidAccessBits indicates access bytes whose inverted copies disagree
	ErrInvalidAccessBits = errors.New("inconsistent access bits")
	// ErrKeyAUnknown is returned for a trailer rewrite that leaves key A
	// unset while authenticated with key B
	ErrKeyAUnknown = errors.New("key A cannot be read back from the card")
)

// BlockAddress returns the absolute address of block within sector
func BlockAddress(sector, block int) byte {
	return byte(sector*BlocksPerSector + block)
}

// IsTrailer reports whether addr is the last block of its sector
func IsTrailer(addr byte) bool {
	return addr%BlocksPerSector == trailerBlock
}

// SectorString formats addr as sector and block, e.g. "S1B3"
func SectorString(addr byte) string {
	return fmt.Sprintf("S%dB%d", addr/BlocksPerSector, addr%BlocksPerSector)
}

// Patch is a sparse block update. Nil entries keep the stored byte.
type Patch [mfrc522.BlockSize]*byte

// Set stores values starting at offset and returns p for chaining
func (p *Patch) Set(offset int, values ...byte) *Patch {
	for i, b := range values {
		if offset+i >= len(p) {
			break
		}
		v := b
		p[offset+i] = &v
	}
	return p
}

// Empty reports whether p changes nothing
func (p *Patch) Empty() bool {
	for _, b := range p {
		if b != nil {
			return false
		}
	}
	return true
}

// Apply returns a copy of block with the patch overlaid
func (p *Patch) Apply(block []byte) []byte {
	out := make([]byte, len(block))
	copy(out, block)
	for i, b := range p {
		if b != nil && i < len(out) {
			out[i] = *b
		}
	}
	return out
}

// RewriteBlock reads block, overlays patch and writes the result back. An
// empty patch changes nothing and writes nothing. Cards read key A back as
// zeros, so on a trailer the unset key A bytes come from the session key;
// with key B there is nothing to fill them from and ErrKeyAUnknown is
// returned.
func (s *Session) RewriteBlock(ctx context.Context, block byte, patch *Patch) error {
	if !s.hasUID {
		return mfrc522.ErrNoTagSelected
	}
	if !s.hasAuth {
		return mfrc522.ErrAuthNotConfigured
	}
	if patch == nil || patch.Empty() {
		return nil
	}

	if IsTrailer(block) {
		filled := *patch
		for i := range len(s.key) {
			if filled[i] != nil {
				continue
			}
			if s.method != mfrc522.AuthA {
				return fmt.Errorf("rewrite %s: %w", SectorString(block), ErrKeyAUnknown)
			}
			filled.Set(i, s.key[i])
		}
		patch = &filled
	}

	current, err := s.ReadBlock(ctx, block)
	if err != nil {
		return err
	}
	return s.WriteBlock(ctx, block, patch.Apply(current))
}

// Trailer describes a sector trailer update. Nil fields keep the stored
// bytes.
type Trailer struct {
	KeyA   *mfrc522.Key
	Access *[3]byte
	User   *byte
	KeyB   *mfrc522.Key
}

// DefaultTrailer returns the factory trailer: transport keys, FF 07 80
// access bits and user byte 0x69.
func DefaultTrailer() Trailer {
	keyA, keyB := mfrc522.DefaultKey, mfrc522.DefaultKey
	access := TransportAccess.Encode()
	user := byte(0x69)
	return Trailer{KeyA: &keyA, Access: &access, User: &user, KeyB: &keyB}
}

func (t Trailer) patch() *Patch {
	p := &Patch{}
	if t.KeyA != nil {
		p.Set(0, t.KeyA[:]...)
	}
	if t.Access != nil {
		p.Set(6, t.Access[:]...)
	}
	if t.User != nil {
		p.Set(9, *t.User)
	}
	if t.KeyB != nil {
		p.Set(10, t.KeyB[:]...)
	}
	return p
}

// WriteTrailer rewrites the trailer of sector. A nil KeyA keeps the
// current key, which needs a session authenticated with key A.
func (s *Session) WriteTrailer(ctx context.Context, sector int, t Trailer) error {
	if sector < 0 || sector >= TotalSectors {
		return fmt.Errorf("%w: sector %d out of range", mfrc522.ErrInvalidParameter, sector)
	}
	return s.RewriteBlock(ctx, BlockAddress(sector, trailerBlock), t.patch())
}

// BlockResult is the outcome of reading one block during a dump
type BlockResult struct {
	Err     error
	Data    []byte
	Address byte
}

// OK reports whether the block was read
func (r BlockResult) OK() bool {
	return r.Err == nil
}

func (r BlockResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", SectorString(r.Address), r.Err)
	}
	return fmt.Sprintf("%s: % X", SectorString(r.Address), r.Data)
}

// Dump reads sectors sectors beginning at startSector and returns one
// result per block. A failed block does not stop the dump.
func (s *Session) Dump(ctx context.Context, sectors, startSector int) []BlockResult {
	if sectors <= 0 {
		return nil
	}
	results := make([]BlockResult, 0, sectors*BlocksPerSector)
	first := startSector * BlocksPerSector
	for i := range sectors * BlocksPerSector {
		addr := byte(first + i)
		data, err := s.ReadBlock(ctx, addr)
		if err != nil {
			mfrc522.Emit(s.sink, mfrc522.EventWarning, "tagops.dump", err, "%s unreadable", SectorString(addr))
		}
		results = append(results, BlockResult{Address: addr, Data: data, Err: err})
	}
	return results
}
