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
	"github.com/hsanjuan/go-ndef"
)

// TLV block types found in NFC Forum formatted MIFARE Classic sectors
const (
	tlvNull       = 0x00
	tlvNDEF       = 0x03
	tlvTerminator = 0xFE
)

var (
	// ErrNoNDEF indicates the card carries no NDEF message TLV
	ErrNoNDEF = errors.New("no NDEF message found")
	// ErrTruncatedTLV indicates the NDEF TLV runs past the last NDEF sector
	ErrTruncatedTLV = errors.New("NDEF TLV truncated")
)

// ReadNDEF reads the NDEF message from sectors 1..15 using the public NDEF
// key A. The session credentials are restored afterwards.
func (s *Session) ReadNDEF(ctx context.Context) (*ndef.Message, error) {
	if !s.hasUID {
		return nil, mfrc522.ErrNoTagSelected
	}
	method, key, hadAuth := s.method, s.key, s.hasAuth
	s.method, s.key, s.hasAuth = mfrc522.AuthA, mfrc522.NDEFKey, true
	defer func() {
		s.method, s.key, s.hasAuth = method, key, hadAuth
	}()

	var buf []byte
	for sector := 1; sector < TotalSectors; sector++ {
		for block := range trailerBlock {
			data, err := s.ReadBlock(ctx, BlockAddress(sector, block))
			if err != nil {
				return nil, fmt.Errorf("read NDEF: %w", err)
			}
			buf = append(buf, data...)
		}

		payload, complete, err := findNDEF(buf)
		if err != nil {
			return nil, err
		}
		if complete {
			msg := &ndef.Message{}
			if _, err := msg.Unmarshal(payload); err != nil {
				return nil, fmt.Errorf("decode NDEF: %w", err)
			}
			mfrc522.Emit(s.sink, mfrc522.EventDebug, "tagops.ndef", nil,
				"%d records in %d bytes", len(msg.Records), len(payload))
			return msg, nil
		}
	}
	return nil, ErrTruncatedTLV
}

// findNDEF walks the TLVs in buf. complete is false when buf ends before
// the NDEF TLV does.
func findNDEF(buf []byte) (payload []byte, complete bool, err error) {
	i := 0
	for i < len(buf) {
		typ := buf[i]
		switch typ {
		case tlvNull:
			i++
			continue
		case tlvTerminator:
			return nil, false, ErrNoNDEF
		}

		if i+1 >= len(buf) {
			return nil, false, nil
		}
		length := int(buf[i+1])
		header := 2
		if length == 0xFF {
			if i+3 >= len(buf) {
				return nil, false, nil
			}
			length = int(buf[i+2])<<8 | int(buf[i+3])
			header = 4
		}
		start := i + header
		end := start + length
		if end > len(buf) {
			return nil, false, nil
		}
		if typ == tlvNDEF {
			if length == 0 {
				return nil, false, ErrNoNDEF
			}
			return buf[start:end], true, nil
		}
		i = end
	}
	return nil, false, nil
}
