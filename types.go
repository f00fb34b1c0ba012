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
	"encoding/hex"
	"fmt"
	"strings"
)

// UID is a MIFARE Classic single-size card identifier
type UID [4]byte

// Checksum returns the BCC byte sent by the card after the UID
func (u UID) Checksum() byte {
	return u[0] ^ u[1] ^ u[2] ^ u[3]
}

// String renders the UID as colon separated hex
func (u UID) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x", u[0], u[1], u[2], u[3])
}

// IsZero reports whether the UID is unset
func (u UID) IsZero() bool {
	return u == UID{}
}

// ParseUID parses "aabbccdd" or "aa:bb:cc:dd"
func ParseUID(s string) (UID, error) {
	var uid UID
	raw, err := decodeHex(s)
	if err != nil {
		return uid, fmt.Errorf("%w: UID %q: %w", ErrInvalidParameter, s, err)
	}
	if len(raw) != len(uid) {
		return uid, fmt.Errorf("%w: UID must be %d bytes, got %d", ErrInvalidParameter, len(uid), len(raw))
	}
	copy(uid[:], raw)
	return uid, nil
}

// Key is a 6-byte MIFARE Classic sector key
type Key [KeySize]byte

var (
	// DefaultKey is the transport key blank cards ship with
	DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	// NDEFKey is the public key A of NDEF formatted sectors
	NDEFKey = Key{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}
	// MADKey is the public key A of the MIFARE Application Directory
	MADKey = Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
)

func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// KeyFromBytes copies a 6-byte slice into a Key
func KeyFromBytes(b []byte) (Key, error) {
	var key Key
	if len(b) != KeySize {
		return key, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidParameter, KeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// ParseKey parses a 12 digit hex key, separators allowed
func ParseKey(s string) (Key, error) {
	raw, err := decodeHex(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: key %q: %w", ErrInvalidParameter, s, err)
	}
	return KeyFromBytes(raw)
}

// AuthMethod selects which sector key is used for authentication
type AuthMethod byte

const (
	AuthA AuthMethod = 0x60
	AuthB AuthMethod = 0x61
)

// Valid reports whether m is key A or key B
func (m AuthMethod) Valid() bool {
	return m == AuthA || m == AuthB
}

func (m AuthMethod) String() string {
	switch m {
	case AuthA:
		return "A"
	case AuthB:
		return "B"
	default:
		return fmt.Sprintf("0x%02X", byte(m))
	}
}

// ParseAuthMethod accepts "A" or "B" in any case
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A":
		return AuthA, nil
	case "B":
		return AuthB, nil
	default:
		return 0, fmt.Errorf("%w: auth method %q", ErrInvalidParameter, s)
	}
}

// decodeHex strips common separators before decoding
func decodeHex(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(":", "", " ", "", "-", "").Replace(strings.TrimSpace(s))
	cleaned = strings.TrimPrefix(strings.ToLower(cleaned), "0x")
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}
