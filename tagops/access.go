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
	"fmt"
	"strconv"
	"strings"
)

// AccessConditions holds the C1 C2 C3 bits of the four blocks of a sector,
// index 3 being the trailer. Each entry carries C1 in bit 2, C2 in bit 1
// and C3 in bit 0.
type AccessConditions [BlocksPerSector]byte

// TransportAccess is the factory setting, encoded as FF 07 80
var TransportAccess = AccessConditions{0b000, 0b000, 0b000, 0b001}

// Encode returns the three access bytes stored at trailer offsets 6..8
func (a AccessConditions) Encode() [3]byte {
	var c1, c2, c3 byte
	for i, v := range a {
		c1 |= ((v >> 2) & 1) << i
		c2 |= ((v >> 1) & 1) << i
		c3 |= (v & 1) << i
	}
	return [3]byte{
		(^c2&0x0F)<<4 | ^c1&0x0F,
		c1<<4 | ^c3&0x0F,
		c3<<4 | c2,
	}
}

// DecodeAccessBits parses trailer bytes 6..8
func DecodeAccessBits(b []byte) (AccessConditions, error) {
	var a AccessConditions
	if len(b) < 3 {
		return a, fmt.Errorf("%w: need 3 bytes, got %d", ErrInvalidAccessBits, len(b))
	}
	c1 := b[1] >> 4
	c2 := b[2] & 0x0F
	c3 := b[2] >> 4
	if b[0]&0x0F != ^c1&0x0F || b[0]>>4 != ^c2&0x0F || b[1]&0x0F != ^c3&0x0F {
		return a, fmt.Errorf("%w: % X", ErrInvalidAccessBits, b[:3])
	}
	for i := range a {
		a[i] = ((c1>>i)&1)<<2 | ((c2>>i)&1)<<1 | (c3>>i)&1
	}
	return a, nil
}

// ValidAccessBits reports whether b holds consistent access bytes
func ValidAccessBits(b []byte) bool {
	_, err := DecodeAccessBits(b)
	return err == nil
}

func (a AccessConditions) String() string {
	return fmt.Sprintf("%03b %03b %03b %03b", a[0], a[1], a[2], a[3])
}

// ParseAccessConditions reads the String form: four C1C2C3 groups in
// binary, separated by spaces or commas.
func ParseAccessConditions(s string) (AccessConditions, error) {
	var a AccessConditions
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) != len(a) {
		return a, fmt.Errorf("%w: want %d groups, got %d", ErrInvalidAccessBits, len(a), len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 2, 8)
		if err != nil || len(f) != 3 {
			return a, fmt.Errorf("%w: group %q is not three binary digits", ErrInvalidAccessBits, f)
		}
		a[i] = byte(v)
	}
	return a, nil
}
