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

// CRCA computes the ISO 14443-A CRC (preset 0x6363) in wire order
func CRCA(data []byte) [2]byte {
	crc := uint32(0x6363)
	for _, bt := range data {
		bt ^= uint8(crc & 0xFF)
		bt ^= bt << 4
		b := uint32(bt)
		crc = (crc >> 8) ^ (b << 8) ^ (b << 3) ^ (b >> 4)
	}
	return [2]byte{byte(crc), byte(crc >> 8)}
}

// AppendCRCA returns data followed by its CRC_A
func AppendCRCA(data []byte) []byte {
	crc := CRCA(data)
	return append(append([]byte(nil), data...), crc[0], crc[1])
}

func checkCRCA(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	crc := CRCA(frame[:len(frame)-2])
	return crc[0] == frame[len(frame)-2] && crc[1] == frame[len(frame)-1]
}
