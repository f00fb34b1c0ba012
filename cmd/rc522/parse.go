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

package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/tagops"
)

// parseBlockRef accepts S<sector>B<block> or S<sector> for a whole sector
func parseBlockRef(s string) (sector, block int, whole bool, err error) {
	ref := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(ref, "S") {
		return 0, 0, false, fmt.Errorf("%w: block reference %q must look like S1B2", errUsage, s)
	}
	sectorPart, blockPart, hasBlock := strings.Cut(ref[1:], "B")

	sector, err = strconv.Atoi(sectorPart)
	if err != nil || sector < 0 || sector >= tagops.TotalSectors {
		return 0, 0, false, fmt.Errorf("%w: sector in %q must be 0-%d", errUsage, s, tagops.TotalSectors-1)
	}
	if !hasBlock {
		return sector, 0, true, nil
	}
	block, err = strconv.Atoi(blockPart)
	if err != nil || block < 0 || block >= tagops.BlocksPerSector {
		return 0, 0, false, fmt.Errorf("%w: block in %q must be 0-%d", errUsage, s, tagops.BlocksPerSector-1)
	}
	return sector, block, false, nil
}

// parseBlockData decodes 16 bytes of hex, separators allowed
func parseBlockData(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: block data: %w", errUsage, err)
	}
	if len(data) != mfrc522.BlockSize {
		return nil, fmt.Errorf("%w: block data must be %d bytes, got %d", errUsage, mfrc522.BlockSize, len(data))
	}
	return data, nil
}

func parseHexByte(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a hex byte", errUsage, s)
	}
	return byte(v), nil
}

// parseCount reads an optional positional integer
func parseCount(args []string, i, fallback, low, high int) (int, error) {
	if len(args) <= i {
		return fallback, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < low || n > high {
		return 0, fmt.Errorf("%w: %q must be a number between %d and %d", errUsage, args[i], low, high)
	}
	return n, nil
}

// formatBlock renders a block as hex plus printable ASCII
func formatBlock(addr byte, data []byte) string {
	ascii := make([]byte, len(data))
	for i, b := range data {
		if b >= 0x20 && b < 0x7F {
			ascii[i] = b
		} else {
			ascii[i] = '.'
		}
	}
	return fmt.Sprintf("%-6s % X  |%s|", tagops.SectorString(addr), data, ascii)
}
