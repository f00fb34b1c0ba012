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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB devices that must not be opened during
// detection. Format is VID:PID in hex, case-insensitive.
func DefaultBlocklist() []string {
	return []string{
		"2341:0043", // Arduino Uno: opening the port resets the board
		"2341:0001", // Arduino Uno (old bootloader)
		"1D50:6089", // HackRF One
	}
}

// IsBlocked reports whether vidpid appears in blocklist
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if strings.ToUpper(strings.TrimSpace(blocked)) == vidpid {
			return true
		}
	}
	return false
}

// FormatVIDPID joins vendor and product ids as "VVVV:PPPP". It returns ""
// unless both are four hex digits.
func FormatVIDPID(vid, pid string) string {
	vid, pid = strings.ToUpper(strings.TrimSpace(vid)), strings.ToUpper(strings.TrimSpace(pid))
	if len(vid) != 4 || len(pid) != 4 || !isHex(vid) || !isHex(pid) {
		return ""
	}
	return vid + ":" + pid
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsPathIgnored reports whether devicePath matches one of ignorePaths after
// cleaning and case folding.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	device := normalizedPath(devicePath)
	for _, p := range ignorePaths {
		if p != "" && normalizedPath(p) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
