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

import "fmt"

// Known values of RegVersion
const (
	VersionClone byte = 0x88
	VersionV0    byte = 0x90
	VersionV1    byte = 0x91
	VersionV2    byte = 0x92
)

var chipVersions = map[byte]string{
	VersionClone: "clone",
	VersionV0:    "v0.0",
	VersionV1:    "v1.0",
	VersionV2:    "v2.0",
}

// ChipVersion is the decoded content of RegVersion
type ChipVersion struct {
	Name string
	Raw  byte
}

// Known reports whether the version byte matched a known chip revision
func (v ChipVersion) Known() bool {
	_, ok := chipVersions[v.Raw]
	return ok
}

// Suspicious reports a version byte that usually means a broken link
func (v ChipVersion) Suspicious() bool {
	return v.Raw == 0x00 || v.Raw == 0xFF
}

func (v ChipVersion) String() string {
	if v.Name == "" {
		return fmt.Sprintf("unknown (0x%02X)", v.Raw)
	}
	return v.Name
}

// DecodeVersion maps a raw version register value to a ChipVersion
func DecodeVersion(raw byte) ChipVersion {
	return ChipVersion{Raw: raw, Name: chipVersions[raw]}
}
