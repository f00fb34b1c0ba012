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
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures a JitteryLink.
type JitterConfig struct {
	// MaxLatency is the upper bound of the random delay before each read
	MaxLatency time.Duration
	// StallAfterBytes stalls the link once after this many reply bytes
	StallAfterBytes int
	StallDuration   time.Duration
	// DropEvery discards every Nth reply byte (0 disables)
	DropEvery int
	Seed      uint64
}

// JitteryLink wraps the byte-level chip to behave like a USB-UART bridge
// (CH340, CP2102) with random latency, a one-off stall and lost bytes.
type JitteryLink struct {
	backend    io.ReadWriter
	rng        *rand.Rand
	readBuf    []byte
	config     JitterConfig
	delivered  int
	seen       int
	stallTaken bool
}

// NewJitteryLink wraps backend with jitter simulation.
func NewJitteryLink(backend io.ReadWriter, config JitterConfig) *JitteryLink {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &JitteryLink{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test jitter
		readBuf: make([]byte, 0, 64),
	}
}

// Write passes frames through unchanged.
func (j *JitteryLink) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read returns reply bytes after the configured delays. A read that finds
// nothing to deliver returns 0, nil like a serial port timeout.
func (j *JitteryLink) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 64)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // pass-through
		}
		for _, b := range tmp[:n] {
			j.seen++
			if j.config.DropEvery > 0 && j.seen%j.config.DropEvery == 0 {
				continue
			}
			j.readBuf = append(j.readBuf, b)
		}
	}
	if len(j.readBuf) == 0 {
		return 0, nil
	}

	if j.config.StallAfterBytes > 0 && !j.stallTaken && j.delivered >= j.config.StallAfterBytes {
		j.stallTaken = true
		time.Sleep(j.config.StallDuration)
	}

	n := copy(buf, j.readBuf)
	j.readBuf = j.readBuf[n:]
	j.delivered += n
	return n, nil
}

// Reset clears buffered bytes and the stall state.
func (j *JitteryLink) Reset() {
	j.readBuf = j.readBuf[:0]
	j.delivered = 0
	j.seen = 0
	j.stallTaken = false
}
