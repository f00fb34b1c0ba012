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

package polling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	virt "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/require"
)

// newSimReader returns a reader over a simulated chip with an empty field
func newSimReader(t *testing.T) (*mfrc522.Reader, *virt.VirtualMFRC522, *virt.SimulatorTransport) {
	t.Helper()
	sim := virt.NewVirtualMFRC522()
	transport := virt.NewSimulatorTransport(sim)
	reader, err := mfrc522.New(transport)
	require.NoError(t, err)
	return reader, sim, transport
}

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.Sink = nil
	cfg.PollInterval = 2 * time.Millisecond
	cfg.Cooldown = 10 * time.Millisecond
	return cfg
}

// scriptedDetector answers Request with queued errors, then with fallback
type scriptedDetector struct {
	requestErrs []error
	fallback    error
	anticollErr error
	requests    int
	uid         mfrc522.UID
	mu          sync.Mutex
}

func (d *scriptedDetector) Request(_ context.Context, _ byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests++
	if len(d.requestErrs) > 0 {
		err := d.requestErrs[0]
		d.requestErrs = d.requestErrs[1:]
		if err != nil {
			return nil, err
		}
		return []byte{0x04, 0x00}, nil
	}
	if d.fallback != nil {
		return nil, d.fallback
	}
	return []byte{0x04, 0x00}, nil
}

func (d *scriptedDetector) Anticollision(_ context.Context) (mfrc522.UID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.anticollErr != nil {
		return mfrc522.UID{}, d.anticollErr
	}
	return d.uid, nil
}

func (d *scriptedDetector) Requests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests
}
