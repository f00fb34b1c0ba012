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
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// Recoverer brings a reader back after sleep/wake or transport errors
type Recoverer interface {
	// AttemptRecovery returns nil once the reader answers again
	AttemptRecovery(ctx context.Context) error

	// Reader returns the current reader, which may change after a reopen
	Reader() *mfrc522.Reader
}

// ReopenFunc opens a fresh reader
type ReopenFunc func(ctx context.Context) (*mfrc522.Reader, error)

// DefaultRecoverer tries a chip reinitialisation first and falls back to
// reopening the reader.
type DefaultRecoverer struct {
	reader      *mfrc522.Reader
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer. With a nil reopenFunc only the
// reinitialisation is attempted.
func NewDefaultRecoverer(
	reader *mfrc522.Reader,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		reader:      reader,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery runs up to maxAttempts rounds of:
// 1. soft reset and setup of the current chip
// 2. close and reopen, if a reopen function is configured
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error

	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		err := r.reader.Reinitialize()
		if err == nil {
			mfrc522.Debugf("recovery: reader reinitialised on attempt %d", attempt+1)
			return nil
		}
		lastErr = err

		if r.reopenFunc != nil {
			_ = r.reader.Close()
			reader, reopenErr := r.reopenFunc(ctx)
			if reopenErr == nil {
				r.reader = reader
				mfrc522.Debugf("recovery: reader reopened on attempt %d", attempt+1)
				return nil
			}
			lastErr = reopenErr
		}
	}

	return lastErr
}

// Reader returns the current reader
func (r *DefaultRecoverer) Reader() *mfrc522.Reader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reader
}
