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

// Package polling waits for MIFARE cards to enter the reader's field and
// dispatches them to callbacks.
package polling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
)

var (
	// ErrNoTagInPoll indicates no card answered during a poll cycle
	ErrNoTagInPoll = errors.New("no tag detected in polling cycle")
	// ErrTooManyErrors is returned after Config.MaxConsecutiveErrors failed cycles
	ErrTooManyErrors = errors.New("too many consecutive polling errors")
	// ErrSleepDetected indicates a gap between polls long enough to suspect
	// the host slept
	ErrSleepDetected = errors.New("host sleep detected")
)

// CardDetector is the part of the reader used to find cards
type CardDetector interface {
	Request(ctx context.Context, mode byte) ([]byte, error)
	Anticollision(ctx context.Context) (mfrc522.UID, error)
}

// Card is a card found in the field
type Card struct {
	DetectedAt time.Time
	ATQA       [2]byte
	UID        mfrc522.UID
}

func (c *Card) String() string {
	return fmt.Sprintf("%s (ATQA %02X%02X)", c.UID, c.ATQA[0], c.ATQA[1])
}

// Poll runs one request/anticollision cycle. ErrNoTagInPoll means the field
// was empty.
func Poll(ctx context.Context, detector CardDetector, mode byte) (*Card, error) {
	atqa, err := detector.Request(ctx, mode)
	if err != nil {
		if mfrc522.IsNoCard(err) {
			return nil, ErrNoTagInPoll
		}
		return nil, err
	}

	uid, err := detector.Anticollision(ctx)
	if err != nil {
		if mfrc522.IsNoCard(err) {
			return nil, ErrNoTagInPoll
		}
		return nil, err
	}

	card := &Card{UID: uid, DetectedAt: time.Now()}
	copy(card.ATQA[:], atqa)
	return card, nil
}

// poller carries error and timing state across poll cycles
type poller struct {
	lastPoll    time.Time
	detector    CardDetector
	config      *Config
	consecutive int
}

func newPoller(detector CardDetector, config *Config) *poller {
	return &poller{detector: detector, config: config}
}

// cycle polls once. It returns (nil, nil) when the caller should simply
// poll again.
func (p *poller) cycle(ctx context.Context) (*Card, error) {
	now := time.Now()
	gap := now.Sub(p.lastPoll)
	slept := !p.lastPoll.IsZero() && p.config.SleepRecovery.DetectSleep(gap, p.config.PollInterval)
	p.lastPoll = now
	if slept {
		mfrc522.Emit(p.config.Sink, mfrc522.EventWarning, "poll", nil, "poll gap of %s", gap)
		return nil, ErrSleepDetected
	}

	card, err := Poll(ctx, p.detector, p.config.RequestMode)
	switch {
	case err == nil:
		p.consecutive = 0
		mfrc522.Emit(p.config.Sink, mfrc522.EventDebug, "poll", nil, "card %s", card)
		return card, nil
	case errors.Is(err, ErrNoTagInPoll):
		p.consecutive = 0
		return nil, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case mfrc522.IsFatal(err):
		mfrc522.Emit(p.config.Sink, mfrc522.EventError, "poll", err, "reader lost")
		return nil, err
	}

	p.consecutive++
	mfrc522.Emit(p.config.Sink, mfrc522.EventWarning, "poll", err, "poll failed (%d in a row)", p.consecutive)
	if p.config.MaxConsecutiveErrors > 0 && p.consecutive >= p.config.MaxConsecutiveErrors {
		p.consecutive = 0
		return nil, fmt.Errorf("%w: %w", ErrTooManyErrors, err)
	}
	return nil, nil
}

// WaitForCard polls detector every config.PollInterval until a card
// answers, ctx ends or a fatal error occurs. A nil config uses
// DefaultConfig.
func WaitForCard(ctx context.Context, detector CardDetector, config *Config) (*Card, error) {
	cfg := config.withDefaults()
	p := newPoller(detector, cfg)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		card, err := p.cycle(ctx)
		if err != nil || card != nil {
			return card, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// rearm forgets the last poll time so a deliberate pause is not taken for
// a host sleep
func (p *poller) rearm() {
	p.lastPoll = time.Time{}
}
