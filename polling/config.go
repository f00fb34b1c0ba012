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
	"time"

	"github.com/ZaparooProject/go-mfrc522"
)

// SleepRecoveryConfig configures recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled turns on sleep detection
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum gap beyond the poll interval
	// that counts as a sleep. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before giving up.
	// Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns the default sleep recovery settings
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed exceeds pollInterval by more than the
// discontinuity threshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds polling options
type Config struct {
	// Sink receives poll events; nil discards them
	Sink mfrc522.EventSink
	// PollInterval is the delay between two REQA/WUPA attempts
	PollInterval time.Duration
	// Cooldown suppresses repeated callbacks for the same UID
	Cooldown time.Duration
	// MaxConsecutiveErrors ends a wait after this many transport errors in a
	// row. Zero disables the limit.
	MaxConsecutiveErrors int
	// RequestMode is mfrc522.ReqIdle or mfrc522.ReqAll
	RequestMode byte
	// HaltAfterCallback sends HLTA once the card callback returns
	HaltAfterCallback bool
	// SleepRecovery configures recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		Sink:                 mfrc522.DebugSink{},
		PollInterval:         100 * time.Millisecond,
		Cooldown:             time.Second,
		MaxConsecutiveErrors: 5,
		RequestMode:          mfrc522.ReqIdle,
		HaltAfterCallback:    true,
		SleepRecovery:        DefaultSleepRecoveryConfig(),
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.RequestMode == 0 {
		out.RequestMode = def.RequestMode
	}
	if out.Cooldown < 0 {
		out.Cooldown = 0
	}
	return &out
}
