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

// CardDetectionState is the monitor's view of the field
type CardDetectionState int

const (
	StateIdle CardDetectionState = iota
	StateTagDetected
	StateProcessing
	StateCooldown
)

func (s CardDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTagDetected:
		return "detected"
	case StateProcessing:
		return "processing"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// CardState tracks the last card handled by a monitor
type CardState struct {
	LastSeenTime    time.Time
	ProcessedTime   time.Time
	CooldownUntil   time.Time
	LastUID         mfrc522.UID
	DetectionState  CardDetectionState
	Present         bool
	ProcessedUID    bool
	ConsecutiveHits int
}

// TransitionToDetected records uid as seen at now
func (cs *CardState) TransitionToDetected(uid mfrc522.UID, now time.Time) {
	if cs.Present && cs.LastUID == uid {
		cs.ConsecutiveHits++
	} else {
		cs.ConsecutiveHits = 1
		cs.ProcessedUID = false
	}
	cs.DetectionState = StateTagDetected
	cs.Present = true
	cs.LastUID = uid
	cs.LastSeenTime = now
}

// TransitionToProcessing marks the callback as running
func (cs *CardState) TransitionToProcessing() {
	cs.DetectionState = StateProcessing
}

// TransitionToCooldown marks the current card as handled until now+cooldown
func (cs *CardState) TransitionToCooldown(now time.Time, cooldown time.Duration) {
	cs.DetectionState = StateCooldown
	cs.ProcessedUID = true
	cs.ProcessedTime = now
	cs.CooldownUntil = now.Add(cooldown)
}

// TransitionToIdle forgets the card
func (cs *CardState) TransitionToIdle() {
	cs.DetectionState = StateIdle
	cs.Present = false
	cs.ProcessedUID = false
	cs.ConsecutiveHits = 0
	cs.LastUID = mfrc522.UID{}
	cs.LastSeenTime = time.Time{}
	cs.CooldownUntil = time.Time{}
}

// ShouldProcess reports whether a card with uid seen at now needs a
// callback. The same card is skipped while its cooldown runs.
func (cs *CardState) ShouldProcess(uid mfrc522.UID, now time.Time) bool {
	if !cs.Present || cs.LastUID != uid || !cs.ProcessedUID {
		return true
	}
	return !now.Before(cs.CooldownUntil)
}
