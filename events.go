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

import (
	"fmt"
	"time"
)

// EventKind classifies reader events
type EventKind int

const (
	// EventInfo is a normal progress message
	EventInfo EventKind = iota
	// EventWarning is a recoverable anomaly
	EventWarning
	// EventError is a failed operation
	EventError
	// EventDebug is protocol detail such as register traffic
	EventDebug
)

func (k EventKind) String() string {
	switch k {
	case EventInfo:
		return "info"
	case EventWarning:
		return "warning"
	case EventError:
		return "error"
	case EventDebug:
		return "debug"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a structured message emitted by the reader and session layers
type Event struct {
	Time    time.Time
	Err     error
	Op      string
	Message string
	Kind    EventKind
}

func (e Event) String() string {
	s := fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Message)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// EventSink receives reader events. Implementations must not call back into
// the reader that emitted the event.
type EventSink interface {
	HandleEvent(Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(Event)

// HandleEvent implements EventSink
func (f EventSinkFunc) HandleEvent(e Event) {
	f(e)
}

// DebugSink forwards events to Debugf
type DebugSink struct{}

// HandleEvent implements EventSink
func (DebugSink) HandleEvent(e Event) {
	Debugln(e.String())
}

// MultiSink fans events out to several sinks
type MultiSink []EventSink

// HandleEvent implements EventSink
func (m MultiSink) HandleEvent(e Event) {
	for _, s := range m {
		if s != nil {
			s.HandleEvent(e)
		}
	}
}

// Emit sends an event to sink; a nil sink drops it
func Emit(sink EventSink, kind EventKind, op string, err error, format string, args ...any) {
	if sink == nil {
		return
	}
	sink.HandleEvent(Event{
		Time:    time.Now(),
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	})
}

