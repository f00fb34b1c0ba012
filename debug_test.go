//nolint:paralleltest // Tests modify package-level debug state, cannot run in parallel
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
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSessionLog routes the session log into a buffer for one test
func captureSessionLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	origEnabled := debugEnabled
	sessionMu.Lock()
	origWriter := sessionLogWriter
	var buf bytes.Buffer
	sessionLogWriter = &buf
	sessionMu.Unlock()
	debugEnabled = false

	t.Cleanup(func() {
		debugEnabled = origEnabled
		sessionMu.Lock()
		sessionLogWriter = origWriter
		sessionMu.Unlock()
	})
	return &buf
}

var timestampRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3} DEBUG: `)

func TestDebugf(t *testing.T) {
	tests := []struct {
		log  func()
		name string
		want string
	}{
		{name: "format", log: func() { Debugf("register 0x%02X = %d", 0x37, 146) }, want: "register 0x37 = 146"},
		{name: "no args", log: func() { Debugf("antenna on") }, want: "antenna on"},
		{name: "println", log: func() { Debugln("uid", 4, "ok", true) }, want: "uid4oktrue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureSessionLog(t)
			tt.log()

			line := buf.String()
			assert.True(t, timestampRe.MatchString(line), "missing timestamp: %q", line)
			assert.Contains(t, line, "DEBUG: "+tt.want)
			assert.True(t, strings.HasSuffix(line, "\n"))
		})
	}
}

func TestDebugf_OneLinePerCall(t *testing.T) {
	buf := captureSessionLog(t)

	for _, msg := range []string{"reset", "version", "antenna"} {
		Debugf("%s", msg)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "reset")
	assert.Contains(t, lines[2], "antenna")
}

func TestDebugf_NoSessionLog(t *testing.T) {
	captureSessionLog(t)
	sessionMu.Lock()
	sessionLogWriter = nil
	sessionMu.Unlock()

	assert.NotPanics(t, func() {
		Debugf("dropped %d", 1)
		Debugln("dropped")
	})
}

func TestSetDebugEnabled(t *testing.T) {
	captureSessionLog(t)

	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())
	SetDebugEnabled(false)
	assert.False(t, DebugEnabled())
}

func TestDebugSink_WritesEvents(t *testing.T) {
	buf := captureSessionLog(t)

	Emit(DebugSink{}, EventWarning, "init", ErrTimeout, "version 0x%02X", 0xFF)
	assert.Contains(t, buf.String(), "[warning] init: version 0xFF: no response from chip")
}
