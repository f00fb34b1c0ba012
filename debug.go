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
	"os"
	"time"
)

// debugEnabled controls whether debug logging reaches the console
var debugEnabled = false

func init() {
	if os.Getenv("MFRC522_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled = true
	}
}

// Debugf prints debug information.
// Always writes to session log file (if initialized) with timestamp.
// Only prints to console when debug mode is enabled.
func Debugf(format string, args ...any) {
	message := fmt.Sprintf(format, args...)

	if w := sessionWriter(); w != nil {
		timestamp := time.Now().Format("15:04:05.000")
		_, _ = fmt.Fprintf(w, "%s DEBUG: %s\n", timestamp, message)
	}

	if debugEnabled {
		_, _ = fmt.Fprintf(os.Stderr, "DEBUG: %s\n", message)
	}
}

// Debugln prints debug information, formatting operands like fmt.Sprint
func Debugln(args ...any) {
	Debugf("%s", fmt.Sprint(args...))
}

// SetDebugEnabled allows programmatic control of debug logging
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugEnabled reports whether console debug output is on
func DebugEnabled() bool {
	return debugEnabled
}
