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

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/tagops"
)

// StressResult summarises one stress run
type StressResult struct {
	UID       string
	CrashFile string
	Duration  time.Duration
	Sector    int
	Rounds    int
	Passed    int
	Failed    int
}

// CrashReport holds everything needed to debug a failed round
type CrashReport struct {
	Timestamp     time.Time  `json:"timestamp"`
	TagUID        string     `json:"tag_uid"`
	Operation     string     `json:"operation"`
	Block         string     `json:"block"`
	Error         string     `json:"error"`
	ExpectedHex   string     `json:"expected_hex,omitempty"`
	ActualHex     string     `json:"actual_hex,omitempty"`
	RawSectorDump []string   `json:"raw_sector_dump,omitempty"`
	OperationLog  []LogEntry `json:"operation_log"`
	Round         int        `json:"round"`
}

// LogEntry is one card operation of a stress run
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Block     string    `json:"block"`
	DataHex   string    `json:"data_hex,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

// stressFailure describes the operation that ended a run
type stressFailure struct {
	err       error
	operation string
	expected  []byte
	actual    []byte
	round     int
	block     byte
}

type stressRun struct {
	started  time.Time
	session  *tagops.Session
	original map[byte][]byte
	log      []LogEntry
	blocks   []byte
	uid      mfrc522.UID
	sector   int
}

func runStress(ctx context.Context, e *env, args []string) error {
	rounds, err := parseCount(args, 0, 10, 1, 10000)
	if err != nil {
		return err
	}
	sector, err := parseCount(args, 1, 1, 0, tagops.TotalSectors-1)
	if err != nil {
		return err
	}

	e.printf("================================================================================\n")
	e.printf("                       MFRC522 MIFARE Classic Stress Test\n")
	e.printf("================================================================================\n")
	e.printf("Sector %d, %d rounds of write/read/verify. Waiting for card...\n", sector, rounds)

	card, session, err := e.session(ctx)
	if err != nil {
		return err
	}
	e.printf("Card %s\n", card)

	run := newStressRun(session, card.UID, sector)
	result, failure := run.execute(ctx, e, rounds)
	if failure != nil && ctx.Err() == nil {
		e.printf("\n  [!] FAILURE in round %d, %s of %s: %v\n",
			failure.round, failure.operation, tagops.SectorString(failure.block), failure.err)
		report := run.crashReport(context.WithoutCancel(ctx), failure)
		filename, writeErr := writeCrashReport(e.reportDir, report)
		if writeErr != nil {
			e.printf("  [!] Failed to write crash report: %v\n", writeErr)
		} else {
			e.printf("  Crash report: %s\n", filename)
			result.CrashFile = filename
		}
	}
	run.restore(context.WithoutCancel(ctx), e)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	printStressSummary(e, result)
	if failure != nil {
		return fmt.Errorf("stress test failed in round %d: %w", failure.round, failure.err)
	}
	return nil
}

func newStressRun(session *tagops.Session, uid mfrc522.UID, sector int) *stressRun {
	run := &stressRun{
		started:  time.Now(),
		session:  session,
		uid:      uid,
		sector:   sector,
		original: make(map[byte][]byte),
		log:      make([]LogEntry, 0, 32),
	}
	for b := range tagops.BlocksPerSector - 1 {
		addr := tagops.BlockAddress(sector, b)
		if addr == 0 {
			continue
		}
		run.blocks = append(run.blocks, addr)
	}
	return run
}

// record appends one operation to the run log
func (r *stressRun) record(operation string, block byte, data []byte, err error) {
	entry := LogEntry{
		Timestamp: time.Now(),
		Operation: operation,
		Block:     tagops.SectorString(block),
		Success:   err == nil,
	}
	if len(data) > 0 {
		entry.DataHex = formatHexString(data)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.log = append(r.log, entry)
}

func (r *stressRun) execute(ctx context.Context, e *env, rounds int) (*StressResult, *stressFailure) {
	result := &StressResult{UID: r.uid.String(), Sector: r.sector, Rounds: rounds}
	defer func() { result.Duration = time.Since(r.started) }()

	for _, addr := range r.blocks {
		data, err := r.session.ReadBlock(ctx, addr)
		r.record("backup", addr, data, err)
		if err != nil {
			result.Failed++
			return result, &stressFailure{operation: "backup", block: addr, err: err}
		}
		r.original[addr] = data
	}

	for round := 1; round <= rounds; round++ {
		e.printf("  [round %d] ", round)
		if failure := r.round(ctx, round); failure != nil {
			e.printf("FAIL\n")
			result.Failed++
			return result, failure
		}
		e.printf("OK\n")
		result.Passed++
	}
	return result, nil
}

// round writes random data to every block of the sector and reads it back
func (r *stressRun) round(ctx context.Context, round int) *stressFailure {
	for _, addr := range r.blocks {
		want := make([]byte, mfrc522.BlockSize)
		_, _ = rand.Read(want)

		err := r.session.WriteBlock(ctx, addr, want)
		r.record("write", addr, want, err)
		if err != nil {
			return &stressFailure{round: round, operation: "write", block: addr, err: err, expected: want}
		}

		got, err := r.session.ReadBlock(ctx, addr)
		r.record("read", addr, got, err)
		if err != nil {
			return &stressFailure{round: round, operation: "read", block: addr, err: err, expected: want}
		}
		if !bytes.Equal(want, got) {
			err := fmt.Errorf("%s read back different data", tagops.SectorString(addr))
			r.record("verify", addr, got, err)
			return &stressFailure{
				round: round, operation: "verify", block: addr, err: err,
				expected: want, actual: got,
			}
		}
	}
	return nil
}

// restore writes back whatever the backup managed to read
func (r *stressRun) restore(ctx context.Context, e *env) {
	for _, addr := range r.blocks {
		data, ok := r.original[addr]
		if !ok {
			continue
		}
		err := r.session.WriteBlock(ctx, addr, data)
		r.record("restore", addr, data, err)
		if err != nil {
			e.printf("  [!] Failed to restore %s: %v\n", tagops.SectorString(addr), err)
		}
	}
}

func (r *stressRun) crashReport(ctx context.Context, failure *stressFailure) *CrashReport {
	report := &CrashReport{
		Timestamp:     time.Now(),
		TagUID:        r.uid.String(),
		Operation:     failure.operation,
		Block:         tagops.SectorString(failure.block),
		Round:         failure.round,
		Error:         failure.err.Error(),
		OperationLog:  r.log,
		RawSectorDump: formatHexDump(r.session.Dump(ctx, 1, r.sector)),
	}
	if len(failure.expected) > 0 {
		report.ExpectedHex = formatHexString(failure.expected)
	}
	if len(failure.actual) > 0 {
		report.ActualHex = formatHexString(failure.actual)
	}
	return report
}

func writeCrashReport(dir string, report *CrashReport) (string, error) {
	uidSafe := strings.ReplaceAll(report.TagUID, ":", "")
	timestamp := report.Timestamp.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("stress_test_crash_%s_%s.json", uidSafe, timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal crash report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write crash report: %w", err)
	}
	return filename, nil
}

func formatHexString(data []byte) string {
	return fmt.Sprintf("% X", data)
}

func formatHexDump(results []tagops.BlockResult) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, r.String())
	}
	return lines
}

func printStressSummary(e *env, result *StressResult) {
	status := "PASS"
	if result.Failed > 0 {
		status = "FAIL"
	}
	e.printf("\n================================================================================\n")
	e.printf("[%s] %s sector %d - %d/%d rounds passed - %s\n",
		status, result.UID, result.Sector, result.Passed, result.Rounds,
		result.Duration.Round(100*time.Millisecond))
	if result.CrashFile != "" {
		e.printf("Crash report written: %s\n", result.CrashFile)
	}
	e.printf("================================================================================\n")
}
