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
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/config"
	"github.com/ZaparooProject/go-mfrc522/polling"
	"github.com/ZaparooProject/go-mfrc522/tagops"
)

var errUsage = errors.New("usage")

type command struct {
	run  func(ctx context.Context, e *env, args []string) error
	name string
}

var commands = []command{
	{name: "info", run: runInfo},
	{name: "uid", run: runUID},
	{name: "read", run: runRead},
	{name: "dump", run: runDump},
	{name: "write", run: runWrite},
	{name: "trailer", run: runTrailer},
	{name: "ndef", run: runNDEF},
	{name: "watch", run: runWatch},
	{name: "stress", run: runStress},
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// env is what every command gets to work with
type env struct {
	reader    *mfrc522.Reader
	out       io.Writer
	settings  *config.Config
	reopen    polling.ReopenFunc
	reportDir string
	wait      time.Duration
	method    mfrc522.AuthMethod
	key       mfrc522.Key
}

func (e *env) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(e.out, format, args...)
}

// session waits for a card and returns it selected, with the configured
// credentials loaded
func (e *env) session(ctx context.Context) (*polling.Card, *tagops.Session, error) {
	waitCtx := ctx
	if e.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.wait)
		defer cancel()
	}

	card, err := polling.WaitForCard(waitCtx, e.reader, e.settings.PollingConfig())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil, fmt.Errorf("no card within %s", e.wait)
		}
		return nil, nil, err
	}

	session := tagops.New(e.reader, tagops.WithAuth(e.method, e.key))
	if err := session.SetTag(ctx, card.UID); err != nil {
		return nil, nil, err
	}
	return card, session, nil
}

func runInfo(_ context.Context, e *env, _ []string) error {
	version := e.reader.Version()
	e.printf("Chip: MFRC522 %s (0x%02X)\n", version, version.Raw)
	if version.Suspicious() {
		e.printf("Warning: the version register looks wrong, check the wiring\n")
	}
	e.printf("Transport: %s\n", e.reader.TransportType())
	gain, err := e.reader.AntennaGain()
	if err != nil {
		return fmt.Errorf("failed to read antenna gain: %w", err)
	}
	e.printf("Antenna gain: %d\n", gain)
	return nil
}

func runUID(ctx context.Context, e *env, _ []string) error {
	card, session, err := e.session(ctx)
	if err != nil {
		return err
	}
	e.printf("UID: %s\nATQA: %02X%02X\nSAK: 0x%02X\n", card.UID, card.ATQA[0], card.ATQA[1], session.SAK())
	return nil
}

func runRead(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: read takes one block reference", errUsage)
	}
	sector, block, whole, err := parseBlockRef(args[0])
	if err != nil {
		return err
	}

	_, session, err := e.session(ctx)
	if err != nil {
		return err
	}

	if whole {
		return e.printResults(session.Dump(ctx, 1, sector))
	}
	addr := tagops.BlockAddress(sector, block)
	data, err := session.ReadBlock(ctx, addr)
	if err != nil {
		return err
	}
	e.printf("%s\n", formatBlock(addr, data))
	return nil
}

func runDump(ctx context.Context, e *env, args []string) error {
	sectors, err := parseCount(args, 0, tagops.TotalSectors, 1, tagops.TotalSectors)
	if err != nil {
		return err
	}
	start, err := parseCount(args, 1, 0, 0, tagops.TotalSectors-1)
	if err != nil {
		return err
	}
	if start+sectors > tagops.TotalSectors {
		sectors = tagops.TotalSectors - start
	}

	_, session, err := e.session(ctx)
	if err != nil {
		return err
	}
	return e.printResults(session.Dump(ctx, sectors, start))
}

// printResults prints a dump and fails only when nothing could be read
func (e *env) printResults(results []tagops.BlockResult) error {
	read := 0
	for _, r := range results {
		if r.OK() {
			read++
			e.printf("%s\n", formatBlock(r.Address, r.Data))
			continue
		}
		e.printf("%s\n", r)
	}
	if read == 0 && len(results) > 0 {
		return fmt.Errorf("none of %d blocks could be read", len(results))
	}
	return nil
}

func runWrite(ctx context.Context, e *env, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: write takes a block reference and 32 hex digits", errUsage)
	}
	sector, block, whole, err := parseBlockRef(args[0])
	if err != nil {
		return err
	}
	if whole {
		return fmt.Errorf("%w: write needs a single block such as S1B0", errUsage)
	}
	data, err := parseBlockData(args[1])
	if err != nil {
		return err
	}

	_, session, err := e.session(ctx)
	if err != nil {
		return err
	}
	addr := tagops.BlockAddress(sector, block)
	if err := session.WriteBlock(ctx, addr, data); err != nil {
		return err
	}
	e.printf("Wrote %s\n", tagops.SectorString(addr))
	return nil
}

func runTrailer(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("trailer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	keyA := fs.String("key-a", "", "New key A")
	keyB := fs.String("key-b", "", "New key B")
	access := fs.String("access", "", "Access conditions, e.g. \"000 000 000 001\"")
	user := fs.String("user", "", "General purpose byte in hex")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: trailer takes one sector number", errUsage)
	}
	sector, err := parseCount(fs.Args(), 0, 0, 0, tagops.TotalSectors-1)
	if err != nil {
		return err
	}

	trailer, err := buildTrailer(*keyA, *keyB, *access, *user)
	if err != nil {
		return err
	}

	_, session, err := e.session(ctx)
	if err != nil {
		return err
	}
	if err := session.WriteTrailer(ctx, sector, trailer); err != nil {
		return err
	}
	e.printf("Updated trailer of sector %d\n", sector)
	if trailer.KeyA != nil && *trailer.KeyA != e.key && e.method == mfrc522.AuthA {
		e.printf("Key A changed: use -key %X from now on\n", trailer.KeyA[:])
	}
	return nil
}

func buildTrailer(keyA, keyB, access, user string) (tagops.Trailer, error) {
	var t tagops.Trailer
	if keyA != "" {
		k, err := mfrc522.ParseKey(keyA)
		if err != nil {
			return t, fmt.Errorf("%w: -key-a: %w", errUsage, err)
		}
		t.KeyA = &k
	}
	if keyB != "" {
		k, err := mfrc522.ParseKey(keyB)
		if err != nil {
			return t, fmt.Errorf("%w: -key-b: %w", errUsage, err)
		}
		t.KeyB = &k
	}
	if access != "" {
		conditions, err := tagops.ParseAccessConditions(access)
		if err != nil {
			return t, fmt.Errorf("%w: -access: %w", errUsage, err)
		}
		bits := conditions.Encode()
		t.Access = &bits
	}
	if user != "" {
		b, err := parseHexByte(user)
		if err != nil {
			return t, err
		}
		t.User = &b
	}
	if t.KeyA == nil && t.KeyB == nil && t.Access == nil && t.User == nil {
		return t, fmt.Errorf("%w: trailer needs at least one of -key-a, -key-b, -access or -user", errUsage)
	}
	return t, nil
}

func runNDEF(ctx context.Context, e *env, _ []string) error {
	_, session, err := e.session(ctx)
	if err != nil {
		return err
	}
	msg, err := session.ReadNDEF(ctx)
	if err != nil {
		return err
	}
	e.printf("%s\n", msg)
	return nil
}

func runWatch(ctx context.Context, e *env, _ []string) error {
	recoverer := polling.NewDefaultRecoverer(e.reader, e.reopen, 0, 0)
	monitor := polling.NewMonitor(e.reader, e.settings.PollingConfig(), polling.WithRecoverer(recoverer))
	monitor.SetOnCard(func(ctx context.Context, card *polling.Card) error {
		// selecting lets the monitor halt the card afterwards
		sak, err := monitor.Reader().SelectTag(ctx, card.UID)
		if err != nil {
			e.printf("%s  %s select failed: %v\n", card.DetectedAt.Format(time.TimeOnly), card, err)
			return nil
		}
		e.printf("%s  %s SAK 0x%02X\n", card.DetectedAt.Format(time.TimeOnly), card, sak)
		return nil
	})
	monitor.SetOnError(func(err error) {
		mfrc522.Debugf("watch: %v", err)
	})

	e.printf("Waiting for cards (Ctrl+C to stop)...\n")
	err := monitor.Run(ctx)

	// recovery may have replaced the reader the caller closes
	if current := monitor.Reader(); current != nil && current != e.reader {
		_ = current.Close()
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}
