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

// Command rc522 reads and writes MIFARE Classic cards through an MFRC522.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	_ "github.com/ZaparooProject/go-mfrc522/detection/i2c"
	_ "github.com/ZaparooProject/go-mfrc522/detection/uart"
	"github.com/ZaparooProject/go-mfrc522/internal/config"
	"github.com/ZaparooProject/go-mfrc522/transport/i2c"
	"github.com/ZaparooProject/go-mfrc522/transport/spi"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
	"golang.org/x/term"
)

const usageText = `usage: rc522 [flags] <command> [args]

commands:
  info                          chip version and antenna gain
  uid                           wait for a card and print its UID
  read S<s>[B<b>]               read one block or a whole sector
  dump [sectors] [start]        read sectors, skipping unreadable blocks
  write S<s>B<b> <32 hex>       write one data block
  trailer <sector> [flags]      rewrite a sector trailer (-key-a, -key-b, -access, -user)
  ndef                          decode the NDEF message of an NFC Forum formatted card
  watch                         print every card that enters the field
  stress [rounds] [sector]      write/verify random data and report failures

flags:
`

type options struct {
	set        map[string]bool
	configPath string
	device     string
	transport  string
	key        string
	method     string
	debugLog   string
	baud       int
	wait       time.Duration
	keyPrompt  bool
	debug      bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("rc522", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.device, "device", "", "Device path (auto-detect if empty)")
	fs.StringVar(&opts.transport, "transport", config.TransportUART, "Transport: uart, i2c or spi")
	fs.IntVar(&opts.baud, "baud", uart.DefaultBaudRate, "UART baud rate")
	fs.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&opts.key, "key", "", "Sector key as 12 hex digits")
	fs.BoolVar(&opts.keyPrompt, "key-prompt", false, "Read the sector key from the terminal without echo")
	fs.StringVar(&opts.method, "method", "", "Authentication key: A or B")
	fs.DurationVar(&opts.wait, "wait", 0, "Give up waiting for a card after this long (0 waits forever)")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug output")
	fs.StringVar(&opts.debugLog, "debug-log", "", "Write a debug session log into this directory")
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, fs.Args(), nil
}

// loadSettings reads the config file, then lets explicitly set flags win
func loadSettings(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.set["device"] {
		cfg.Reader.Device = opts.device
	}
	if opts.set["transport"] {
		cfg.Reader.Transport = opts.transport
	}
	if opts.set["baud"] {
		cfg.Reader.Baud = opts.baud
	}
	if opts.set["method"] {
		cfg.Keys.Method = opts.method
	}
	if opts.set["key"] {
		cfg.Keys.Key = opts.key
		cfg.Keys.KeyFile = ""
	}
	if opts.debug {
		cfg.Debug.Enabled = true
	}
	if opts.debugLog != "" {
		cfg.Debug.LogDir = opts.debugLog
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// promptKey reads a key from the terminal without echo
func promptKey(in *os.File, out io.Writer) (mfrc522.Key, error) {
	fd := int(in.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return mfrc522.Key{}, errors.New("-key-prompt needs an interactive terminal")
	}
	_, _ = fmt.Fprint(out, "Sector key (12 hex digits): ")
	raw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return mfrc522.Key{}, fmt.Errorf("failed to read key: %w", err)
	}
	return mfrc522.ParseKey(string(raw))
}

// openTransport opens path on the configured bus
func openTransport(kind, path string, baud int) (mfrc522.Transport, error) {
	switch strings.ToLower(kind) {
	case config.TransportI2C:
		transport, err := i2c.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport for %s: %w", path, err)
		}
		return transport, nil
	case config.TransportSPI:
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	default:
		if baud <= 0 {
			baud = uart.DefaultBaudRate
		}
		transport, err := uart.NewWithBaud(path, baud)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
		}
		return transport, nil
	}
}

func connect(ctx context.Context, cfg *config.Config) (*mfrc522.Reader, error) {
	connectOpts := []mfrc522.ConnectOption{
		mfrc522.WithReaderOptions(cfg.ReaderOptions()...),
	}

	if cfg.Reader.Device == "" {
		mfrc522.Debugf("auto-detecting MFRC522 devices")
		connectOpts = append(connectOpts,
			mfrc522.WithAutoDetection(),
			mfrc522.WithTransportFromDeviceFactory(func(device detection.DeviceInfo) (mfrc522.Transport, error) {
				return openTransport(device.Transport, device.Path, cfg.Reader.Baud)
			}))
	} else {
		connectOpts = append(connectOpts,
			mfrc522.WithTransportFactory(func(path string) (mfrc522.Transport, error) {
				return openTransport(cfg.Reader.Transport, path, cfg.Reader.Baud)
			}))
	}

	reader, err := mfrc522.ConnectDevice(ctx, cfg.Reader.Device, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MFRC522: %w", err)
	}
	return reader, nil
}

func run(ctx context.Context, opts *options, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := lookupCommand(args[0])
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	cfg, err := loadSettings(opts)
	if err != nil {
		return err
	}

	if cfg.Debug.Enabled {
		mfrc522.SetDebugEnabled(true)
	}
	if cfg.Debug.LogDir != "" {
		logPath, err := mfrc522.InitSessionLog(cfg.Debug.LogDir)
		if err != nil {
			return fmt.Errorf("failed to open debug log: %w", err)
		}
		defer func() { _ = mfrc522.CloseSessionLog() }()
		_, _ = fmt.Fprintf(os.Stderr, "Debug log: %s\n", logPath)
	}

	method, key, err := cfg.Auth()
	if err != nil {
		return err
	}
	if opts.keyPrompt {
		if key, err = promptKey(os.Stdin, os.Stderr); err != nil {
			return err
		}
	}

	reader, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close reader: %v\n", err)
		}
	}()

	e := &env{
		reader:    reader,
		out:       stdout,
		settings:  cfg,
		method:    method,
		key:       key,
		wait:      opts.wait,
		reportDir: ".",
		reopen: func(ctx context.Context) (*mfrc522.Reader, error) {
			return connect(ctx, cfg)
		},
	}
	return cmd.run(ctx, e, args[1:])
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	opts, rest, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, rest, os.Stdout); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return 0
		case errors.Is(err, errUsage):
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n\n%s", err, usageText)
			return 2
		default:
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}
