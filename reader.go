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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// ReaderConfig contains configuration options for the Reader
type ReaderConfig struct {
	// Sink receives protocol events; DebugSink when nil
	Sink EventSink
	// Timeout is the transport read timeout applied at construction (0 keeps the transport's)
	Timeout time.Duration
	// IRQPollLimit bounds the interrupt poll loop of a single command
	IRQPollLimit int
	// AntennaGain is the RxGain field written at init (0-7), nil keeps the chip default
	AntennaGain *byte
}

// DefaultReaderConfig returns default reader configuration
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{
		Sink:         DebugSink{},
		IRQPollLimit: 2000,
	}
}

// Option configures a Reader at construction
type Option func(*ReaderConfig) error

// WithEventSink routes protocol events to sink
func WithEventSink(sink EventSink) Option {
	return func(c *ReaderConfig) error {
		c.Sink = sink
		return nil
	}
}

// WithTimeout sets the transport read timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *ReaderConfig) error {
		if timeout < 0 {
			return fmt.Errorf("%w: negative timeout %v", ErrInvalidParameter, timeout)
		}
		c.Timeout = timeout
		return nil
	}
}

// WithIRQPollLimit bounds how many interrupt polls a command may take
func WithIRQPollLimit(limit int) Option {
	return func(c *ReaderConfig) error {
		if limit < 1 {
			return fmt.Errorf("%w: IRQ poll limit must be at least 1, got %d", ErrInvalidParameter, limit)
		}
		c.IRQPollLimit = limit
		return nil
	}
}

// WithAntennaGain sets the receiver gain (0-7) during initialization
func WithAntennaGain(gain byte) Option {
	return func(c *ReaderConfig) error {
		if gain > 7 {
			return fmt.Errorf("%w: antenna gain must be 0-7, got %d", ErrInvalidParameter, gain)
		}
		c.AntennaGain = &gain
		return nil
	}
}

// ReaderState is the card-protocol state of a Reader
type ReaderState int

const (
	StateUninitialized ReaderState = iota
	StateReady
	StateSelected
	StateAuthenticated
)

func (s ReaderState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateSelected:
		return "selected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("ReaderState(%d)", int(s))
	}
}

// Reader represents one MFRC522 chip connection.
//
// Every exported method holds the reader lock for its whole duration, so a
// Reader may be shared between goroutines; card transactions are still
// sequential. The transport is owned exclusively by the Reader.
type Reader struct {
	transport     Transport
	config        *ReaderConfig
	sink          EventSink
	version       ChipVersion
	mu            syncutil.Mutex
	selected      UID
	hasSelected   bool
	connected     bool
	authenticated bool
}

// New initializes the chip behind transport and returns a ready Reader.
// On error the transport is left open and remains the caller's to close.
func New(transport Transport, opts ...Option) (*Reader, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	config := DefaultReaderConfig()
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	r := &Reader{
		transport: transport,
		config:    config,
		sink:      config.Sink,
	}

	if config.Timeout > 0 {
		if err := transport.SetTimeout(config.Timeout); err != nil {
			return nil, fmt.Errorf("failed to set transport timeout: %w", err)
		}
	}

	if err := r.initialize(); err != nil {
		return nil, err
	}
	return r, nil
}

// initialize runs reset, version check and analog setup
func (r *Reader) initialize() error {
	if err := r.reset(); err != nil {
		Emit(r.sink, EventError, "init", err, "MFRC522 does not answer")
		return fmt.Errorf("chip reset failed: %w", err)
	}

	raw, err := r.readRegister(RegVersion)
	if err != nil {
		Emit(r.sink, EventError, "init", err, "version read failed")
		return fmt.Errorf("chip version read failed: %w", err)
	}
	r.version = DecodeVersion(raw)
	switch {
	case r.version.Suspicious():
		Emit(r.sink, EventWarning, "init", nil, "possible communication problems (version 0x%02X), trying to continue", raw)
	case r.version.Known():
		Emit(r.sink, EventInfo, "init", nil, "found MFRC522 %s, setting up", r.version)
	default:
		Emit(r.sink, EventWarning, "init", nil, "found unknown MFRC522 (0x%02X), trying to continue", raw)
	}

	setup := []struct {
		address byte
		value   byte
	}{
		{RegTMode, 0x8D},      // timer starts after transmission, prescaler high bits
		{RegTPrescaler, 0x3E}, // ~30us timer tick
		{RegTReloadL, 30},
		{RegTReloadH, 0},
		{RegTxASK, 0x40}, // force 100% ASK
		{RegMode, 0x3D},  // CRC preset 0x6363
	}
	for _, s := range setup {
		if err := r.writeRegister(s.address, s.value); err != nil {
			return fmt.Errorf("chip setup failed: %w", err)
		}
	}

	if r.config.AntennaGain != nil {
		if err := r.setAntennaGain(*r.config.AntennaGain); err != nil {
			return fmt.Errorf("chip setup failed: %w", err)
		}
	}

	if err := r.setAntenna(true); err != nil {
		return fmt.Errorf("antenna on failed: %w", err)
	}

	r.connected = true
	r.authenticated = false
	r.hasSelected = false
	return nil
}

// Reinitialize resets the chip and repeats the setup sequence.
// Used to recover from a stuck FIFO or an aborted command.
func (r *Reader) Reinitialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	return r.initialize()
}

// Transport returns the underlying transport
func (r *Reader) Transport() Transport {
	return r.transport
}

// TransportType reports the bus type when the transport exposes it
func (r *Reader) TransportType() TransportType {
	if typed, ok := r.transport.(TypedTransport); ok {
		return typed.Type()
	}
	return ""
}

// Version returns the chip version read during initialization
func (r *Reader) Version() ChipVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Connected reports whether initialization succeeded and Close was not called
func (r *Reader) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Authenticated reports whether a Crypto1 session is active on the chip
func (r *Reader) Authenticated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authenticated
}

// SelectedUID returns the UID of the last successfully selected card
func (r *Reader) SelectedUID() (UID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected, r.hasSelected
}

// State returns the current protocol state
func (r *Reader) State() ReaderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case !r.connected:
		return StateUninitialized
	case r.authenticated:
		return StateAuthenticated
	case r.hasSelected:
		return StateSelected
	default:
		return StateReady
	}
}

// SetTimeout sets the transport read timeout
func (r *Reader) SetTimeout(timeout time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Timeout = timeout
	if err := r.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// Close stops any active Crypto1 session and closes the transport
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.authenticated {
		if err := r.stopCrypto(); err != nil {
			Emit(r.sink, EventWarning, "close", err, "failed to stop crypto")
		}
	}
	r.connected = false
	r.hasSelected = false
	if err := r.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

func (r *Reader) ensureConnected() error {
	if !r.connected {
		return ErrNotConnected
	}
	return nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory creates a transport from a detected device
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)
	readerOptions          []Option
	connectionRetries      int
	autoDetect             bool
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithReaderOptions adds reader-level options
func WithReaderOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.readerOptions = append(c.readerOptions, opts...)
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom detector for auto-detection
func WithDeviceDetector(
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{connectionRetries: 3}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}
	return config, nil
}

// ConnectDevice opens a transport for path (or the first detected device) and
// initializes a Reader on it. Each attempt opens a fresh transport; a failed
// attempt closes the transport it opened.
//
// Example usage:
//
//	reader, err := mfrc522.ConnectDevice("/dev/ttyUSB0",
//		mfrc522.WithTransportFactory(newUARTTransport))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Reader, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, err
	}

	open := func() (Transport, error) {
		if config.autoDetect || path == "" {
			return createAutoDetectedTransport(ctx, config)
		}
		return createManualTransport(path, config.transportFactory)
	}

	retryConfig := &RetryConfig{
		MaxAttempts:       config.connectionRetries,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      10 * time.Second,
		ShouldRetry: func(err error) bool {
			return IsRetryable(err) && !IsFatal(err)
		},
	}
	if config.autoDetect {
		retryConfig.MaxAttempts = 1
	}

	var reader *Reader
	err = RetryWithConfig(ctx, retryConfig, func() error {
		transport, openErr := open()
		if openErr != nil {
			return openErr
		}
		r, newErr := New(transport, config.readerOptions...)
		if newErr != nil {
			_ = transport.Close()
			return newErr
		}
		reader = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect reader: %w", err)
	}
	return reader, nil
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

// createAutoDetectedTransport opens the first detected device
func createAutoDetectedTransport(ctx context.Context, config *connectConfig) (Transport, error) {
	if config.transportDeviceFactory == nil {
		return nil, errors.New("transport device factory not provided")
	}

	opts := detection.DefaultOptions()
	detector := config.deviceDetector
	if detector == nil {
		detector = detection.DetectAll
	}

	devices, err := detector(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	return config.transportDeviceFactory(devices[0])
}
