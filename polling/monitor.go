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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

const pauseAckTimeout = 5 * time.Second

var (
	// ErrAlreadyRunning is returned when a monitor is started twice
	ErrAlreadyRunning = errors.New("monitor already running")
	// ErrPauseTimeout indicates the poll loop did not acknowledge a pause
	ErrPauseTimeout = errors.New("timed out waiting for polling to pause")
)

// CardFunc handles a card found by a Monitor. The card has answered
// anticollision and is ready to be selected. A card selected by the
// callback is halted afterwards when Config.HaltAfterCallback is set, so it
// stays quiet until it leaves the field.
type CardFunc func(ctx context.Context, card *Card) error

// Metrics are counters collected by a Monitor
type Metrics struct {
	PollCycles      int64
	PollErrors      int64
	CardsDetected   int64
	CallbackErrors  int64
	Recoveries      int64
	LastPollLatency time.Duration
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithRecoverer lets the monitor recover from fatal errors and host sleep
func WithRecoverer(r Recoverer) MonitorOption {
	return func(m *Monitor) {
		m.recoverer = r
	}
}

// Monitor polls a reader continuously and calls OnCard once per card tap
type Monitor struct {
	reader     *mfrc522.Reader
	config     *Config
	recoverer  Recoverer
	onCard     CardFunc
	onError    func(error)
	pauseChan  chan struct{}
	resumeChan chan struct{}
	ackChan    chan struct{}
	cancel     context.CancelFunc
	runErr     error
	state      CardState
	wg         sync.WaitGroup
	stateMutex syncutil.RWMutex
	readerMu   syncutil.RWMutex
	lifecycle  syncutil.Mutex
	exclusive  syncutil.Mutex

	pollCycles      atomic.Int64
	pollErrors      atomic.Int64
	cardsDetected   atomic.Int64
	callbackErrors  atomic.Int64
	recoveries      atomic.Int64
	lastPollLatency atomic.Int64
	running         atomic.Bool
	isPaused        atomic.Bool
}

// NewMonitor creates a monitor for reader. A nil config uses DefaultConfig.
func NewMonitor(reader *mfrc522.Reader, config *Config, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		reader:     reader,
		config:     config.withDefaults(),
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
		ackChan:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetOnCard sets the card callback
func (m *Monitor) SetOnCard(fn CardFunc) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.onCard = fn
}

// SetOnError sets a callback for poll and recovery errors
func (m *Monitor) SetOnError(fn func(error)) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	m.onError = fn
}

// Reader returns the reader currently polled
func (m *Monitor) Reader() *mfrc522.Reader {
	m.readerMu.RLock()
	defer m.readerMu.RUnlock()
	return m.reader
}

// State returns a snapshot of the card state
func (m *Monitor) State() CardState {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()
	return m.state
}

// Metrics returns the current counters
func (m *Monitor) Metrics() Metrics {
	return Metrics{
		PollCycles:      m.pollCycles.Load(),
		PollErrors:      m.pollErrors.Load(),
		CardsDetected:   m.cardsDetected.Load(),
		CallbackErrors:  m.callbackErrors.Load(),
		Recoveries:      m.recoveries.Load(),
		LastPollLatency: time.Duration(m.lastPollLatency.Load()),
	}
}

// Running reports whether the poll loop is active
func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Run polls until ctx ends, a callback fails or an unrecoverable error
// occurs.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	p := newPoller(m.Reader(), m.config)
	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := m.handleContextAndPause(ctx, p); err != nil {
			return err
		}

		if err := m.executeCycle(ctx, p); err != nil {
			return err
		}

		if err := m.waitForNextPollOrPause(ctx, ticker, p); err != nil {
			return err
		}
	}
}

// Start runs the poll loop in a goroutine until Stop is called or ctx ends
func (m *Monitor) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.runErr = nil
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runErr = m.Run(runCtx)
	}()
	return nil
}

// Stop ends a loop started with Start and waits for it to exit. It returns
// the loop's error unless the loop ended because of Stop.
func (m *Monitor) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.wg.Wait()
	m.cancel = nil

	if errors.Is(m.runErr, context.Canceled) {
		return nil
	}
	return m.runErr
}

// Pause asks the poll loop to stop polling until Resume
func (m *Monitor) Pause() {
	if m.isPaused.CompareAndSwap(false, true) {
		select {
		case m.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume restarts polling after Pause
func (m *Monitor) Resume() {
	if m.isPaused.CompareAndSwap(true, false) {
		select {
		case m.resumeChan <- struct{}{}:
		default:
		}
	}
}

// pauseWithAck pauses the loop and waits until it is parked
func (m *Monitor) pauseWithAck(ctx context.Context) error {
	select {
	case <-m.ackChan:
	default:
	}

	m.Pause()

	timer := time.NewTimer(pauseAckTimeout)
	defer timer.Stop()
	select {
	case <-m.ackChan:
		return nil
	case <-ctx.Done():
		m.abandonPause()
		return ctx.Err()
	case <-timer.C:
		m.abandonPause()
		return ErrPauseTimeout
	}
}

// abandonPause withdraws an unacknowledged pause so no stale pause or
// resume signal is left for the loop
func (m *Monitor) abandonPause() {
	select {
	case <-m.pauseChan:
		// the loop never saw the request
		m.isPaused.Store(false)
		select {
		case <-m.resumeChan:
		default:
		}
	default:
		m.Resume()
	}
}

// Exclusive parks the poll loop, runs fn with the reader and resumes
// polling. Without a running loop fn is called directly.
func (m *Monitor) Exclusive(ctx context.Context, fn func(ctx context.Context, reader *mfrc522.Reader) error) error {
	m.exclusive.Lock()
	defer m.exclusive.Unlock()

	if m.running.Load() {
		if err := m.pauseWithAck(ctx); err != nil {
			return err
		}
		defer m.Resume()
	}
	return fn(ctx, m.Reader())
}

func (m *Monitor) executeCycle(ctx context.Context, p *poller) error {
	start := time.Now()
	card, err := p.cycle(ctx)
	m.pollCycles.Add(1)
	m.lastPollLatency.Store(int64(time.Since(start)))

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.pollErrors.Add(1)
		return m.handlePollingError(ctx, p, err)
	}
	if card == nil {
		m.markAbsent(time.Now())
		return nil
	}
	return m.processCard(ctx, p, card)
}

// markAbsent forgets the card once it has been silent for a full cooldown
func (m *Monitor) markAbsent(now time.Time) {
	m.stateMutex.Lock()
	defer m.stateMutex.Unlock()
	if m.state.Present && now.Sub(m.state.LastSeenTime) > m.config.Cooldown {
		m.state.TransitionToIdle()
	}
}

func (m *Monitor) handlePollingError(ctx context.Context, p *poller, err error) error {
	m.stateMutex.RLock()
	onError := m.onError
	m.stateMutex.RUnlock()
	if onError != nil {
		onError(err)
	}

	needsRecovery := errors.Is(err, ErrTooManyErrors) || mfrc522.IsFatal(err)
	if errors.Is(err, ErrSleepDetected) {
		if m.recoverer == nil {
			return nil
		}
		needsRecovery = true
	}
	if !needsRecovery {
		return nil
	}
	if m.recoverer == nil {
		return err
	}

	if rerr := m.recoverer.AttemptRecovery(ctx); rerr != nil {
		if onError != nil {
			onError(rerr)
		}
		return fmt.Errorf("recovery after %w failed: %w", err, rerr)
	}
	m.recoveries.Add(1)

	reader := m.recoverer.Reader()
	m.readerMu.Lock()
	m.reader = reader
	m.readerMu.Unlock()
	p.detector = reader
	p.rearm()
	mfrc522.Emit(m.config.Sink, mfrc522.EventInfo, "poll", err, "reader recovered")
	return nil
}

func (m *Monitor) processCard(ctx context.Context, p *poller, card *Card) error {
	now := time.Now()
	m.stateMutex.Lock()
	process := m.state.ShouldProcess(card.UID, now)
	m.state.TransitionToDetected(card.UID, now)
	if process {
		m.state.TransitionToProcessing()
	}
	onCard := m.onCard
	m.stateMutex.Unlock()

	if !process {
		return nil
	}
	m.cardsDetected.Add(1)

	var cbErr error
	if onCard != nil {
		cbErr = safeCallCallback(ctx, onCard, card)
	}

	if m.config.HaltAfterCallback {
		if err := m.Reader().Halt(ctx); err != nil {
			mfrc522.Emit(m.config.Sink, mfrc522.EventWarning, "poll", err, "halt %s", card.UID)
		}
	}

	m.stateMutex.Lock()
	m.state.TransitionToCooldown(time.Now(), m.config.Cooldown)
	m.stateMutex.Unlock()

	if cbErr != nil {
		m.callbackErrors.Add(1)
		return fmt.Errorf("callback error during polling: %w", cbErr)
	}

	err := m.sleep(ctx, m.config.Cooldown)
	p.rearm()
	return err
}

// safeCallCallback runs fn and turns a panic into an error
func safeCallCallback(ctx context.Context, fn CardFunc, card *Card) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("card callback panicked: %v", r)
		}
	}()
	return fn(ctx, card)
}

// sleep waits d while still honouring pause requests
func (m *Monitor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return nil
		case <-m.pauseChan:
			if err := m.handlePauseSignal(ctx); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// waitForNextPollOrPause waits for the next tick or handles a pause
func (m *Monitor) waitForNextPollOrPause(ctx context.Context, ticker *time.Ticker, p *poller) error {
	select {
	case <-ticker.C:
		return nil
	case <-m.pauseChan:
		err := m.handlePauseSignal(ctx)
		p.rearm()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) handleContextAndPause(ctx context.Context, p *poller) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.pauseChan:
		err := m.handlePauseSignal(ctx)
		p.rearm()
		return err
	default:
		return nil
	}
}

// handlePauseSignal acknowledges the pause and waits for Resume
func (m *Monitor) handlePauseSignal(ctx context.Context) error {
	select {
	case m.ackChan <- struct{}{}:
	default:
	}
	select {
	case <-m.resumeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
