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

// Package tagops sequences reader operations into MIFARE Classic card
// sessions. A Session remembers the selected UID and the configured key,
// and skips re-authentication while consecutive operations target the same
// block with the same credentials.
package tagops

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522"
)

// CardReader is the part of *mfrc522.Reader a Session drives
type CardReader interface {
	SelectTag(ctx context.Context, uid mfrc522.UID) (byte, error)
	Authenticate(ctx context.Context, method mfrc522.AuthMethod, block byte, key mfrc522.Key, uid mfrc522.UID) error
	StopCrypto() error
	Authenticated() bool
	ReadBlock(ctx context.Context, block byte) ([]byte, error)
	WriteBlock(ctx context.Context, block byte, data []byte) error
}

var _ CardReader = (*mfrc522.Reader)(nil)

// authTuple identifies one successful authentication
type authTuple struct {
	uid    mfrc522.UID
	key    mfrc522.Key
	method mfrc522.AuthMethod
	block  byte
}

// Session tracks the selected card and credentials for one reader.
// It is not safe for concurrent use.
type Session struct {
	reader CardReader
	sink   mfrc522.EventSink
	last   authTuple
	uid    mfrc522.UID
	key    mfrc522.Key
	sak    byte
	method mfrc522.AuthMethod

	hasUID  bool
	hasAuth bool
	hasLast bool
}

// Option configures a Session
type Option func(*Session)

// WithEventSink routes session events to sink
func WithEventSink(sink mfrc522.EventSink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

// WithAuth presets the authentication method and key
func WithAuth(method mfrc522.AuthMethod, key mfrc522.Key) Option {
	return func(s *Session) {
		s.method = method
		s.key = key
		s.hasAuth = true
	}
}

// New creates a session over reader
func New(reader CardReader, opts ...Option) *Session {
	s := &Session{
		reader: reader,
		sink:   mfrc522.DebugSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UID returns the selected UID and whether one is set
func (s *Session) UID() (mfrc522.UID, bool) {
	return s.uid, s.hasUID
}

// SAK returns the select acknowledge of the current card
func (s *Session) SAK() byte {
	return s.sak
}

// Auth returns the configured method and key
func (s *Session) Auth() (mfrc522.AuthMethod, mfrc522.Key, bool) {
	return s.method, s.key, s.hasAuth
}

// Ready reports whether a tag and credentials are both set
func (s *Session) Ready() bool {
	return s.hasUID && s.hasAuth
}

// SetTag selects uid. Switching to a different card drops the previous
// card's credentials and crypto session first.
func (s *Session) SetTag(ctx context.Context, uid mfrc522.UID) error {
	if s.hasUID && s.uid != uid {
		if err := s.Deauthenticate(); err != nil {
			return err
		}
	} else if s.hasUID {
		s.hasLast = false
		if s.reader.Authenticated() {
			if err := s.reader.StopCrypto(); err != nil {
				return fmt.Errorf("set tag %s: %w", uid, err)
			}
		}
	}

	s.hasUID = false
	sak, err := s.reader.SelectTag(ctx, uid)
	if err != nil {
		mfrc522.Emit(s.sink, mfrc522.EventWarning, "tagops.select", err, "select %s failed", uid)
		return fmt.Errorf("set tag %s: %w", uid, err)
	}
	s.uid = uid
	s.sak = sak
	s.hasUID = true
	mfrc522.Emit(s.sink, mfrc522.EventDebug, "tagops.select", nil, "selected %s sak=%02X", uid, sak)
	return nil
}

// SetAuth sets the method and key used for later block operations.
// It does not talk to the card.
func (s *Session) SetAuth(method mfrc522.AuthMethod, key []byte) error {
	if !method.Valid() {
		return fmt.Errorf("%w: auth method %#02x", mfrc522.ErrInvalidParameter, byte(method))
	}
	k, err := mfrc522.KeyFromBytes(key)
	if err != nil {
		return err
	}
	s.method = method
	s.key = k
	s.hasAuth = true
	return nil
}

// Deauthenticate forgets the credentials and the cached authentication,
// stopping Crypto1 if the reader has a session open. Calling it with
// nothing authenticated is a no-op.
func (s *Session) Deauthenticate() error {
	s.method = 0
	s.key = mfrc522.Key{}
	s.hasAuth = false
	s.hasLast = false
	if !s.reader.Authenticated() {
		return nil
	}
	if err := s.reader.StopCrypto(); err != nil {
		return fmt.Errorf("deauthenticate: %w", err)
	}
	return nil
}

// EnsureAuthenticated authenticates for block unless the last successful
// authentication used the same block, method, key and UID. force always
// goes to the card.
func (s *Session) EnsureAuthenticated(ctx context.Context, block byte, force bool) error {
	if !s.hasUID {
		return mfrc522.ErrNoTagSelected
	}
	if !s.hasAuth {
		return mfrc522.ErrAuthNotConfigured
	}

	want := authTuple{uid: s.uid, key: s.key, method: s.method, block: block}
	if !force && s.hasLast && s.last == want && s.reader.Authenticated() {
		return nil
	}

	s.hasLast = false
	if err := s.reader.Authenticate(ctx, s.method, block, s.key, s.uid); err != nil {
		mfrc522.Emit(s.sink, mfrc522.EventWarning, "tagops.auth", err,
			"key %s rejected for %s", s.method, SectorString(block))
		return fmt.Errorf("authenticate %s: %w", SectorString(block), err)
	}
	s.last = want
	s.hasLast = true
	mfrc522.Emit(s.sink, mfrc522.EventDebug, "tagops.auth", nil, "authenticated %s with key %s", SectorString(block), s.method)
	return nil
}

// ReadBlock authenticates as needed and returns the block's 16 bytes
func (s *Session) ReadBlock(ctx context.Context, block byte) ([]byte, error) {
	if err := s.EnsureAuthenticated(ctx, block, false); err != nil {
		return nil, err
	}
	data, err := s.reader.ReadBlock(ctx, block)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", SectorString(block), err)
	}
	return data, nil
}

// WriteBlock authenticates as needed and writes 16 bytes to block.
// The manufacturer block is refused, as is a trailer whose access bits
// would lock the sector.
func (s *Session) WriteBlock(ctx context.Context, block byte, data []byte) error {
	if len(data) != mfrc522.BlockSize {
		return fmt.Errorf("%w: block data must be %d bytes, got %d",
			mfrc522.ErrInvalidParameter, mfrc522.BlockSize, len(data))
	}
	if block == 0 {
		return ErrManufacturerBlock
	}
	if int(block) >= TotalBlocks {
		return fmt.Errorf("%w: block %d out of range", mfrc522.ErrInvalidParameter, block)
	}
	if IsTrailer(block) && !ValidAccessBits(data[6:9]) {
		return fmt.Errorf("write %s: %w", SectorString(block), ErrInvalidAccessBits)
	}

	if err := s.EnsureAuthenticated(ctx, block, false); err != nil {
		return err
	}
	if err := s.reader.WriteBlock(ctx, block, data); err != nil {
		return fmt.Errorf("write %s: %w", SectorString(block), err)
	}
	return nil
}
