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

package tagops

import (
	"context"
	"strings"
	"testing"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMessage(t *testing.T, text string) []byte {
	t.Helper()
	rec := ndef.NewTextRecord(text, "en")
	rec.SetMB(true)
	rec.SetME(true)
	msg := &ndef.Message{Records: []*ndef.Record{rec}}
	payload, err := msg.Marshal()
	require.NoError(t, err)
	return payload
}

// loadTLV spreads data over the data blocks of sectors 1..15
func loadTLV(reader *fakeReader, data []byte) {
	for sector := 1; sector < TotalSectors && len(data) > 0; sector++ {
		for block := range 3 {
			chunk := make([]byte, mfrc522.BlockSize)
			n := copy(chunk, data)
			data = data[n:]
			reader.blocks[BlockAddress(sector, block)] = chunk
		}
	}
}

func TestFindNDEF(t *testing.T) {
	t.Parallel()

	long := make([]byte, 300)
	for i := range long {
		long[i] = byte(i)
	}

	tests := []struct {
		wantErr  error
		name     string
		buf      []byte
		want     []byte
		complete bool
	}{
		{
			name:     "short form",
			buf:      []byte{0x03, 0x03, 0xD1, 0x00, 0x00, 0xFE},
			want:     []byte{0xD1, 0x00, 0x00},
			complete: true,
		},
		{
			name:     "leading nulls and lock tlv",
			buf:      []byte{0x00, 0x00, 0x01, 0x03, 0xA0, 0x0C, 0x44, 0x03, 0x01, 0x55, 0xFE},
			want:     []byte{0x55},
			complete: true,
		},
		{
			name:     "long form",
			buf:      append([]byte{0x03, 0xFF, 0x01, 0x2C}, long...),
			want:     long,
			complete: true,
		},
		{name: "needs more data", buf: []byte{0x03, 0x10, 0xD1}},
		{name: "long length split", buf: []byte{0x03, 0xFF, 0x01}},
		{name: "terminator first", buf: []byte{0xFE, 0x00}, wantErr: ErrNoNDEF},
		{name: "empty message", buf: []byte{0x03, 0x00, 0xFE}, wantErr: ErrNoNDEF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, complete, err := findNDEF(tt.buf)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.complete, complete)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadNDEF(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	payload := textMessage(t, "hello from sector one")

	reader := newFakeReader()
	tlv := append([]byte{0x03, byte(len(payload))}, payload...)
	loadTLV(reader, append(tlv, 0xFE))
	s := readySession(t, reader)

	msg, err := s.ReadNDEF(ctx)
	require.NoError(t, err)
	require.Len(t, msg.Records, 1)
	assert.Equal(t, "T", msg.Records[0].Type())

	got, err := msg.Marshal()
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	for _, a := range reader.auths {
		assert.Equal(t, mfrc522.AuthA, a.method)
		assert.Equal(t, mfrc522.NDEFKey, a.key)
	}
	method, key, ok := s.Auth()
	assert.True(t, ok)
	assert.Equal(t, mfrc522.AuthB, method)
	assert.Equal(t, mfrc522.DefaultKey, key)
}

func TestReadNDEF_SpansSectors(t *testing.T) {
	t.Parallel()

	reader := newFakeReader()
	payload := textMessage(t, strings.Repeat("x", 120))
	tlv := append([]byte{0x03, byte(len(payload))}, payload...)
	loadTLV(reader, append(tlv, 0xFE))
	s := readySession(t, reader)

	msg, err := s.ReadNDEF(context.Background())
	require.NoError(t, err)
	require.Len(t, msg.Records, 1)
	assert.Greater(t, reader.reads, 3)
}

func TestReadNDEF_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := New(newFakeReader()).ReadNDEF(ctx)
	require.ErrorIs(t, err, mfrc522.ErrNoTagSelected)

	reader := newFakeReader()
	loadTLV(reader, []byte{0xFE})
	_, err = readySession(t, reader).ReadNDEF(ctx)
	require.ErrorIs(t, err, ErrNoNDEF)

	reader = newFakeReader()
	reader.failEvery = 2
	_, err = readySession(t, reader).ReadNDEF(ctx)
	require.ErrorIs(t, err, errNoAnswer)
}
