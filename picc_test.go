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
	"context"
	"testing"

	virt "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// activate runs REQA, anticollision and select on the card in the field
func activate(t *testing.T, reader *Reader) UID {
	t.Helper()

	ctx := context.Background()
	_, err := reader.Request(ctx, ReqIdle)
	require.NoError(t, err)
	uid, err := reader.Anticollision(ctx)
	require.NoError(t, err)
	_, err = reader.SelectTag(ctx, uid)
	require.NoError(t, err)
	return uid
}

func newCardReader(t *testing.T, opts ...Option) (*Reader, *virt.VirtualMFRC522, *virt.VirtualClassic) {
	t.Helper()

	reader, sim, _ := newSimReader(t, opts...)
	card := virt.NewVirtualClassic(virt.TestUID)
	sim.InsertCard(card)
	return reader, sim, card
}

func TestRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty field", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newSimReader(t)
		_, err := reader.Request(ctx, ReqIdle)
		require.Error(t, err)
		assert.True(t, IsNoCard(err))
		assert.True(t, IsRetryable(err))
		assert.Zero(t, sim.CommandCount(virt.CardREQA))
	})

	t.Run("card answers ATQA", func(t *testing.T) {
		t.Parallel()

		reader, sim, card := newCardReader(t)
		atqa, err := reader.Request(ctx, ReqIdle)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x04, 0x00}, atqa)
		assert.Equal(t, "ready", card.State())
		assert.Equal(t, 1, sim.CommandCount(virt.CardREQA))
	})

	t.Run("ready card ignores REQA", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		_, err := reader.Request(ctx, ReqIdle)
		require.NoError(t, err)
		_, err = reader.Request(ctx, ReqIdle)
		assert.True(t, IsNoCard(err))
	})

	t.Run("invalid mode", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newSimReader(t)
		_, err := reader.Request(ctx, 0x30)
		require.ErrorIs(t, err, ErrInvalidParameter)
		assert.True(t, IsSequencingError(err))
	})
}

func TestAnticollisionAndSelect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("select", func(t *testing.T) {
		t.Parallel()

		reader, sim, card := newCardReader(t)
		_, err := reader.Request(ctx, ReqIdle)
		require.NoError(t, err)

		uid, err := reader.Anticollision(ctx)
		require.NoError(t, err)
		assert.Equal(t, UID(virt.TestUID), uid)
		assert.Equal(t, byte(0x70), uid.Checksum())

		sak, err := reader.SelectTag(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, byte(0x08), sak)
		assert.Equal(t, "active", card.State())
		assert.Equal(t, 1, sim.CommandCount(virt.CardSelect))

		selected, ok := reader.SelectedUID()
		assert.True(t, ok)
		assert.Equal(t, uid, selected)
		assert.Equal(t, StateSelected, reader.State())
	})

	t.Run("short select answer", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newCardReader(t)
		sim.ShortSelect = true
		_, err := reader.Request(ctx, ReqIdle)
		require.NoError(t, err)
		uid, err := reader.Anticollision(ctx)
		require.NoError(t, err)

		_, err = reader.SelectTag(ctx, uid)
		require.ErrorIs(t, err, ErrSelectFailed)
		_, ok := reader.SelectedUID()
		assert.False(t, ok)
	})

	t.Run("wrong uid", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		_, err := reader.Request(ctx, ReqIdle)
		require.NoError(t, err)

		_, err = reader.SelectTag(ctx, UID(virt.TestAltUID))
		require.Error(t, err)
		assert.True(t, IsNoCard(err))
	})

	t.Run("anticollision without request", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		_, err := reader.Anticollision(ctx)
		assert.True(t, IsNoCard(err))
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("default key", func(t *testing.T) {
		t.Parallel()

		reader, sim, card := newCardReader(t)
		uid := activate(t, reader)

		require.NoError(t, reader.Authenticate(ctx, AuthA, 5, DefaultKey, uid))
		assert.True(t, reader.Authenticated())
		assert.Equal(t, StateAuthenticated, reader.State())
		assert.Equal(t, 1, card.AuthenticatedSector())
		assert.Equal(t, 1, sim.CommandCount(virt.CardAuth))

		require.NoError(t, reader.StopCrypto())
		assert.False(t, reader.Authenticated())
		assert.Equal(t, StateSelected, reader.State())
		assert.Equal(t, -1, card.AuthenticatedSector())
	})

	t.Run("key B", func(t *testing.T) {
		t.Parallel()

		reader, _, card := newCardReader(t)
		card.SetSectorKeys(2, virt.DefaultKey, [6]byte{1, 2, 3, 4, 5, 6})
		uid := activate(t, reader)

		require.NoError(t, reader.Authenticate(ctx, AuthB, 8, Key{1, 2, 3, 4, 5, 6}, uid))
		assert.Equal(t, 2, card.AuthenticatedSector())
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()

		reader, _, card := newCardReader(t)
		uid := activate(t, reader)

		err := reader.Authenticate(ctx, AuthA, 4, NDEFKey, uid)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "authenticate block 4")
		assert.False(t, reader.Authenticated())
		assert.Equal(t, "idle", card.State(), "a failed auth drops the card out of ACTIVE")
	})

	t.Run("invalid method", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newCardReader(t)
		err := reader.Authenticate(ctx, AuthMethod(0x62), 4, DefaultKey, UID(virt.TestUID))
		require.ErrorIs(t, err, ErrInvalidParameter)
		assert.Zero(t, sim.CommandCount(virt.CardAuth))
	})

	t.Run("stop crypto without session", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newSimReader(t)
		require.NoError(t, reader.StopCrypto())
		require.NoError(t, reader.StopCrypto())
	})
}

func TestReadBlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("authenticated", func(t *testing.T) {
		t.Parallel()

		reader, _, card := newCardReader(t)
		want := bytes.Repeat([]byte{0xA5}, BlockSize)
		card.SetBlock(6, want)
		uid := activate(t, reader)
		require.NoError(t, reader.Authenticate(ctx, AuthA, 6, DefaultKey, uid))

		data, err := reader.ReadBlock(ctx, 6)
		require.NoError(t, err)
		assert.Equal(t, want, data)
	})

	t.Run("manufacturer block", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		uid := activate(t, reader)
		require.NoError(t, reader.Authenticate(ctx, AuthA, 0, DefaultKey, uid))

		data, err := reader.ReadBlock(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, virt.TestUID[:], data[:4])
		assert.Equal(t, byte(0x70), data[4])
	})

	t.Run("not authenticated", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		activate(t, reader)

		_, err := reader.ReadBlock(ctx, 4)
		require.ErrorIs(t, err, ErrShortRead)
	})

	t.Run("other sector", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		uid := activate(t, reader)
		require.NoError(t, reader.Authenticate(ctx, AuthA, 4, DefaultKey, uid))

		_, err := reader.ReadBlock(ctx, 8)
		require.ErrorIs(t, err, ErrShortRead)
	})
}

func TestWriteBlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	data := []byte("0123456789abcdef")

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		reader, sim, card := newCardReader(t)
		uid := activate(t, reader)
		require.NoError(t, reader.Authenticate(ctx, AuthA, 4, DefaultKey, uid))

		require.NoError(t, reader.WriteBlock(ctx, 4, data))
		assert.Equal(t, data, card.Block(4))
		assert.Equal(t, 1, sim.CommandCount(virt.CardWrite))

		got, err := reader.ReadBlock(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("first phase NAK", func(t *testing.T) {
		t.Parallel()

		reader, sim, card := newCardReader(t)
		sim.Phase1Ack = 0x05
		uid := activate(t, reader)
		require.NoError(t, reader.Authenticate(ctx, AuthA, 4, DefaultKey, uid))

		err := reader.WriteBlock(ctx, 4, data)
		require.ErrorIs(t, err, ErrWriteRejected)
		assert.Contains(t, err.Error(), "command")
		assert.Equal(t, make([]byte, BlockSize), card.Block(4))
	})

	t.Run("second phase NAK", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newCardReader(t)
		sim.Phase2Ack = 0x01
		uid := activate(t, reader)
		require.NoError(t, reader.Authenticate(ctx, AuthA, 4, DefaultKey, uid))

		err := reader.WriteBlock(ctx, 4, data)
		require.ErrorIs(t, err, ErrWriteRejected)
		assert.Contains(t, err.Error(), "data")
	})

	t.Run("not authenticated", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		activate(t, reader)
		require.ErrorIs(t, reader.WriteBlock(ctx, 4, data), ErrWriteRejected)
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newCardReader(t)
		require.ErrorIs(t, reader.WriteBlock(ctx, 4, data[:15]), ErrInvalidParameter)
		assert.Zero(t, sim.CommandCount(virt.CardWrite))
	})
}

func TestIsACK(t *testing.T) {
	t.Parallel()

	tests := []struct {
		resp *Response
		name string
		want bool
	}{
		{name: "ack", resp: &Response{Bits: 4, Data: []byte{0x0A}}, want: true},
		{name: "ack high nibble ignored", resp: &Response{Bits: 4, Data: []byte{0xFA}}, want: true},
		{name: "nak", resp: &Response{Bits: 4, Data: []byte{0x05}}, want: false},
		{name: "full byte", resp: &Response{Bits: 8, Data: []byte{0x0A}}, want: false},
		{name: "empty", resp: &Response{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isACK(tt.resp))
		})
	}
}

func TestHalt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reader, sim, card := newCardReader(t)
	uid := activate(t, reader)
	require.NoError(t, reader.Authenticate(ctx, AuthA, 4, DefaultKey, uid))

	require.NoError(t, reader.Halt(ctx), "silence after HALT is success")
	assert.Equal(t, "halt", card.State())
	assert.Equal(t, 1, sim.CommandCount(virt.CardHalt))
	assert.False(t, reader.Authenticated())
	assert.Equal(t, StateReady, reader.State())

	_, err := reader.Request(ctx, ReqIdle)
	assert.True(t, IsNoCard(err), "halted card ignores REQA")

	atqa, err := reader.Request(ctx, ReqAll)
	require.NoError(t, err, "WUPA wakes a halted card")
	assert.Equal(t, []byte{0x04, 0x00}, atqa)
}

func TestHalt_DropsCryptoOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	reader, sim, transport := newSimReader(t)
	sim.InsertCard(virt.NewVirtualClassic(virt.TestUID))
	uid := activate(t, reader)
	require.NoError(t, reader.Authenticate(ctx, AuthA, 4, DefaultKey, uid))
	require.NotZero(t, sim.Reg(RegStatus2)&0x08)

	transport.SetError(RegCRCResultL, ErrTimeout)
	err := reader.Halt(ctx)
	require.ErrorIs(t, err, ErrTimeout)

	assert.False(t, reader.Authenticated())
	assert.Zero(t, sim.Reg(RegStatus2)&0x08, "MFCrypto1On cleared")
	assert.Equal(t, StateReady, reader.State())
	assert.Zero(t, sim.CommandCount(virt.CardHalt))
}

func TestTransceive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	request := func(t *testing.T, reader *Reader) (*Response, error) {
		t.Helper()
		require.NoError(t, reader.WriteRegister(RegBitFraming, 0x07))
		return reader.Transceive(ctx, ModeTransceive, []byte{ReqIdle})
	}

	t.Run("bit length", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		resp, err := request(t, reader)
		require.NoError(t, err)
		assert.Equal(t, 16, resp.Bits)
		assert.Equal(t, []byte{0x04, 0x00}, resp.Data)
	})

	t.Run("idle polls within limit", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newCardReader(t, WithIRQPollLimit(10))
		sim.ZeroIRQPolls = 5
		resp, err := request(t, reader)
		require.NoError(t, err)
		assert.Equal(t, 16, resp.Bits)
	})

	t.Run("idle polls over limit", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newCardReader(t, WithIRQPollLimit(10))
		sim.ZeroIRQPolls = 50
		_, err := request(t, reader)
		require.ErrorIs(t, err, ErrTimeout)
		assert.False(t, IsNoCard(err))
	})

	t.Run("no interrupt", func(t *testing.T) {
		t.Parallel()

		reader, sim, transport := newSimReader(t, WithIRQPollLimit(20))
		sim.InsertCard(virt.NewVirtualClassic(virt.TestUID))
		sim.NoIRQ = true
		transport.ResetLog()

		_, err := request(t, reader)
		require.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, 20, transport.Reads(RegComIrq))

		writes := transport.Writes(RegCommand)
		require.NotEmpty(t, writes)
		assert.Equal(t, byte(ModeIdle), writes[len(writes)-1], "aborted command returns the chip to idle")
		assert.Zero(t, sim.Reg(RegBitFraming)&0x80, "StartSend cleared")
	})

	t.Run("chip error", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newCardReader(t)
		sim.InjectError = 0x08
		_, err := request(t, reader)

		var chipErr *ChipError
		require.ErrorAs(t, err, &chipErr)
		assert.Equal(t, byte(0x08), chipErr.ErrorReg)
		assert.Equal(t, byte(ModeTransceive), chipErr.Command)
	})

	t.Run("CRC error bit alone is not a chip error", func(t *testing.T) {
		t.Parallel()

		reader, sim, _ := newCardReader(t)
		sim.InjectError = 0x04
		_, err := request(t, reader)
		require.NoError(t, err)
	})

	t.Run("invalid command", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newSimReader(t)
		_, err := reader.Transceive(ctx, ModeIdle, nil)
		require.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newCardReader(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := reader.Transceive(cancelled, ModeTransceive, []byte{ReqIdle})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestCalculateCRC(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("HLTA", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newSimReader(t)
		crc, err := reader.CalculateCRC(ctx, []byte{0x50, 0x00})
		require.NoError(t, err)
		assert.Equal(t, [2]byte{0x57, 0xCD}, crc)
	})

	t.Run("matches reference", func(t *testing.T) {
		t.Parallel()

		reader, _, _ := newSimReader(t)
		frame := []byte{0x93, 0x70, 0x12, 0x34, 0x56, 0x00, 0x70}
		crc, err := reader.CalculateCRC(ctx, frame)
		require.NoError(t, err)
		assert.Equal(t, virt.CRCA(frame), crc)
	})

	t.Run("coprocessor stuck", func(t *testing.T) {
		t.Parallel()

		reader, sim, transport := newSimReader(t)
		sim.CRCStuck = true
		transport.ResetLog()

		_, err := reader.CalculateCRC(ctx, []byte{0x30, 0x04})
		require.ErrorIs(t, err, ErrCRCTimeout)
		assert.Equal(t, crcPollLimit, transport.Reads(RegDivIrq))
	})
}
