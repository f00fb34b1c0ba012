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

package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mfrc522"
	virt "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simDevice forwards I2C transactions to the simulator
type simDevice struct {
	sim       *virt.VirtualMFRC522
	nacks     int
	txCount   int
	lastWrite []byte
}

var errNACK = errors.New("i2c: remote I/O error")

func (d *simDevice) Tx(w, r []byte) error {
	d.txCount++
	if d.nacks > 0 {
		d.nacks--
		return errNACK
	}
	d.lastWrite = append([]byte(nil), w...)
	if len(r) > 0 {
		value, err := d.sim.ReadRegister(w[0])
		r[0] = value
		return err
	}
	return d.sim.WriteRegister(w[0], w[1])
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		bus     string
		addr    uint16
		wantErr bool
	}{
		{name: "bare bus", path: "/dev/i2c-1", bus: "/dev/i2c-1", addr: DefaultAddress},
		{name: "hex address", path: "/dev/i2c-1:0x2C", bus: "/dev/i2c-1", addr: 0x2C},
		{name: "decimal address", path: "1:40", bus: "1", addr: 40},
		{name: "address too large", path: "/dev/i2c-1:0x80", wantErr: true},
		{name: "garbage address", path: "/dev/i2c-1:zz", wantErr: true},
		{name: "empty bus", path: ":0x28", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bus, addr, err := ParsePath(tt.path)
			if tt.wantErr {
				require.ErrorIs(t, err, mfrc522.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bus, bus)
			assert.Equal(t, tt.addr, addr)
		})
	}
}

func TestRegisterFraming(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualMFRC522()
	dev := &simDevice{sim: sim}
	transport := NewFromDevice(dev, nil, "/dev/i2c-1:0x28")

	require.NoError(t, transport.WriteRegister(0x15, 0x40))
	assert.Equal(t, []byte{0x15, 0x40}, dev.lastWrite)
	assert.Equal(t, byte(0x40), sim.Reg(0x15))

	value, err := transport.ReadRegister(0x37)
	require.NoError(t, err)
	assert.Equal(t, byte(0x92), value)
	assert.Equal(t, []byte{0x37}, dev.lastWrite)
}

func TestNACKRetry(t *testing.T) {
	t.Parallel()

	dev := &simDevice{sim: virt.NewVirtualMFRC522(), nacks: 2}
	transport := NewFromDevice(dev, nil, "/dev/i2c-1")

	value, err := transport.ReadRegister(0x37)
	require.NoError(t, err)
	assert.Equal(t, byte(0x92), value)
	assert.Equal(t, 3, dev.txCount)
}

func TestNACKRetryExhausted(t *testing.T) {
	t.Parallel()

	dev := &simDevice{sim: virt.NewVirtualMFRC522(), nacks: nackRetries}
	transport := NewFromDevice(dev, nil, "/dev/i2c-1")

	err := transport.WriteRegister(0x01, 0x0F)
	require.ErrorIs(t, err, errNACK)
	assert.True(t, mfrc522.IsRetryable(err))
}

func TestClosed(t *testing.T) {
	t.Parallel()

	transport := NewFromDevice(&simDevice{sim: virt.NewVirtualMFRC522()}, nil, "/dev/i2c-1")
	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
	assert.False(t, transport.IsConnected())
	require.ErrorIs(t, transport.WriteRegister(0x01, 0x00), mfrc522.ErrTransportClosed)
	assert.Equal(t, mfrc522.TransportI2C, transport.Type())
}

func TestReader_OverI2C(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualMFRC522()
	sim.Version = 0x91
	sim.InsertCard(virt.NewVirtualClassic(virt.TestUID))

	reader, err := mfrc522.New(NewFromDevice(&simDevice{sim: sim}, nil, "/dev/i2c-1"), mfrc522.WithEventSink(nil))
	require.NoError(t, err)
	assert.Equal(t, "v1.0", reader.Version().String())

	_, err = reader.Request(context.Background(), mfrc522.ReqIdle)
	require.NoError(t, err)
}
