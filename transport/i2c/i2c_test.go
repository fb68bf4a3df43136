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
	"fmt"
	"testing"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/chip"
	virt "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var errAddressNACK = errors.New("address not acknowledged")

type busTx struct {
	w    []byte
	rLen int
	addr uint16
}

// MockI2CBus implements i2c.Bus backed by a VirtualMFRC522 at one address.
type MockI2CBus struct {
	sim    *virt.VirtualMFRC522
	txs    []busTx
	delay  time.Duration
	addr   uint16
	closed bool
}

// NewMockI2CBus creates a bus with the simulated chip at addr.
func NewMockI2CBus(sim *virt.VirtualMFRC522, addr uint16) *MockI2CBus {
	return &MockI2CBus{sim: sim, addr: addr}
}

// Tx implements i2c.Bus. A write is the register address followed by the
// data; a read is the register address then a repeated start.
func (m *MockI2CBus) Tx(addr uint16, w, r []byte) error {
	if m.closed {
		return errors.New("bus is closed")
	}
	m.txs = append(m.txs, busTx{addr: addr, w: append([]byte(nil), w...), rLen: len(r)})
	time.Sleep(m.delay)
	if addr != m.addr {
		return errAddressNACK
	}
	if len(w) == 0 {
		return errors.New("missing register address")
	}

	reg := chip.Register(w[0])
	if len(r) == 0 {
		if err := m.sim.WriteRegister(reg, w[1:]); err != nil {
			return fmt.Errorf("mock i2c write: %w", err)
		}
		return nil
	}
	if len(w) != 1 {
		return errors.New("combined write and read")
	}
	if err := m.sim.ReadRegister(reg, r); err != nil {
		return fmt.Errorf("mock i2c read: %w", err)
	}
	return nil
}

// SetSpeed implements i2c.Bus (no-op for mock).
func (*MockI2CBus) SetSpeed(_ physic.Frequency) error {
	return nil
}

// Close closes the mock bus.
func (m *MockI2CBus) Close() error {
	m.closed = true
	return nil
}

// String returns the bus name.
func (*MockI2CBus) String() string {
	return "mock://i2c"
}

var _ i2c.BusCloser = (*MockI2CBus)(nil)

func newTestTransport(t *testing.T, sim *virt.VirtualMFRC522) (*Transport, *MockI2CBus) {
	t.Helper()
	bus := NewMockI2CBus(sim, DefaultAddress)
	return newTransport(bus, "mock://i2c", DefaultAddress), bus
}

func newTestDevice(t *testing.T, transport mfrc522.Transport) *mfrc522.Device {
	t.Helper()
	device, err := mfrc522.New(transport, mfrc522.WithResetDelays(0, 0))
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))
	return device
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		wantBus  string
		wantAddr uint16
		wantErr  bool
	}{
		{name: "bus only", path: "/dev/i2c-1", wantBus: "/dev/i2c-1", wantAddr: 0x28},
		{name: "hex address", path: "/dev/i2c-1:0x2A", wantBus: "/dev/i2c-1", wantAddr: 0x2A},
		{name: "decimal address", path: "1:40", wantBus: "1", wantAddr: 40},
		{name: "trailing colon", path: "/dev/i2c-0:", wantBus: "/dev/i2c-0", wantAddr: 0x28},
		{name: "address too large", path: "/dev/i2c-1:0x80", wantErr: true},
		{name: "garbage address", path: "/dev/i2c-1:abc", wantErr: true},
		{name: "empty", path: "", wantErr: true},
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
			assert.Equal(t, tt.wantBus, bus)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestI2C_WireFormat(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualMFRC522()
	transport, bus := newTestTransport(t, sim)

	require.NoError(t, transport.WriteRegister(chip.FIFODataReg, []byte{0x93, 0x20}))
	buf := make([]byte, 1)
	require.NoError(t, transport.ReadRegister(chip.VersionReg, buf))
	assert.Equal(t, byte(0x92), buf[0])

	require.Len(t, bus.txs, 2)
	assert.Equal(t, busTx{addr: 0x28, w: []byte{0x09, 0x93, 0x20}}, bus.txs[0])
	assert.Equal(t, busTx{addr: 0x28, w: []byte{0x37}, rLen: 1}, bus.txs[1])
	assert.Equal(t, 2, int(sim.Register(chip.FIFOLevelReg)))
}

func TestI2C_FIFORead(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualMFRC522()
	transport, _ := newTestTransport(t, sim)

	require.NoError(t, transport.WriteRegister(chip.FIFODataReg, []byte{0xDE, 0xAD, 0xBE, 0xEF}))
	buf := make([]byte, 4)
	require.NoError(t, transport.ReadRegister(chip.FIFODataReg, buf))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf)

	require.NoError(t, transport.ReadRegister(chip.FIFODataReg, nil))
}

func TestI2C_Device(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualMFRC522()
	sim.AddTag(virt.NewVirtualTag(virt.TagClassic1K, nil))
	transport, _ := newTestTransport(t, sim)
	device := newTestDevice(t, transport)
	ctx := context.Background()

	version, err := device.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, chip.Version2_0, version)

	var atqa [2]byte
	require.NoError(t, device.WakeupA(ctx, atqa[:]))
	uid, err := device.ReadCardSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, "DEADBEEF", uid.String())

	require.NoError(t, device.Authenticate(ctx, chip.PICCAuthKeyA, 4, mfrc522.DefaultKey, uid))
	buf := make([]byte, 18)
	n, err := device.Read(ctx, 4, buf)
	require.NoError(t, err)
	assert.Equal(t, 18, n)
}

func TestI2C_WrongAddress(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualMFRC522()
	transport, bus := newTestTransport(t, sim)

	require.NoError(t, transport.WriteRegister(chip.CommandReg, []byte{0x00}))
	assert.Len(t, bus.txs, 1)

	bus.addr = 0x2B
	err := transport.ReadRegister(chip.VersionReg, make([]byte, 1))
	require.Error(t, err)
	require.ErrorIs(t, err, errAddressNACK)
	require.ErrorIs(t, err, mfrc522.ErrTransportRead)
	assert.True(t, mfrc522.IsRetryable(err))

	trace := mfrc522.GetTrace(err)
	require.NotNil(t, trace)
	assert.Equal(t, "i2c", trace.Transport)
	require.Len(t, trace.Trace, 2)
	assert.Equal(t, mfrc522.TraceTX, trace.Trace[0].Direction)
	assert.Contains(t, trace.Trace[1].Note, "FAILED")
}

func TestI2C_InvalidRegister(t *testing.T) {
	t.Parallel()

	transport, bus := newTestTransport(t, virt.NewVirtualMFRC522())
	require.ErrorIs(t, transport.WriteRegister(chip.RegisterCount, []byte{0}), mfrc522.ErrInvalidRegister)
	require.ErrorIs(t, transport.ReadRegister(0x40, make([]byte, 1)), mfrc522.ErrInvalidRegister)
	assert.Empty(t, bus.txs)
}

func TestI2C_Timeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
		delay   time.Duration
		wantErr bool
	}{
		{name: "within timeout", timeout: time.Second, delay: time.Millisecond},
		{name: "slow transfer", timeout: time.Millisecond, delay: 20 * time.Millisecond, wantErr: true},
		{name: "disabled", timeout: 0, delay: 5 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := virt.NewVirtualMFRC522()
			transport, bus := newTestTransport(t, sim)
			require.NoError(t, transport.SetTimeout(tt.timeout))
			bus.delay = tt.delay

			writeErr := transport.WriteRegister(chip.CommandReg, []byte{0x00})
			buf := make([]byte, 1)
			readErr := transport.ReadRegister(chip.VersionReg, buf)

			if !tt.wantErr {
				require.NoError(t, writeErr)
				require.NoError(t, readErr)
				assert.Equal(t, sim.Register(chip.VersionReg), buf[0])
				return
			}
			require.ErrorIs(t, writeErr, mfrc522.ErrTransportTimeout)
			require.ErrorIs(t, readErr, mfrc522.ErrTransportTimeout)
			assert.True(t, mfrc522.IsRetryable(readErr))

			trace := mfrc522.GetTrace(readErr)
			require.NotNil(t, trace)
			last := trace.Trace[len(trace.Trace)-1]
			assert.Equal(t, chip.VersionReg, last.Reg)
			assert.Contains(t, last.Note, "timeout")
		})
	}
}

func TestI2C_Close(t *testing.T) {
	t.Parallel()

	transport, bus := newTestTransport(t, virt.NewVirtualMFRC522())
	assert.True(t, transport.IsConnected())
	assert.Equal(t, mfrc522.TransportI2C, transport.Type())
	assert.Equal(t, DefaultAddress, transport.Address())
	require.NoError(t, transport.SetTimeout(0))

	require.NoError(t, transport.Close())
	assert.True(t, bus.closed)
	assert.False(t, transport.IsConnected())
	assert.Zero(t, transport.Address())

	err := transport.WriteRegister(chip.CommandReg, []byte{0x00})
	require.ErrorIs(t, err, mfrc522.ErrTransportClosed)
	assert.True(t, mfrc522.IsFatal(err))

	require.NoError(t, transport.Close())
}
