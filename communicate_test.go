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
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522/chip"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCRC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want [2]byte
	}{
		{name: "HLTA", data: []byte{0x50, 0x00}, want: [2]byte{0x57, 0xCD}},
		{name: "READ block 0", data: []byte{0x30, 0x00}, want: [2]byte{0x02, 0xA8}},
		{name: "SAK", data: []byte{0x08}, want: chip.CRCA(0x6363, []byte{0x08})},
		{name: "empty", data: nil, want: [2]byte{0x63, 0x63}},
	}

	device, _ := newSimDevice(t)
	for _, tt := range tests {
		got, err := device.CalculateCRC(context.Background(), tt.data)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestCalculateCRC_Timeout(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.StallCRC(true)

	start := time.Now()
	_, err := device.CalculateCRC(context.Background(), []byte{0x01})
	assert.Equal(t, StatusTimeout, StatusOf(err))
	assert.GreaterOrEqual(t, time.Since(start), testCRCTimeout)
}

func TestCalculateCRC_ContextCancelled(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.StallCRC(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := device.CalculateCRC(ctx, []byte{0x01})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateCRC_BusError(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.InjectBusError(chip.CRCResultRegH, nil)

	_, err := device.CalculateCRC(context.Background(), []byte{0x01})
	assert.Equal(t, StatusBusError, StatusOf(err))
	assert.ErrorIs(t, err, testutil.ErrInjected)

	var busErr *BusError
	require.ErrorAs(t, err, &busErr)
	assert.Equal(t, "read", busErr.Op)
	assert.Equal(t, chip.CRCResultRegH, busErr.Reg)
}

func TestCommunicate_InvalidFrames(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	ctx := context.Background()

	tests := []struct {
		frame *Frame
		name  string
	}{
		{name: "nil frame"},
		{name: "FIFO overflow", frame: &Frame{Send: make([]byte, chip.FIFOSize+1)}},
		{name: "TxLastBits", frame: &Frame{Send: []byte{0x26}, TxLastBits: 8}},
		{name: "RxAlign", frame: &Frame{Send: []byte{0x26}, RxAlign: 8}},
	}
	for _, tt := range tests {
		err := device.Transceive(ctx, tt.frame)
		assert.Equal(t, StatusInvalid, StatusOf(err), tt.name)
	}
	assert.Empty(t, sim.Writes())
}

func TestCommunicate_Timeout(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t, testutil.NewVirtualTag(testutil.TagClassic1K, nil))
	sim.StallCommands(true)

	start := time.Now()
	var atqa [2]byte
	err := device.RequestA(context.Background(), atqa[:])
	assert.Equal(t, StatusTimeout, StatusOf(err))
	assert.GreaterOrEqual(t, time.Since(start), testCommandTimeout)
}

func TestCommunicate_ContextCancelled(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	sim.StallCommands(true)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	device.config.CommandTimeout = time.Second

	err := device.Transceive(ctx, &Frame{Send: []byte{chip.PICCReqA}, TxLastBits: 7})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCommunicate_NoRoom(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualTag(testutil.TagClassic1K, nil)
	device, _ := newSimDevice(t, tag)
	uid := selectCard(t, device)
	require.NoError(t, device.Authenticate(context.Background(), chip.PICCAuthKeyA, 4, DefaultKey, uid))

	// READ answers 18 bytes.
	cmd := chip.AppendCRCA([]byte{chip.PICCRead, 4})
	f := &Frame{Send: cmd, Recv: make([]byte, 8)}
	err := device.Transceive(context.Background(), f)
	assert.Equal(t, StatusNoRoom, StatusOf(err))
	assert.Zero(t, f.RecvLen)
}

func TestCommunicate_CheckCRC(t *testing.T) {
	t.Parallel()

	tag := testutil.NewVirtualTag(testutil.TagUltralight, nil)
	device, _ := newSimDevice(t, tag)
	selectCard(t, device)

	cmd := chip.AppendCRCA([]byte{chip.PICCRead, 0})
	f := &Frame{Send: cmd, Recv: make([]byte, 18), CheckCRC: true}
	require.NoError(t, device.Transceive(context.Background(), f))
	assert.Equal(t, 18, f.RecvLen)
	assert.Zero(t, f.RxLastBits)
	assert.Equal(t, tag.Block(0), f.Received()[:4])

	// Page 16 does not exist and the card answers NAK.
	cmd = chip.AppendCRCA([]byte{chip.PICCRead, 16})
	f = &Frame{Send: cmd, Recv: make([]byte, 18), CheckCRC: true}
	err := device.Transceive(context.Background(), f)
	assert.Equal(t, StatusMifareNACK, StatusOf(err))
	assert.Equal(t, byte(4), f.RxLastBits)
}

func TestCommunicate_ReceiveErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		bits byte
		want Status
	}{
		{name: "parity", bits: chip.ParityErr, want: StatusError},
		{name: "protocol", bits: chip.ProtocolErr, want: StatusError},
		{name: "buffer overflow", bits: chip.BufferOvfl, want: StatusError},
		{name: "CRC error bit alone is ignored", bits: chip.CRCErr, want: StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			device, sim := newSimDevice(t, testutil.NewVirtualTag(testutil.TagClassic1K, nil))
			sim.InjectReceiveErrors(tt.bits)

			var atqa [2]byte
			err := device.RequestA(context.Background(), atqa[:])
			assert.Equal(t, tt.want, StatusOf(err))
		})
	}
}

func TestCommunicate_BusErrors(t *testing.T) {
	t.Parallel()

	regs := []chip.Register{
		chip.CollReg,
		chip.CommandReg,
		chip.ComIrqReg,
		chip.FIFOLevelReg,
		chip.FIFODataReg,
		chip.BitFramingReg,
		chip.ErrorReg,
		chip.ControlReg,
	}

	for _, reg := range regs {
		t.Run(reg.String(), func(t *testing.T) {
			t.Parallel()

			device, sim := newSimDevice(t, testutil.NewVirtualTag(testutil.TagClassic1K, nil))
			injected := errors.New("bus unplugged")
			sim.InjectBusError(reg, injected)

			var atqa [2]byte
			err := device.RequestA(context.Background(), atqa[:])
			assert.Equal(t, StatusBusError, StatusOf(err))
			assert.ErrorIs(t, err, injected)
			assert.ErrorIs(t, err, StatusBusError)
		})
	}
}

func TestReadRegisterBlock_RxAlign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		queued  []byte
		preload byte
		rxAlign byte
		want    []byte
	}{
		{
			name:    "aligned read overwrites",
			queued:  []byte{0xA8, 0x11},
			preload: 0x05,
			want:    []byte{0xA8, 0x11},
		},
		{
			name:    "keeps low bits",
			queued:  []byte{0xA8, 0x11},
			preload: 0x05,
			rxAlign: 3,
			want:    []byte{0xAD, 0x11},
		},
		{
			name:    "seven bits preloaded",
			queued:  []byte{0x80},
			preload: 0x7F,
			rxAlign: 7,
			want:    []byte{0xFF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport()
			mock.QueueRead(chip.FIFODataReg, tt.queued)
			device, err := New(mock)
			require.NoError(t, err)

			buf := make([]byte, len(tt.queued))
			buf[0] = tt.preload
			require.NoError(t, device.ReadRegisterBlock(chip.FIFODataReg, buf, tt.rxAlign))
			assert.Equal(t, tt.want, buf)
		})
	}
}

func TestRegisterBitHelpers(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	device, err := New(mock)
	require.NoError(t, err)

	mock.SetRegister(chip.TxControlReg, 0x80)
	require.NoError(t, device.SetBits(chip.TxControlReg, 0x03))
	assert.Equal(t, byte(0x83), mock.Register(chip.TxControlReg))

	require.NoError(t, device.ClearBits(chip.TxControlReg, 0x01))
	assert.Equal(t, byte(0x82), mock.Register(chip.TxControlReg))

	require.NoError(t, device.WriteRegisterBlock(chip.FIFODataReg, []byte{1, 2, 3}))
	writes := mock.WritesTo(chip.FIFODataReg)
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{1, 2, 3}, writes[0])
}

func TestRegisterBusError(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	device, err := New(mock)
	require.NoError(t, err)
	mock.SetError(chip.Status2Reg, ErrMockInjected)

	value, err := device.ReadRegister(chip.Status2Reg)
	assert.Zero(t, value)
	assert.Equal(t, StatusBusError, StatusOf(err))
	assert.True(t, IsRetryable(err))

	err = device.StopCrypto1()
	var busErr *BusError
	require.ErrorAs(t, err, &busErr)
	assert.Equal(t, "read", busErr.Op)
	assert.Contains(t, busErr.Error(), "Status2Reg")

	mock.ClearError(chip.Status2Reg)
	require.NoError(t, mock.Close())
	err = device.WriteRegister(chip.Status2Reg, 0)
	assert.Equal(t, StatusBusError, StatusOf(err))
	assert.True(t, IsFatal(err))
}
