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
	"math"
	"testing"

	"github.com/ZaparooProject/go-mfrc522/chip"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// authenticatedClassic selects a MIFARE Classic 1K and authenticates
// sector 1 (blocks 4 to 7) with the default key.
func authenticatedClassic(t *testing.T) (*Device, *testutil.VirtualMFRC522, *testutil.VirtualTag) {
	t.Helper()

	tag := testutil.NewVirtualTag(testutil.TagClassic1K, nil)
	device, sim := newSimDevice(t, tag)
	uid := selectCard(t, device)
	require.NoError(t, device.Authenticate(context.Background(), chip.PICCAuthKeyA, 4, DefaultKey, uid))
	sim.ClearLog()
	return device, sim, tag
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		uid  []byte
		key  Key
		cmd  byte
		want Status
	}{
		{name: "key A", uid: testutil.TestClassic1KUID, cmd: chip.PICCAuthKeyA, key: DefaultKey, want: StatusOK},
		{name: "key B", uid: testutil.TestClassic1KUID, cmd: chip.PICCAuthKeyB, key: DefaultKey, want: StatusOK},
		{
			name: "wrong key",
			uid:  testutil.TestClassic1KUID,
			cmd:  chip.PICCAuthKeyA,
			key:  Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5},
			want: StatusTimeout,
		},
		{
			name: "double size UID uses the last four bytes",
			uid:  []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66},
			cmd:  chip.PICCAuthKeyA,
			key:  DefaultKey,
			want: StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tag := testutil.NewVirtualTag(testutil.TagClassic1K, tt.uid)
			device, sim := newSimDevice(t, tag)
			uid := selectCard(t, device)
			require.Equal(t, tt.uid, uid.Bytes())

			err := device.Authenticate(context.Background(), tt.cmd, 8, tt.key, uid)
			assert.Equal(t, tt.want, StatusOf(err))

			crypto := sim.Register(chip.Status2Reg)&chip.MFCrypto1On != 0
			assert.Equal(t, tt.want == StatusOK, crypto)
		})
	}
}

func TestAuthenticate_InvalidArguments(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	ctx := context.Background()
	uid, err := NewUID(testutil.TestClassic1KUID)
	require.NoError(t, err)

	assert.Equal(t, StatusInvalid, StatusOf(device.Authenticate(ctx, chip.PICCRead, 4, DefaultKey, uid)))
	assert.Equal(t, StatusInvalid, StatusOf(device.Authenticate(ctx, chip.PICCAuthKeyA, 4, DefaultKey, nil)))
	assert.Equal(t, StatusInvalid, StatusOf(device.Authenticate(ctx, chip.PICCAuthKeyA, 4, DefaultKey, &UID{Size: 3})))
	assert.Empty(t, sim.Writes())
}

func TestAuthenticate_FrameLayout(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	device, err := New(mock, testDeviceOptions()...)
	require.NoError(t, err)

	uid, err := NewUID([]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	require.NoError(t, err)
	key := Key{1, 2, 3, 4, 5, 6}
	require.NoError(t, device.Authenticate(context.Background(), chip.PICCAuthKeyB, 9, key, uid))

	fifo := mock.WritesTo(chip.FIFODataReg)
	require.Len(t, fifo, 1)
	assert.Equal(t, []byte{chip.PICCAuthKeyB, 9, 1, 2, 3, 4, 5, 6, 0x33, 0x44, 0x55, 0x66}, fifo[0])

	commands := mock.WritesTo(chip.CommandReg)
	require.NotEmpty(t, commands)
	assert.Equal(t, []byte{byte(chip.MFAuthent)}, commands[len(commands)-1])
}

func TestStopCrypto1(t *testing.T) {
	t.Parallel()

	device, sim, tag := authenticatedClassic(t)
	require.NoError(t, device.StopCrypto1())
	assert.Zero(t, sim.Register(chip.Status2Reg)&chip.MFCrypto1On)

	// The card needs a new authentication before it serves data again.
	var buf [18]byte
	_, err := device.Read(context.Background(), 4, buf[:])
	assert.Equal(t, StatusMifareNACK, StatusOf(err))
	assert.Equal(t, testutil.TagActive, tag.State())
}

func TestReadWrite_Classic(t *testing.T) {
	t.Parallel()

	device, _, tag := authenticatedClassic(t)
	ctx := context.Background()

	data := []byte("0123456789ABCDEF")
	require.NoError(t, device.Write(ctx, 5, data))
	assert.Equal(t, data, tag.Block(5))

	buf := make([]byte, 18)
	n, err := device.Read(ctx, 5, buf)
	require.NoError(t, err)
	assert.Equal(t, 18, n)
	assert.Equal(t, data, buf[:16])

	// Key A of the trailer reads as zeros.
	n, err = device.Read(ctx, 7, buf)
	require.NoError(t, err)
	assert.Equal(t, 18, n)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0xFF, 0x07, 0x80, 0x69}, buf[:10])
}

func TestReadWrite_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("buffer too small", func(t *testing.T) {
		t.Parallel()
		device, sim, _ := authenticatedClassic(t)
		_, err := device.Read(ctx, 4, make([]byte, 16))
		assert.Equal(t, StatusNoRoom, StatusOf(err))
		assert.Empty(t, sim.Transmissions())
	})

	t.Run("short write data", func(t *testing.T) {
		t.Parallel()
		device, sim, _ := authenticatedClassic(t)
		assert.Equal(t, StatusInvalid, StatusOf(device.Write(ctx, 4, make([]byte, 15))))
		assert.Empty(t, sim.Transmissions())
	})

	t.Run("other sector is not authenticated", func(t *testing.T) {
		t.Parallel()
		device, _, _ := authenticatedClassic(t)
		_, err := device.Read(ctx, 8, make([]byte, 18))
		assert.Equal(t, StatusMifareNACK, StatusOf(err))
	})

	t.Run("data phase refused", func(t *testing.T) {
		t.Parallel()
		device, _, tag := authenticatedClassic(t)
		tag.NAKWriteData = true
		err := device.Write(ctx, 4, make([]byte, 16))
		assert.Equal(t, StatusMifareNACK, StatusOf(err))
	})

	t.Run("manufacturer block", func(t *testing.T) {
		t.Parallel()
		tag := testutil.NewVirtualTag(testutil.TagClassic1K, nil)
		device, _ := newSimDevice(t, tag)
		uid := selectCard(t, device)
		require.NoError(t, device.Authenticate(ctx, chip.PICCAuthKeyA, 0, DefaultKey, uid))

		before := tag.Block(0)
		err := device.Write(ctx, 0, make([]byte, 16))
		assert.Equal(t, StatusMifareNACK, StatusOf(err))
		assert.Equal(t, before, tag.Block(0))
	})

	t.Run("card gone", func(t *testing.T) {
		t.Parallel()
		device, sim, _ := authenticatedClassic(t)
		sim.RemoveAllTags()
		_, err := device.Read(ctx, 4, make([]byte, 18))
		assert.Equal(t, StatusTimeout, StatusOf(err))
		assert.Equal(t, StatusTimeout, StatusOf(device.Write(ctx, 4, make([]byte, 16))))
	})
}

func TestUltralight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tag := testutil.NewVirtualTag(testutil.TagUltralight, nil)
	device, _ := newSimDevice(t, tag)
	selectCard(t, device)

	require.NoError(t, device.UltralightWrite(ctx, 4, []byte{0xCA, 0xFE, 0xBA, 0xBE}))
	assert.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, tag.Block(4))

	// The compatibility WRITE only stores the first four bytes.
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	require.NoError(t, device.Write(ctx, 5, data))
	assert.Equal(t, []byte{1, 2, 3, 4}, tag.Block(5))

	buf := make([]byte, 18)
	_, err := device.Read(ctx, 4, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE, 1, 2, 3, 4}, buf[:8])

	// Reading past the end wraps to page 0.
	_, err = device.Read(ctx, 14, buf)
	require.NoError(t, err)
	assert.Equal(t, tag.Block(0), buf[8:12])

	assert.Equal(t, StatusMifareNACK, StatusOf(device.UltralightWrite(ctx, 0, []byte{0, 0, 0, 0})))
	assert.Equal(t, StatusInvalid, StatusOf(device.UltralightWrite(ctx, 4, []byte{0, 0, 0})))
}

func TestValueBlock_RoundTrip(t *testing.T) {
	t.Parallel()

	values := []int32{0, 5, 123456, -1, -42, math.MaxInt32, math.MinInt32}

	device, _, tag := authenticatedClassic(t)
	ctx := context.Background()

	for _, value := range values {
		require.NoError(t, device.SetValue(ctx, 5, value))
		got, err := device.GetValue(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, value, got)

		block := tag.Block(5)
		assert.Equal(t, []byte{5, 0xFA, 5, 0xFA}, block[12:16])
	}
}

func TestValueOperations(t *testing.T) {
	t.Parallel()

	device, sim, tag := authenticatedClassic(t)
	ctx := context.Background()

	require.NoError(t, device.SetValue(ctx, 5, 100))

	require.NoError(t, device.Increment(ctx, 5, 25))
	require.NoError(t, device.Transfer(ctx, 5))
	value, err := device.GetValue(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(125), value)

	require.NoError(t, device.Decrement(ctx, 5, 5))
	require.NoError(t, device.Transfer(ctx, 5))
	value, err = device.GetValue(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int32(120), value)

	// RESTORE then TRANSFER copies a value block.
	sim.ClearLog()
	require.NoError(t, device.Restore(ctx, 5))
	require.NoError(t, device.Transfer(ctx, 6))
	value, err = device.GetValue(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, int32(120), value)
	assert.Equal(t, byte(6), tag.Block(6)[12])

	tx := sim.Transmissions()
	require.GreaterOrEqual(t, len(tx), 2)
	assert.Equal(t, chip.AppendCRCA([]byte{chip.PICCRestore, 5}), tx[0].Data)
	assert.Equal(t, chip.AppendCRCA([]byte{0, 0, 0, 0}), tx[1].Data)
}

func TestValueOperations_Errors(t *testing.T) {
	t.Parallel()

	device, _, _ := authenticatedClassic(t)
	ctx := context.Background()

	// Block 4 holds zeros, which is not a value block.
	assert.Equal(t, StatusMifareNACK, StatusOf(device.Increment(ctx, 4, 1)))
	_, err := device.GetValue(ctx, 4)
	assert.Equal(t, StatusError, StatusOf(err))

	// Nothing in the transfer buffer.
	assert.Equal(t, StatusMifareNACK, StatusOf(device.Transfer(ctx, 5)))
}

func TestMifareTransceive_FrameTooLong(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t)
	err := device.mifareTransceive(context.Background(), make([]byte, 17), false)
	assert.Equal(t, StatusInvalid, StatusOf(err))
	assert.Empty(t, sim.Writes())
}

func TestFindKeyA(t *testing.T) {
	t.Parallel()

	madKey := Key{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}
	tests := []struct {
		name    string
		keyA    Key
		wantKey Key
		wantErr error
	}{
		{name: "default key first", keyA: DefaultKey, wantKey: DefaultKey},
		{name: "later key after failures", keyA: madKey, wantKey: madKey},
		{name: "no key matches", keyA: Key{1, 2, 3, 4, 5, 6}, wantErr: ErrKeyNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tag := testutil.NewVirtualTag(testutil.TagClassic1K, nil)
			trailer := tag.Block(7)
			copy(trailer[:6], tt.keyA[:])
			tag.SetBlock(7, trailer)
			want := []byte{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E, 0x1F}
			tag.SetBlock(5, want)

			device, _ := newSimDevice(t, tag)
			uid := selectCard(t, device)
			ctx := context.Background()

			key, err := device.FindKeyA(ctx, uid, 7, CommonKeys)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)

			// The session opened by the matching key is usable.
			buf := make([]byte, 18)
			_, err = device.Read(ctx, 5, buf)
			require.NoError(t, err)
			assert.Equal(t, want, buf[:MifareBlockSize])
		})
	}
}

func TestFindKeyA_BusError(t *testing.T) {
	t.Parallel()

	device, sim := newSimDevice(t, testutil.NewVirtualTag(testutil.TagClassic1K, nil))
	uid := selectCard(t, device)
	sim.InjectBusError(chip.CommandReg, nil)

	_, err := device.FindKeyA(context.Background(), uid, 3, CommonKeys)
	assert.Equal(t, StatusBusError, StatusOf(err))
}
