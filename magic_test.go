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
	"testing"

	"github.com/ZaparooProject/go-mfrc522/chip"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenUIDBackdoor(t *testing.T) {
	t.Parallel()

	t.Run("magic card", func(t *testing.T) {
		t.Parallel()

		tag := testutil.NewMagicClassic1K(nil)
		device, sim := newSimDevice(t, tag)
		selectCard(t, device)
		sim.ClearLog()

		require.NoError(t, device.OpenUIDBackdoor(context.Background()))

		tx := sim.Transmissions()
		require.Len(t, tx, 3)
		assert.Equal(t, byte(chip.PICCHltA), tx[0].Data[0])
		assert.Equal(t, testutil.Transmission{Data: []byte{chip.MagicUnlock1}, Bits: 7}, tx[1])
		assert.Equal(t, testutil.Transmission{Data: []byte{chip.MagicUnlock2}, Bits: 8}, tx[2])
	})

	t.Run("regular card", func(t *testing.T) {
		t.Parallel()

		device, _ := newSimDevice(t, testutil.NewVirtualTag(testutil.TagClassic1K, nil))
		selectCard(t, device)

		err := device.OpenUIDBackdoor(context.Background())
		require.Error(t, err)
		assert.Equal(t, StatusTimeout, StatusOf(err))
		assert.Contains(t, err.Error(), "0x40")
	})
}

func TestSetUID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tag := testutil.NewMagicClassic1K(nil)
	device, _ := newSimDevice(t, tag)
	uid := selectCard(t, device)

	newUID := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, device.SetUID(ctx, uid, newUID))

	block0 := tag.Block(0)
	assert.Equal(t, newUID, block0[:4])
	assert.Equal(t, byte(0x04), block0[4], "BCC")
	assert.Equal(t, byte(0x08), block0[5], "rest of block 0 is kept")
	assert.Equal(t, "01020304", tag.UIDString())

	// SetUID leaves the card woken, ready to be selected again.
	assert.Equal(t, testutil.TagReady, tag.State())
	selected, err := device.ReadCardSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, newUID, selected.Bytes())
}

func TestSetUID_ReselectsAfterTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tag := testutil.NewMagicClassic1K(nil)
	device, _ := newSimDevice(t, tag)

	// Nothing is selected yet, so the first authentication times out.
	uid := &UID{}
	require.NoError(t, device.SetUID(ctx, uid, []byte{0xAA, 0xBB, 0xCC, 0xDD}))
	assert.Equal(t, testutil.TestClassic1KUID, uid.Bytes())
	assert.Equal(t, "AABBCCDD", tag.UIDString())
}

func TestSetUID_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("invalid arguments", func(t *testing.T) {
		t.Parallel()
		device, sim := newSimDevice(t)
		uid := &UID{Size: 4}
		assert.Equal(t, StatusInvalid, StatusOf(device.SetUID(ctx, uid, nil)))
		assert.Equal(t, StatusInvalid, StatusOf(device.SetUID(ctx, uid, make([]byte, 16))))
		assert.Equal(t, StatusInvalid, StatusOf(device.SetUID(ctx, nil, []byte{1, 2, 3, 4})))
		assert.Empty(t, sim.Transmissions())
	})

	t.Run("no card", func(t *testing.T) {
		t.Parallel()
		device, _ := newSimDevice(t)
		uid, err := NewUID(testutil.TestClassic1KUID)
		require.NoError(t, err)
		err = device.SetUID(ctx, uid, []byte{1, 2, 3, 4})
		assert.Equal(t, StatusTimeout, StatusOf(err))
		assert.Contains(t, err.Error(), "no card")
	})

	t.Run("regular card", func(t *testing.T) {
		t.Parallel()
		tag := testutil.NewVirtualTag(testutil.TagClassic1K, nil)
		device, _ := newSimDevice(t, tag)
		uid := selectCard(t, device)

		err := device.SetUID(ctx, uid, []byte{1, 2, 3, 4})
		assert.Equal(t, StatusTimeout, StatusOf(err))
		assert.Equal(t, testutil.TestClassic1KUID, tag.Block(0)[:4])
	})
}

func TestUnbrickUIDSector(t *testing.T) {
	t.Parallel()

	tag := testutil.NewMagicClassic1K(nil)
	tag.SetBlock(0, make([]byte, 16))
	device, _ := newSimDevice(t, tag)
	selectCard(t, device)

	require.NoError(t, device.UnbrickUIDSector(context.Background()))
	assert.Equal(t, []byte{1, 2, 3, 4, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, tag.Block(0))
	assert.Equal(t, "01020304", tag.UIDString())
}
