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

package testing

import (
	"testing"
	"time"

	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readAll reads until n bytes arrived or the attempts run out.
func readAll(t *testing.T, j *JitteryConnection, n int) []byte {
	t.Helper()
	out := make([]byte, 0, n)
	buf := make([]byte, 64)
	for range 200 {
		if len(out) >= n {
			break
		}
		got, err := j.Read(buf)
		require.NoError(t, err)
		out = append(out, buf[:got]...)
	}
	return out
}

func TestJitteryConnection_NoLoss(t *testing.T) {
	t.Parallel()

	wire := NewUARTWire(NewVirtualMFRC522())
	j := NewJitteryConnection(wire, JitterConfig{FragmentReads: true, FragmentMinBytes: 1, Seed: 42})

	// Five reads of VersionReg in one burst.
	query := []byte{0xB7, 0xB7, 0xB7, 0xB7, 0xB7}
	n, err := j.Write(query)
	require.NoError(t, err)
	require.Equal(t, len(query), n)

	got := readAll(t, j, len(query))
	assert.Equal(t, []byte{0x92, 0x92, 0x92, 0x92, 0x92}, got)
	assert.Zero(t, j.Buffered())
}

func TestJitteryConnection_Fragments(t *testing.T) {
	t.Parallel()

	wire := NewUARTWire(NewVirtualMFRC522())
	j := NewJitteryConnection(wire, JitterConfig{FragmentReads: true, FragmentMinBytes: 1, Seed: 7})

	query := make([]byte, 32)
	for i := range query {
		query[i] = 0x80 | byte(chip.VersionReg)
	}
	_, err := j.Write(query)
	require.NoError(t, err)

	buf := make([]byte, 4)
	reads, total := 0, 0
	for total < len(query) && reads < 200 {
		n, err := j.Read(buf)
		require.NoError(t, err)
		require.LessOrEqual(t, n, len(buf))
		total += n
		reads++
	}
	assert.Equal(t, len(query), total)
	assert.GreaterOrEqual(t, reads, len(query)/len(buf))
}

func TestJitteryConnection_Stall(t *testing.T) {
	t.Parallel()

	wire := NewUARTWire(NewVirtualMFRC522())
	j := NewJitteryConnection(wire, JitterConfig{
		StallAfterBytes: 2,
		StallDuration:   20 * time.Millisecond,
		Seed:            1,
	})

	_, err := j.Write([]byte{0xB7, 0xB7, 0xB7, 0xB7})
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := j.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "first read stops at the stall boundary")

	start := time.Now()
	n, err = j.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestUARTWire(t *testing.T) {
	t.Parallel()

	t.Run("write_echoes_address", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualMFRC522()
		wire := NewUARTWire(sim)

		_, err := wire.Write([]byte{byte(chip.ModeReg), 0x3D})
		require.NoError(t, err)
		buf := make([]byte, 4)
		n, err := wire.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(chip.ModeReg)}, buf[:n])
		assert.Equal(t, byte(0x3D), sim.Register(chip.ModeReg))
	})

	t.Run("read_returns_value", func(t *testing.T) {
		t.Parallel()
		wire := NewUARTWire(NewVirtualMFRC522())
		_, err := wire.Write([]byte{0x80 | byte(chip.TxControlReg)})
		require.NoError(t, err)
		buf := make([]byte, 4)
		n, _ := wire.Read(buf)
		assert.Equal(t, []byte{0x80}, buf[:n])
	})

	t.Run("split_write", func(t *testing.T) {
		t.Parallel()
		sim := NewVirtualMFRC522()
		wire := NewUARTWire(sim)
		_, _ = wire.Write([]byte{byte(chip.TModeReg)})
		_, _ = wire.Write([]byte{0x80})
		assert.Equal(t, byte(0x80), sim.Register(chip.TModeReg))
	})

	t.Run("faulty_echo", func(t *testing.T) {
		t.Parallel()
		wire := NewUARTWire(NewVirtualMFRC522())
		wire.CorruptEcho = true
		_, _ = wire.Write([]byte{byte(chip.ModeReg), 0x3D})
		buf := make([]byte, 4)
		n, _ := wire.Read(buf)
		assert.Equal(t, []byte{byte(chip.ModeReg) ^ 0x01}, buf[:n])

		wire.CorruptEcho = false
		wire.DropEcho = true
		_, _ = wire.Write([]byte{byte(chip.ModeReg), 0x3D})
		n, _ = wire.Read(buf)
		assert.Zero(t, n)
	})
}
