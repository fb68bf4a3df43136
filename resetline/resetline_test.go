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


package resetline

import (
	"context"
	"errors"
	"testing"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/chip"
	virt "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

var errPinBusy = errors.New("pin busy")

type stuckPin struct {
	gpiotest.Pin
}

func (*stuckPin) Out(gpio.Level) error {
	return errPinBusy
}

type simTransport struct {
	*virt.SimulatorTransport
}

func (simTransport) Type() mfrc522.TransportType {
	return mfrc522.TransportMock
}

func TestPin_Levels(t *testing.T) {
	t.Parallel()

	gp := &gpiotest.Pin{N: "GPIO25", Num: 25, L: gpio.Low}
	line := New(gp)

	high, err := line.Level()
	require.NoError(t, err)
	assert.False(t, high)

	require.NoError(t, line.Release())
	assert.Equal(t, gpio.High, gp.L)
	high, err = line.Level()
	require.NoError(t, err)
	assert.True(t, high)

	require.NoError(t, line.Assert())
	assert.Equal(t, gpio.Low, gp.L)
}

func TestPin_Close(t *testing.T) {
	t.Parallel()

	gp := &gpiotest.Pin{N: "GPIO25", L: gpio.Low}
	line := New(gp)

	require.NoError(t, line.Close())
	assert.Equal(t, gpio.High, gp.L)

	require.ErrorIs(t, line.Assert(), errClosed)
	require.ErrorIs(t, line.Release(), errClosed)
	_, err := line.Level()
	require.ErrorIs(t, err, errClosed)

	require.NoError(t, line.Close())
}

func TestPin_OutError(t *testing.T) {
	t.Parallel()

	line := New(&stuckPin{Pin: gpiotest.Pin{N: "GPIO8"}})

	err := line.Assert()
	require.ErrorIs(t, err, errPinBusy)
	assert.Contains(t, err.Error(), "GPIO8")
	require.ErrorIs(t, line.Close(), errPinBusy)
}

func TestOpen_EmptyName(t *testing.T) {
	t.Parallel()

	_, err := Open("")
	require.ErrorIs(t, err, mfrc522.ErrInvalidParameter)
}

func TestPin_DeviceInit(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualMFRC522()
	gp := &gpiotest.Pin{N: "GPIO25", L: gpio.Low}
	device, err := mfrc522.New(simTransport{virt.NewSimulatorTransport(sim)},
		mfrc522.WithResetLine(New(gp)),
		mfrc522.WithResetDelays(0, 0),
	)
	require.NoError(t, err)

	require.NoError(t, device.Init(context.Background()))
	assert.Equal(t, gpio.High, gp.L)
	for _, w := range sim.Writes() {
		if w.Reg == chip.CommandReg {
			assert.NotEqual(t, byte(chip.SoftReset), w.Values[0])
		}
	}

	require.NoError(t, device.Close())
	assert.Equal(t, gpio.High, gp.L)
}
