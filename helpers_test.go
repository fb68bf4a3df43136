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
	"time"

	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	testutil "github.com/ZaparooProject/go-mfrc522/internal/testing"
	"github.com/stretchr/testify/require"
)

const (
	testCommandTimeout = 10 * time.Millisecond
	testCRCTimeout     = 10 * time.Millisecond
)

// simTransport adapts the register simulator to Transport.
type simTransport struct {
	*testutil.SimulatorTransport
}

func (simTransport) Type() TransportType {
	return TransportMock
}

func newSimTransport(sim *testutil.VirtualMFRC522) simTransport {
	return simTransport{testutil.NewSimulatorTransport(sim)}
}

// testDeviceOptions skip the reset delays and shorten the poll deadlines so
// that timeouts are quick to hit.
func testDeviceOptions() []Option {
	return []Option{
		WithResetDelays(0, 0),
		WithCommandTimeout(testCommandTimeout),
		WithCRCTimeout(testCRCTimeout),
	}
}

// newSimDevice returns an initialised device talking to a simulated chip
// with tags in its field. The simulator log starts out empty.
func newSimDevice(t *testing.T, tags ...*testutil.VirtualTag) (*Device, *testutil.VirtualMFRC522) {
	t.Helper()

	sim := testutil.NewVirtualMFRC522()
	for _, tag := range tags {
		sim.AddTag(tag)
	}

	device, err := New(newSimTransport(sim), testDeviceOptions()...)
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))

	sim.ClearLog()
	return device, sim
}

// selectCard wakes and selects the only card in the field.
func selectCard(t *testing.T, device *Device) *UID {
	t.Helper()

	ctx := context.Background()
	var atqa [2]byte
	require.NoError(t, device.WakeupA(ctx, atqa[:]))
	uid, err := device.ReadCardSerial(ctx)
	require.NoError(t, err)
	return uid
}

// fakeResetLine records NRSTPD changes and powers the simulator up on the
// rising edge.
type fakeResetLine struct {
	sim      *testutil.VirtualMFRC522
	levelErr error
	calls    []string
	mu       syncutil.Mutex
	high     bool
	closed   bool
}

func (f *fakeResetLine) Assert() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "assert")
	f.high = false
	return nil
}

func (f *fakeResetLine) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "release")
	f.high = true
	if f.sim != nil {
		f.sim.PowerOn()
	}
	return nil
}

func (f *fakeResetLine) Level() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.levelErr != nil {
		return false, f.levelErr
	}
	return f.high, nil
}

func (f *fakeResetLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeResetLine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
