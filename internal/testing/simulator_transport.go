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
	"errors"
	"time"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// TransportType mirrors mfrc522.TransportType to avoid import cycle
type TransportType string

const (
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// ErrTransportClosed is returned after Close.
var ErrTransportClosed = errors.New("simulator transport closed")

// SimulatorTransport wraps VirtualMFRC522 and provides the register
// transport methods of mfrc522.Transport. Tests in the root package add the
// Type method to complete the interface.
type SimulatorTransport struct {
	sim       *VirtualMFRC522
	timeout   time.Duration
	connected bool
}

// NewSimulatorTransport creates a new transport backed by VirtualMFRC522
func NewSimulatorTransport(sim *VirtualMFRC522) *SimulatorTransport {
	return &SimulatorTransport{
		sim:       sim,
		timeout:   time.Second,
		connected: true,
	}
}

// WriteRegister forwards a register write to the simulator.
func (t *SimulatorTransport) WriteRegister(reg chip.Register, values []byte) error {
	if !t.connected {
		return ErrTransportClosed
	}
	return t.sim.WriteRegister(reg, values)
}

// ReadRegister forwards a register read to the simulator.
func (t *SimulatorTransport) ReadRegister(reg chip.Register, buf []byte) error {
	if !t.connected {
		return ErrTransportClosed
	}
	return t.sim.ReadRegister(reg, buf)
}

// Close closes the transport
func (t *SimulatorTransport) Close() error {
	t.connected = false
	return nil
}

// SetTimeout sets the read timeout
func (t *SimulatorTransport) SetTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// Timeout returns the last timeout set.
func (t *SimulatorTransport) Timeout() time.Duration {
	return t.timeout
}

// IsConnected returns whether the transport is connected
func (t *SimulatorTransport) IsConnected() bool {
	return t.connected
}

// Simulator returns the underlying VirtualMFRC522 for test setup
func (t *SimulatorTransport) Simulator() *VirtualMFRC522 {
	return t.sim
}
