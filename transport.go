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
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// Transport is the register port of an MFRC522. It can be implemented by
// I2C, SPI or UART backends. Each call is one complete bus transaction and
// blocks until the bus finishes or the transport timeout expires.
type Transport interface {
	// WriteRegister writes values to reg. More than one value is written to
	// the same address, which is how the FIFO is loaded.
	WriteRegister(reg chip.Register, values []byte) error

	// ReadRegister fills buf from reg, reading the same address len(buf) times.
	ReadRegister(reg chip.Register, buf []byte) error

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the per-transaction timeout
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportWithRetry wraps a Transport and retries register transactions
// that fail with a retryable error. The protocol layer never retries on its
// own, so this is the place to absorb a noisy bus.
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// WriteRegister writes with retry logic
func (t *TransportWithRetry) WriteRegister(reg chip.Register, values []byte) error {
	return RetryWithConfig(context.Background(), t.config, func() error {
		return t.transport.WriteRegister(reg, values)
	})
}

// ReadRegister reads with retry logic
func (t *TransportWithRetry) ReadRegister(reg chip.Register, buf []byte) error {
	return RetryWithConfig(context.Background(), t.config, func() error {
		return t.transport.ReadRegister(reg, buf)
	})
}

// Close closes the transport connection
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// SetTimeout sets the read timeout for the transport
func (t *TransportWithRetry) SetTimeout(timeout time.Duration) error {
	if err := t.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on underlying transport: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *TransportWithRetry) IsConnected() bool {
	return t.transport.IsConnected()
}

// Type returns the transport type
func (t *TransportWithRetry) Type() TransportType {
	return t.transport.Type()
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}

// MockTransport is a plain register file implementing Transport. It has no
// chip behaviour: reads return the last written value unless a read sequence
// was queued with QueueRead. It is meant for tests of the register layer and
// of failure paths; use internal/testing.VirtualMFRC522 to simulate the chip.
type MockTransport struct {
	errorMap  map[chip.Register]error
	readQueue map[chip.Register][][]byte
	writes    []MockWrite
	regs      [chip.RegisterCount]byte
	timeout   time.Duration
	delay     time.Duration
	mu        sync.RWMutex
	connected bool
}

// MockWrite is one recorded WriteRegister call.
type MockWrite struct {
	Values []byte
	Reg    chip.Register
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		timeout:   time.Second,
		errorMap:  make(map[chip.Register]error),
		readQueue: make(map[chip.Register][][]byte),
	}
}

// WriteRegister implements Transport
func (m *MockTransport) WriteRegister(reg chip.Register, values []byte) error {
	if err := m.before(reg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, MockWrite{Reg: reg, Values: append([]byte(nil), values...)})
	if len(values) > 0 {
		m.regs[reg] = values[len(values)-1]
	}
	return nil
}

// ReadRegister implements Transport
func (m *MockTransport) ReadRegister(reg chip.Register, buf []byte) error {
	if err := m.before(reg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if queue := m.readQueue[reg]; len(queue) > 0 {
		copy(buf, queue[0])
		m.readQueue[reg] = queue[1:]
		return nil
	}
	for i := range buf {
		buf[i] = m.regs[reg]
	}
	return nil
}

func (m *MockTransport) before(reg chip.Register) error {
	m.mu.RLock()
	connected := m.connected
	delay := m.delay
	err := m.errorMap[reg]
	m.mu.RUnlock()

	if !connected {
		return NewTransportClosedError("mock", "mock")
	}
	if !reg.Valid() {
		return ErrInvalidRegister
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetRegister sets the value returned by reads of reg.
func (m *MockTransport) SetRegister(reg chip.Register, value byte) {
	m.mu.Lock()
	m.regs[reg] = value
	m.mu.Unlock()
}

// Register returns the current value of reg.
func (m *MockTransport) Register(reg chip.Register) byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.regs[reg]
}

// QueueRead queues data to be returned by the next read of reg.
func (m *MockTransport) QueueRead(reg chip.Register, data []byte) {
	m.mu.Lock()
	m.readQueue[reg] = append(m.readQueue[reg], append([]byte(nil), data...))
	m.mu.Unlock()
}

// SetError configures an error to be returned for any access to reg
func (m *MockTransport) SetError(reg chip.Register, err error) {
	m.mu.Lock()
	m.errorMap[reg] = err
	m.mu.Unlock()
}

// ClearError removes error injection for reg
func (m *MockTransport) ClearError(reg chip.Register) {
	m.mu.Lock()
	delete(m.errorMap, reg)
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate bus latency
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// Writes returns every recorded write, oldest first.
func (m *MockTransport) Writes() []MockWrite {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockWrite(nil), m.writes...)
}

// WritesTo returns the values written to reg, one entry per call.
func (m *MockTransport) WritesTo(reg chip.Register) [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [][]byte
	for _, w := range m.writes {
		if w.Reg == reg {
			out = append(out, w.Values)
		}
	}
	return out
}

// Reset clears recorded writes and reconnects the transport
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.writes = nil
	m.connected = true
	m.mu.Unlock()
}

var errMockInjected = errors.New("mock: injected failure")

// ErrMockInjected is a ready-made transient failure for SetError.
var ErrMockInjected = NewTransportError("mock", "mock", errMockInjected, ErrorTypeTransient)
