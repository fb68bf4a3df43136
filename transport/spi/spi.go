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


// Package spi provides the SPI register port for the MFRC522.
//
// The chip talks SPI mode 0, MSB first, at up to 10 MHz. Each transaction
// starts with an address byte: bit 7 set for a read, the register address in
// bits 6..1 and bit 0 zero. A read clocks one address byte per value out and
// a trailing zero; the value for an address arrives one byte later.
package spi

import (
	"fmt"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// DefaultFrequency is the SCK rate. The chip allows 10 MHz, jumper
	// wires on breadboards often do not.
	DefaultFrequency = 4 * physic.MegaHertz

	mode = spi.Mode0

	readFlag  = 0x80
	addrMask  = 0x7E
	traceSize = 32
)

// address returns the address byte for reg.
func address(reg chip.Register, read bool) byte {
	a := (byte(reg) << 1) & addrMask
	if read {
		a |= readFlag
	}
	return a
}

// Transport implements mfrc522.Transport over SPI.
type Transport struct {
	port     spi.PortCloser
	conn     spi.Conn
	trace    *mfrc522.TraceBuffer
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
}

// New opens the SPI port (for example "/dev/spidev0.0" or "SPI0.0") at
// DefaultFrequency.
func New(portName string) (*Transport, error) {
	return NewWithFrequency(portName, DefaultFrequency)
}

// NewWithFrequency opens the SPI port at freq.
func NewWithFrequency(portName string, freq physic.Frequency) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	t, err := newTransport(port, portName, freq)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

func newTransport(port spi.PortCloser, portName string, freq physic.Frequency) (*Transport, error) {
	conn, err := port.Connect(freq, mode, 8)
	if err != nil {
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	return &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
		trace:    mfrc522.NewTraceBuffer(string(mfrc522.TransportSPI), portName, traceSize),
		timeout:  50 * time.Millisecond,
	}, nil
}

// WriteRegister writes values to reg in one transaction.
func (t *Transport) WriteRegister(reg chip.Register, values []byte) error {
	if !reg.Valid() {
		return mfrc522.ErrInvalidRegister
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return mfrc522.NewTransportClosedError("WriteRegister", t.portName)
	}

	w := make([]byte, 1+len(values))
	w[0] = address(reg, false)
	copy(w[1:], values)

	start := time.Now()
	if err := t.conn.Tx(w, nil); err != nil {
		t.trace.RecordFailure(mfrc522.TraceTX, reg, err.Error())
		mfrc522.Debugf("spi %s: write %s failed: %v", t.portName, reg, err)
		return t.trace.WrapError(mfrc522.NewTransportError("WriteRegister", t.portName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportWrite, err), mfrc522.ErrorTypeTransient))
	}
	if err := t.checkElapsed("WriteRegister", mfrc522.TraceTX, reg, start); err != nil {
		return err
	}
	t.trace.RecordWrite(reg, values)
	return nil
}

// ReadRegister fills buf from reg in one transaction.
func (t *Transport) ReadRegister(reg chip.Register, buf []byte) error {
	if !reg.Valid() {
		return mfrc522.ErrInvalidRegister
	}
	if len(buf) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return mfrc522.NewTransportClosedError("ReadRegister", t.portName)
	}

	n := len(buf)
	w := make([]byte, n+1)
	r := make([]byte, n+1)
	addr := address(reg, true)
	for i := range n {
		w[i] = addr
	}
	// w[n] stays 0x00 and stops the read.

	start := time.Now()
	if err := t.conn.Tx(w, r); err != nil {
		t.trace.RecordFailure(mfrc522.TraceRX, reg, err.Error())
		mfrc522.Debugf("spi %s: read %s failed: %v", t.portName, reg, err)
		return t.trace.WrapError(mfrc522.NewTransportError("ReadRegister", t.portName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportRead, err), mfrc522.ErrorTypeTransient))
	}
	if err := t.checkElapsed("ReadRegister", mfrc522.TraceRX, reg, start); err != nil {
		return err
	}
	copy(buf, r[1:])
	t.trace.RecordRead(reg, buf)
	return nil
}

// checkElapsed fails a transfer that finished after the timeout. The bus
// driver cannot abort a transfer once started, so data from a late one is
// discarded instead. A zero timeout disables the check.
func (t *Transport) checkElapsed(op string, dir mfrc522.TraceDirection, reg chip.Register, start time.Time) error {
	if t.timeout <= 0 {
		return nil
	}
	elapsed := time.Since(start)
	if elapsed <= t.timeout {
		return nil
	}
	t.trace.RecordFailure(dir, reg, "timeout after "+elapsed.String())
	mfrc522.Debugf("spi %s: %s %s took %v (timeout %v)", t.portName, op, reg, elapsed, t.timeout)
	return t.trace.WrapError(mfrc522.NewTimeoutError(op, t.portName))
}

// SetTimeout sets the longest a single register transfer may take. A
// transfer that runs longer fails with mfrc522.ErrTransportTimeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
	return nil
}

// Close releases the SPI port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close SPI port: %w", err)
	}
	return nil
}

// IsConnected returns true until Close is called.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportSPI
}

var _ mfrc522.Transport = (*Transport)(nil)
