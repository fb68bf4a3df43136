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


// Package i2c provides the I2C register port for the MFRC522.
//
// Every register transaction is one I2C transfer. A write sends the register
// address followed by the data bytes; a read sends the address and reads
// len(buf) bytes back. The chip does not increment the address, so several
// bytes go to or come from the same register, which is how the FIFO is
// accessed.
package i2c

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the 7-bit address with EA tied low and ADR_0..5
	// strapped to 0b101000, as on the common breakout boards.
	DefaultAddress uint16 = 0x28

	// Fast mode. The chip supports high-speed mode too but few hosts do.
	maxClockFreq = 400 * physic.KiloHertz

	traceSize = 32
)

// Transport implements mfrc522.Transport over I2C.
type Transport struct {
	dev     *i2c.Dev
	bus     i2c.BusCloser // held so Close can release the file descriptor
	trace   *mfrc522.TraceBuffer
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
}

// ParsePath splits a path of the form "<bus>[:<addr>]" into the bus name
// and the 7-bit device address. The address may be decimal or 0x-prefixed
// hex and defaults to DefaultAddress.
func ParsePath(path string) (bus string, addr uint16, err error) {
	bus, addrStr, found := strings.Cut(path, ":")
	if bus == "" {
		return "", 0, fmt.Errorf("%w: empty I2C bus in %q", mfrc522.ErrInvalidParameter, path)
	}
	if !found || addrStr == "" {
		return bus, DefaultAddress, nil
	}

	v, err := strconv.ParseUint(addrStr, 0, 7)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad I2C address %q: %w", mfrc522.ErrInvalidParameter, addrStr, err)
	}
	return bus, uint16(v), nil
}

// New opens the I2C bus named in path ("/dev/i2c-1", "/dev/i2c-1:0x28" or a
// periph bus name like "1:0x2A").
func New(path string) (*Transport, error) {
	busName, addr, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	// Ignore the error and run at the bus default speed.
	_ = bus.SetSpeed(maxClockFreq)

	return newTransport(bus, busName, addr), nil
}

func newTransport(bus i2c.BusCloser, busName string, addr uint16) *Transport {
	return &Transport{
		dev:     &i2c.Dev{Addr: addr, Bus: bus},
		bus:     bus,
		busName: busName,
		trace:   mfrc522.NewTraceBuffer(string(mfrc522.TransportI2C), busName, traceSize),
		timeout: 100 * time.Millisecond,
	}
}

// WriteRegister writes values to reg in one transfer.
func (t *Transport) WriteRegister(reg chip.Register, values []byte) error {
	if !reg.Valid() {
		return mfrc522.ErrInvalidRegister
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return mfrc522.NewTransportClosedError("WriteRegister", t.busName)
	}

	w := make([]byte, 1+len(values))
	w[0] = byte(reg)
	copy(w[1:], values)

	start := time.Now()
	if err := t.dev.Tx(w, nil); err != nil {
		t.trace.RecordFailure(mfrc522.TraceTX, reg, err.Error())
		mfrc522.Debugf("i2c %s: write %s failed: %v", t.busName, reg, err)
		return t.trace.WrapError(mfrc522.NewTransportError("WriteRegister", t.busName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportWrite, err), mfrc522.ErrorTypeTransient))
	}
	if err := t.checkElapsed("WriteRegister", mfrc522.TraceTX, reg, start); err != nil {
		return err
	}
	t.trace.RecordWrite(reg, values)
	return nil
}

// ReadRegister reads len(buf) bytes from reg in one combined transfer.
func (t *Transport) ReadRegister(reg chip.Register, buf []byte) error {
	if !reg.Valid() {
		return mfrc522.ErrInvalidRegister
	}
	if len(buf) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return mfrc522.NewTransportClosedError("ReadRegister", t.busName)
	}

	start := time.Now()
	if err := t.dev.Tx([]byte{byte(reg)}, buf); err != nil {
		t.trace.RecordFailure(mfrc522.TraceRX, reg, err.Error())
		mfrc522.Debugf("i2c %s: read %s failed: %v", t.busName, reg, err)
		return t.trace.WrapError(mfrc522.NewTransportError("ReadRegister", t.busName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportRead, err), mfrc522.ErrorTypeTransient))
	}
	if err := t.checkElapsed("ReadRegister", mfrc522.TraceRX, reg, start); err != nil {
		return err
	}
	t.trace.RecordRead(reg, buf)
	return nil
}

// checkElapsed fails a transfer that finished after the timeout. The bus
// driver cannot abort a transfer once started, so the check runs after
// it. A zero timeout disables the check.
func (t *Transport) checkElapsed(op string, dir mfrc522.TraceDirection, reg chip.Register, start time.Time) error {
	if t.timeout <= 0 {
		return nil
	}
	elapsed := time.Since(start)
	if elapsed <= t.timeout {
		return nil
	}
	t.trace.RecordFailure(dir, reg, "timeout after "+elapsed.String())
	mfrc522.Debugf("i2c %s: %s %s took %v (timeout %v)", t.busName, op, reg, elapsed, t.timeout)
	return t.trace.WrapError(mfrc522.NewTimeoutError(op, t.busName))
}

// SetTimeout sets the longest a single register transfer may take. A
// transfer that runs longer fails with mfrc522.ErrTransportTimeout.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
	return nil
}

// Close releases the I2C bus. Further transactions fail with
// mfrc522.ErrTransportClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bus == nil {
		return nil
	}
	err := t.bus.Close()
	t.bus = nil
	t.dev = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// IsConnected returns true until Close is called.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportI2C
}

// Address returns the 7-bit device address.
func (t *Transport) Address() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return 0
	}
	return t.dev.Addr
}

var _ mfrc522.Transport = (*Transport)(nil)
