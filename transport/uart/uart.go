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


// Package uart provides the UART register port for the MFRC522.
//
// The chip's UART protocol is byte oriented. A read is one address byte
// with bit 7 set, answered by the register value. A write is the address
// byte followed by the data byte, answered by an echo of the address. The
// chip always starts at 9600 baud.
package uart

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the rate the chip uses after reset.
	DefaultBaudRate = 9600

	readFlag  = 0x80
	addrMask  = 0x3F
	traceSize = 32
)

// serialSpeeds maps supported baud rates to SerialSpeedReg values
// (BR_T0 in bits 7..5, BR_T1 in bits 4..0).
var serialSpeeds = map[int]byte{
	7200:    0xFA,
	9600:    0xEB,
	14400:   0xDA,
	19200:   0xCB,
	38400:   0xAB,
	57600:   0x9A,
	115200:  0x7A,
	128000:  0x74,
	230400:  0x5A,
	460800:  0x3A,
	921600:  0x1C,
	1228800: 0x15,
}

// Transport implements mfrc522.Transport over a serial port.
type Transport struct {
	port     serial.Port
	trace    *mfrc522.TraceBuffer
	portName string
	timeout  time.Duration
	baudRate int
	mu       syncutil.Mutex
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// defaultTimeout is the time allowed for a whole transaction. Windows
// serial drivers deliver bytes late.
func defaultTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// ParsePath splits "<port>[@<baud>]" into the port name and baud rate.
func ParsePath(path string) (portName string, baud int, err error) {
	portName, baudStr, found := strings.Cut(path, "@")
	if portName == "" {
		return "", 0, fmt.Errorf("%w: empty serial port in %q", mfrc522.ErrInvalidParameter, path)
	}
	if !found {
		return portName, DefaultBaudRate, nil
	}

	baud, err = strconv.Atoi(baudStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad baud rate %q: %w", mfrc522.ErrInvalidParameter, baudStr, err)
	}
	if _, ok := serialSpeeds[baud]; !ok {
		return "", 0, fmt.Errorf("%w: unsupported baud rate %d", mfrc522.ErrInvalidParameter, baud)
	}
	return portName, baud, nil
}

func serialMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// New opens the serial port in path ("/dev/ttyUSB0" or "COM3@115200").
// When a baud rate other than 9600 is given, the chip is switched to it
// through SerialSpeedReg.
func New(path string) (*Transport, error) {
	portName, baud, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(portName, serialMode(DefaultBaudRate))
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := newTransport(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	if baud != DefaultBaudRate {
		if err := t.SetBaudRate(baud); err != nil {
			_ = port.Close()
			return nil, err
		}
	}
	return t, nil
}

func newTransport(port serial.Port, portName string) (*Transport, error) {
	t := &Transport{
		port:     port,
		portName: portName,
		baudRate: DefaultBaudRate,
		timeout:  defaultTimeout(),
		trace:    mfrc522.NewTraceBuffer(string(mfrc522.TransportUART), portName, traceSize),
	}
	if err := port.SetReadTimeout(t.timeout); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return t, nil
}

// SetBaudRate switches chip and host to baud. The chip changes speed as
// soon as SerialSpeedReg is written, so its echo is lost.
func (t *Transport) SetBaudRate(baud int) error {
	speed, ok := serialSpeeds[baud]
	if !ok {
		return fmt.Errorf("%w: unsupported baud rate %d", mfrc522.ErrInvalidParameter, baud)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return mfrc522.NewTransportClosedError("SetBaudRate", t.portName)
	}
	if _, err := t.port.Write([]byte{byte(chip.SerialSpeedReg), speed}); err != nil {
		return mfrc522.NewTransportError("SetBaudRate", t.portName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportWrite, err), mfrc522.ErrorTypeTransient)
	}
	if err := t.drainWithRetry("baud rate"); err != nil {
		return err
	}
	// Let the last stop bit out before the host switches.
	time.Sleep(2 * time.Millisecond)

	if err := t.port.SetMode(serialMode(baud)); err != nil {
		return fmt.Errorf("failed to set UART baud rate %d: %w", baud, err)
	}
	_ = t.port.ResetInputBuffer()
	t.baudRate = baud
	mfrc522.Debugf("uart %s: switched to %d baud", t.portName, baud)
	return nil
}

// BaudRate returns the current baud rate.
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baudRate
}

// WriteRegister writes values to reg, one address and data pair per value,
// and checks every address echo.
func (t *Transport) WriteRegister(reg chip.Register, values []byte) error {
	if !reg.Valid() {
		return mfrc522.ErrInvalidRegister
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return mfrc522.NewTransportClosedError("WriteRegister", t.portName)
	}
	if len(values) == 0 {
		return nil
	}

	addr := byte(reg) & addrMask
	w := make([]byte, 0, 2*len(values))
	for _, v := range values {
		w = append(w, addr, v)
	}
	if err := t.write(w); err != nil {
		t.trace.RecordFailure(mfrc522.TraceTX, reg, err.Error())
		return t.fail("WriteRegister", reg, err)
	}

	echo := make([]byte, len(values))
	if err := t.readFull(echo); err != nil {
		t.trace.RecordFailure(mfrc522.TraceRX, reg, "echo: "+err.Error())
		return t.fail("WriteRegister", reg, err)
	}
	for _, b := range echo {
		if b != addr {
			t.trace.RecordFailure(mfrc522.TraceRX, reg, fmt.Sprintf("echo 0x%02X", b))
			return t.fail("WriteRegister", reg, mfrc522.NewEchoMismatchError("WriteRegister", t.portName))
		}
	}

	t.trace.RecordWrite(reg, values)
	return nil
}

// ReadRegister reads len(buf) values from reg.
func (t *Transport) ReadRegister(reg chip.Register, buf []byte) error {
	if !reg.Valid() {
		return mfrc522.ErrInvalidRegister
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return mfrc522.NewTransportClosedError("ReadRegister", t.portName)
	}
	if len(buf) == 0 {
		return nil
	}

	w := make([]byte, len(buf))
	for i := range w {
		w[i] = byte(reg)&addrMask | readFlag
	}
	if err := t.write(w); err != nil {
		t.trace.RecordFailure(mfrc522.TraceTX, reg, err.Error())
		return t.fail("ReadRegister", reg, err)
	}
	if err := t.readFull(buf); err != nil {
		t.trace.RecordFailure(mfrc522.TraceRX, reg, err.Error())
		return t.fail("ReadRegister", reg, err)
	}

	t.trace.RecordRead(reg, buf)
	return nil
}

// fail resynchronises the byte stream after a broken transaction and wraps
// err with the wire trace.
//
//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) fail(op string, reg chip.Register, err error) error {
	mfrc522.Debugf("uart %s: %s %s failed: %v", t.portName, op, reg, err)
	_ = t.port.ResetInputBuffer()
	return t.trace.WrapError(err)
}

func (t *Transport) write(data []byte) error {
	n, err := t.port.Write(data)
	if err != nil {
		return mfrc522.NewTransportError("write", t.portName,
			fmt.Errorf("%w: %w", mfrc522.ErrTransportWrite, err), mfrc522.ErrorTypeTransient)
	}
	if n != len(data) {
		return mfrc522.NewTransportWriteError("write", t.portName)
	}
	return t.drainWithRetry("write")
}

// readFull reads exactly len(buf) bytes within the transaction timeout.
func (t *Transport) readFull(buf []byte) error {
	deadline := time.Now().Add(t.timeout)
	got := 0
	for got < len(buf) {
		n, err := t.port.Read(buf[got:])
		if err != nil {
			return mfrc522.NewTransportError("read", t.portName,
				fmt.Errorf("%w: %w", mfrc522.ErrTransportRead, err), mfrc522.ErrorTypeTransient)
		}
		got += n
		if got < len(buf) && time.Now().After(deadline) {
			return mfrc522.NewTimeoutError("read", t.portName)
		}
	}
	return nil
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for the output to be sent, retrying interrupted
// system calls.
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}
		return fmt.Errorf("UART %s drain failed: %w", operation, err)
	}
	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

// SetTimeout sets the time allowed for one register transaction.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return mfrc522.NewTransportClosedError("SetTimeout", t.portName)
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	t.timeout = timeout
	return nil
}

// Close closes the serial port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true until Close is called.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() mfrc522.TransportType {
	return mfrc522.TransportUART
}

var _ mfrc522.Transport = (*Transport)(nil)
