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
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// Error categories for better error handling and retry logic
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportClosed   = errors.New("transport is closed")
	ErrTransportNotReady = errors.New("transport not ready")
	ErrEchoMismatch      = errors.New("register address echo mismatch")

	// Device errors - generally not retryable
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceNotSupported = errors.New("device not supported")
	ErrSelfTestFailed     = errors.New("self test output does not match reference")
	ErrKeyNotFound        = errors.New("no key authenticates the block")

	// Data errors - not retryable
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDataTooLarge     = errors.New("data too large")
	ErrInvalidRegister  = errors.New("register address out of range")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// BusError reports a register transaction the Transport could not complete.
// It matches StatusBusError with errors.Is and unwraps to the transport error.
type BusError struct {
	Err   error
	Op    string
	Reg   chip.Register
	Bytes int
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%s %s (%d bytes): %v", e.Op, e.Reg, e.Bytes, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// Is reports StatusBusError as a match.
func (*BusError) Is(target error) bool {
	s, ok := target.(Status)
	return ok && s == StatusBusError
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	var s Status
	if errors.As(err, &s) {
		switch s {
		case StatusTimeout, StatusCollision, StatusCRCWrong:
			return true
		default:
			return false
		}
	}

	// Check for known retryable errors
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrEchoMismatch):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device/connection is gone
// and polling should stop entirely. This is distinct from IsRetryable which
// indicates whether a single operation can be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrDeviceNotSupported),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
// These are defined here because they're not available on non-Windows platforms.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors indicating device disconnection,
// such as a USB serial adapter unplugged mid-transaction.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}

	return false
}

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportWrite, ErrorTypeTransient)
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportRead, ErrorTypeTransient)
}

// NewDataTooLargeError creates a data too large error (permanent)
func NewDataTooLargeError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// NewEchoMismatchError reports a UART address echo that did not match (transient)
func NewEchoMismatchError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrEchoMismatch, ErrorTypeTransient)
}

// NewTransportClosedError creates a closed transport error (permanent)
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// =============================================================================
// Wire Trace Logging
// =============================================================================
// TraceableError embeds register-level trace data in errors, allowing consumer
// applications to see the bus traffic that led up to a failure.

// TraceDirection indicates the direction of wire data
type TraceDirection string

const (
	// TraceTX indicates a register write
	TraceTX TraceDirection = "TX"
	// TraceRX indicates a register read
	TraceRX TraceDirection = "RX"
)

// TraceEntry represents a single register transaction
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
	Reg       chip.Register
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	line := fmt.Sprintf("[%s] %s %s: %s",
		e.Timestamp.Format("15:04:05.000"), e.Direction, e.Reg, formatHexBytes(e.Data))
	if e.Note != "" {
		line += " (" + e.Note + ")"
	}
	return line
}

// TraceableError wraps an error with register trace data for debugging.
// Consumer applications can use errors.As() to extract trace information:
//
//	var te *mfrc522.TraceableError
//	if errors.As(err, &te) {
//	    log.Printf("Register trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

// Error implements the error interface
func (e *TraceableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace returns a human-readable formatted trace log
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Register trace (%d entries):\n", e.Transport, e.Port, len(e.Trace))

	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		_, _ = fmt.Fprintf(&sb, "  %s %-17s %s", direction, entry.Reg, formatHexBytes(entry.Data))
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, " (%s)", entry.Note)
		}
		_ = sb.WriteByte('\n')
	}

	return sb.String()
}

// formatHexBytes formats a byte slice as space-separated hex values
func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	limit := len(data)
	if limit > 32 {
		limit = 32
	}
	parts := make([]string, limit)
	for i := range limit {
		parts[i] = fmt.Sprintf("%02X", data[i])
	}
	if len(data) > limit {
		return strings.Join(parts, " ") + fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return strings.Join(parts, " ")
}

// TraceBuffer collects the most recent register transactions of a transport.
// It is a fixed-size ring so it can stay enabled for the whole session.
type TraceBuffer struct {
	transport string
	port      string
	entries   []TraceEntry
	maxSize   int
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(transport, port string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 32
	}
	return &TraceBuffer{
		entries:   make([]TraceEntry, 0, maxSize),
		maxSize:   maxSize,
		transport: transport,
		port:      port,
	}
}

// RecordWrite records a register write
func (tb *TraceBuffer) RecordWrite(reg chip.Register, data []byte) {
	tb.record(TraceTX, reg, data, "")
}

// RecordRead records a register read
func (tb *TraceBuffer) RecordRead(reg chip.Register, data []byte) {
	tb.record(TraceRX, reg, data, "")
}

// RecordFailure records a transaction that did not complete
func (tb *TraceBuffer) RecordFailure(dir TraceDirection, reg chip.Register, note string) {
	tb.record(dir, reg, nil, "FAILED: "+note)
}

func (tb *TraceBuffer) record(dir TraceDirection, reg chip.Register, data []byte, note string) {
	entry := TraceEntry{
		Direction: dir,
		Reg:       reg,
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
		Note:      note,
	}

	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
		return
	}
	tb.entries = append(tb.entries, entry)
}

// Entries returns a copy of the recorded entries, oldest first.
func (tb *TraceBuffer) Entries() []TraceEntry {
	return append([]TraceEntry(nil), tb.entries...)
}

// WrapError wraps an error with the collected trace data.
// Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Trace:     tb.Entries(),
		Transport: tb.transport,
		Port:      tb.port,
	}
}

// Clear resets the trace buffer
func (tb *TraceBuffer) Clear() {
	tb.entries = tb.entries[:0]
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
