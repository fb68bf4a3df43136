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
	"io"
	"time"

	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/ZaparooProject/go-mfrc522/detection"
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures retry behavior when bringing the device up
	RetryConfig *RetryConfig
	// Timeout is the per-transaction timeout handed to the transport
	Timeout time.Duration
	// CommandTimeout bounds the interrupt poll of a single PCD command.
	// The chip timer fires after 25 ms, so this only matters when the
	// chip stops answering.
	CommandTimeout time.Duration
	// CRCTimeout bounds the CRC coprocessor poll
	CRCTimeout time.Duration
	// ResetDelay is the wait after a soft reset before polling PowerDown
	ResetDelay time.Duration
	// HardResetDelay is the oscillator start-up wait after releasing the reset line
	HardResetDelay time.Duration
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:    DefaultRetryConfig(),
		Timeout:        1 * time.Second,
		CommandTimeout: 36 * time.Millisecond,
		CRCTimeout:     89 * time.Millisecond,
		ResetDelay:     50 * time.Millisecond,
		HardResetDelay: 100 * time.Millisecond,
	}
}

// ResetLine controls the NRSTPD pin of the chip. Driving it low powers the
// chip down; releasing it high starts the oscillator and resets the chip.
type ResetLine interface {
	// Assert drives the line low
	Assert() error
	// Release drives the line high
	Release() error
	// Level reads the current level, true for high
	Level() (bool, error)
}

// Device is a handle on one MFRC522.
//
// Thread Safety: Device is NOT thread-safe. All methods must be called from
// a single goroutine or protected with external synchronization. Every
// operation is a sequence of register transactions that must not interleave
// with another one on the same chip. Separate chips on separate transports
// can be driven concurrently through separate Device values.
type Device struct {
	transport Transport
	resetLine ResetLine
	config    *DeviceConfig
	diag      io.Writer
}

// New creates a new MFRC522 device with the given transport. The chip is
// not touched until Init is called.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
		diag:      io.Discard,
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)
	deviceOptions          []Option
	timeout                time.Duration
	autoDetect             bool
	connectionRetries      int
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectTimeout sets the transport timeout used while connecting
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection retry attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		timeout:           time.Second,
		connectionRetries: 3,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

// ConnectDevice opens a transport for path (or the first detected reader
// when auto-detection is enabled), creates a Device on it and initialises
// the chip. Initialisation is retried for manual connections.
//
// Example usage:
//
//	device, err := mfrc522.ConnectDevice(ctx, "/dev/i2c-1:0x28",
//	    mfrc522.WithTransportFactory(func(path string) (mfrc522.Transport, error) {
//	        return i2c.New(path)
//	    }))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, err
	}

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := setupDeviceWithRetry(ctx, transport, config)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return device, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
	}
	return createManualTransport(path, config.transportFactory)
}

func setupDevice(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if config.timeout > 0 {
		if err := device.SetTimeout(config.timeout); err != nil {
			return nil, fmt.Errorf("failed to set timeout: %w", err)
		}
	}

	if err := device.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}

	version, err := device.Version(ctx)
	if err != nil {
		return nil, err
	}
	debugf("connected to MFRC522 %s (0x%02X) over %s", version, byte(version), transport.Type())

	return device, nil
}

// setupDeviceWithRetry wraps setupDevice with retry logic for connection attempts
func setupDeviceWithRetry(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	if config.autoDetect {
		return setupDevice(ctx, transport, config)
	}

	retryConfig := &RetryConfig{
		MaxAttempts:       config.connectionRetries,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      10 * time.Second,
	}

	var device *Device
	err := RetryWithConfig(ctx, retryConfig, func() error {
		var err error
		device, err = setupDevice(ctx, transport, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup device after %d attempts: %w", config.connectionRetries, err)
	}

	return device, nil
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of devices
func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) (Transport, error) {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	var devices []detection.DeviceInfo
	var err error

	if detector != nil {
		devices, err = detector(ctx, &opts)
	} else {
		devices, err = detection.DetectAll(ctx, &opts)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: no MFRC522 readers found", ErrDeviceNotFound)
	}

	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	return factory(devices[0])
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Config returns the active configuration. Callers must not modify it.
func (d *Device) Config() DeviceConfig {
	return *d.config
}

// SetTimeout sets the per-transaction transport timeout
func (d *Device) SetTimeout(timeout time.Duration) error {
	d.config.Timeout = timeout
	if err := d.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on transport: %w", err)
	}
	return nil
}

// SetRetryConfig updates the retry configuration
func (d *Device) SetRetryConfig(config *RetryConfig) {
	d.config.RetryConfig = config
	if tr, ok := d.transport.(*TransportWithRetry); ok {
		tr.SetRetryConfig(config)
	}
}

// Init brings the chip into a known state: a hard reset through the reset
// line when the chip is powered down, a soft reset otherwise, then the
// timer, modulation and CRC preset configuration, and finally the antenna.
func (d *Device) Init(ctx context.Context) error {
	hardReset, err := d.hardResetIfPoweredDown(ctx)
	if err != nil {
		return err
	}
	if !hardReset {
		if err := d.Reset(ctx); err != nil {
			return err
		}
	}

	// f_timer = 13.56 MHz / (2*TPreScaler+1). TPrescaler 0x0A9 gives 40 kHz,
	// a 25 us period, and a reload of 1000 gives the 25 ms receive timeout.
	err = d.writeRegisters(
		registerWrite{chip.TModeReg, 0x80}, // TAuto: start the timer at the end of every transmission
		registerWrite{chip.TPrescalerReg, 0xA9},
		registerWrite{chip.TReloadRegH, 0x03},
		registerWrite{chip.TReloadRegL, 0xE8},
		registerWrite{chip.TxASKReg, 0x40}, // force 100% ASK
		registerWrite{chip.ModeReg, 0x3D},  // CRC preset 0x6363
	)
	if err != nil {
		return err
	}

	return d.AntennaOn()
}

// hardResetIfPoweredDown releases the reset line when the chip is held in
// power down. It reports whether a hard reset took place.
func (d *Device) hardResetIfPoweredDown(ctx context.Context) (bool, error) {
	if d.resetLine == nil {
		return false, nil
	}

	high, err := d.resetLine.Level()
	if err != nil {
		return false, fmt.Errorf("failed to read reset line: %w", err)
	}
	if high {
		return false, nil
	}

	debugln("MFRC522 in power down, releasing reset line")
	if err := d.resetLine.Release(); err != nil {
		return false, fmt.Errorf("failed to release reset line: %w", err)
	}
	if err := sleepCtx(ctx, d.config.HardResetDelay); err != nil {
		return false, err
	}
	return true, nil
}

// HardReset pulses the reset line and waits for the oscillator to start.
// Without a reset line it falls back to a soft reset. Registers are back at
// their reset values afterwards; call Init to configure the chip again.
func (d *Device) HardReset(ctx context.Context) error {
	if d.resetLine == nil {
		return d.Reset(ctx)
	}
	if err := d.resetLine.Assert(); err != nil {
		return fmt.Errorf("failed to assert reset line: %w", err)
	}
	// NRSTPD must stay low for at least 100 ns.
	if err := sleepCtx(ctx, time.Millisecond); err != nil {
		return err
	}
	if err := d.resetLine.Release(); err != nil {
		return fmt.Errorf("failed to release reset line: %w", err)
	}
	return sleepCtx(ctx, d.config.HardResetDelay)
}

// maxPowerDownPolls bounds the wait for PowerDown to clear after SoftReset.
const maxPowerDownPolls = 3

// Reset issues SoftReset and waits for the chip to come back.
func (d *Device) Reset(ctx context.Context) error {
	if err := d.WriteRegister(chip.CommandReg, byte(chip.SoftReset)); err != nil {
		return err
	}

	// The oscillator start-up time is the crystal start-up time plus 37.74 us.
	for range maxPowerDownPolls {
		if err := sleepCtx(ctx, d.config.ResetDelay); err != nil {
			return err
		}
		cmd, err := d.ReadRegister(chip.CommandReg)
		if err != nil {
			return err
		}
		if cmd&chip.PowerDown == 0 {
			return nil
		}
		debugln("MFRC522 still restarting after SoftReset")
	}
	return StatusTimeout
}

// Close closes the transport, and the reset line when it can be closed.
func (d *Device) Close() error {
	var errs []error
	if closer, ok := d.resetLine.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close reset line: %w", err))
		}
	}
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
		}
	}
	return errors.Join(errs...)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
