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


// Command reader prints the cards presented to an MFRC522.
//
// By default it polls and prints each card's UID and type as it arrives.
// With -dump it dumps the memory of the next card, with -selftest it runs
// the chip's digital self test.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	_ "github.com/ZaparooProject/go-mfrc522/detection/i2c"
	_ "github.com/ZaparooProject/go-mfrc522/detection/spi"
	_ "github.com/ZaparooProject/go-mfrc522/detection/uart"
	"github.com/ZaparooProject/go-mfrc522/polling"
	"github.com/ZaparooProject/go-mfrc522/resetline"
	"github.com/ZaparooProject/go-mfrc522/transport/i2c"
	"github.com/ZaparooProject/go-mfrc522/transport/spi"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
)

type config struct {
	out        io.Writer
	devicePath string
	resetPin   string
	logDir     string
	retries    int
	debug      bool
	dump       bool
	selfTest   bool
	logToFile  bool
}

// Package-level flag variables
var (
	flagDevicePath string
	flagResetPin   string
	flagLogDir     string
	flagRetries    int
	flagDebug      bool
	flagDump       bool
	flagSelfTest   bool
	flagLog        bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "",
		"Device path, e.g. /dev/i2c-1:0x28, SPI0.0 or /dev/ttyUSB0@115200 (auto-detect if empty)")
	flag.StringVar(&flagResetPin, "reset", "", "GPIO driving the NRSTPD pin, e.g. GPIO25")
	flag.StringVar(&flagLogDir, "log-dir", "", "Directory for the session log (default: current directory)")
	flag.IntVar(&flagRetries, "retries", 3, "Connection attempts")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
	flag.BoolVar(&flagLog, "log", false, "Write debug output to a session log file")
	flag.BoolVar(&flagDump, "dump", false, "Dump the memory of the next card and exit")
	flag.BoolVar(&flagSelfTest, "selftest", false, "Run the chip self test and exit")
}

func parseConfig() *config {
	cfg := &config{
		out:        os.Stdout,
		devicePath: flagDevicePath,
		resetPin:   flagResetPin,
		logDir:     flagLogDir,
		retries:    flagRetries,
		debug:      flagDebug,
		dump:       flagDump,
		selfTest:   flagSelfTest,
		logToFile:  flagLog,
	}

	if cfg.debug {
		mfrc522.SetDebugEnabled(true)
	}

	return cfg
}

// newTransportFromDevice creates a new transport from a detected device.
func newTransportFromDevice(device detection.DeviceInfo) (mfrc522.Transport, error) {
	switch strings.ToLower(device.Transport) {
	case "uart":
		return newUARTTransport(device.Path)
	case "i2c":
		return newI2CTransport(device.Path)
	case "spi":
		return newSPITransport(device.Path)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
}

// newTransport picks the transport from the shape of path.
func newTransport(path string) (mfrc522.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}

	pathLower := strings.ToLower(path)
	switch {
	case strings.Contains(pathLower, "i2c"):
		return newI2CTransport(path)
	case strings.Contains(pathLower, "spi"):
		return newSPITransport(path)
	default:
		return newUARTTransport(path)
	}
}

func newI2CTransport(path string) (mfrc522.Transport, error) {
	transport, err := i2c.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create I2C transport for %s: %w", path, err)
	}
	return transport, nil
}

func newSPITransport(path string) (mfrc522.Transport, error) {
	transport, err := spi.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
	}
	return transport, nil
}

func newUARTTransport(path string) (mfrc522.Transport, error) {
	transport, err := uart.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
	}
	return transport, nil
}

// connectOptions builds the ConnectDevice options for cfg. The reset line,
// when configured, is opened here and owned by the device.
func connectOptions(cfg *config) ([]mfrc522.ConnectOption, error) {
	opts := []mfrc522.ConnectOption{
		mfrc522.WithConnectTimeout(5 * time.Second),
		mfrc522.WithDeviceOptions(mfrc522.WithDiagnostics(cfg.out)),
	}

	if cfg.retries > 0 {
		opts = append(opts, mfrc522.WithConnectionRetries(cfg.retries))
	}

	if cfg.devicePath == "" {
		opts = append(opts,
			mfrc522.WithAutoDetection(),
			mfrc522.WithTransportFromDeviceFactory(newTransportFromDevice))
	} else {
		opts = append(opts, mfrc522.WithTransportFactory(newTransport))
	}

	if cfg.resetPin != "" {
		pin, err := resetline.Open(cfg.resetPin)
		if err != nil {
			return nil, fmt.Errorf("failed to open reset line: %w", err)
		}
		opts = append(opts, mfrc522.WithDeviceOptions(mfrc522.WithResetLine(pin)))
	}
	return opts, nil
}

func connectToDevice(ctx context.Context, cfg *config) (*mfrc522.Device, error) {
	opts, err := connectOptions(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.debug {
		if cfg.devicePath == "" {
			_, _ = fmt.Fprintln(cfg.out, "Auto-detecting MFRC522 devices...")
		} else {
			_, _ = fmt.Fprintf(cfg.out, "Opening device: %s\n", cfg.devicePath)
		}
	}

	device, err := mfrc522.ConnectDevice(ctx, cfg.devicePath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MFRC522 device: %w", err)
	}

	if cfg.debug {
		_ = device.DumpVersion(ctx)
	}
	return device, nil
}

func runSelfTest(ctx context.Context, device *mfrc522.Device, cfg *config) error {
	if err := device.DumpVersion(ctx); err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}

	ok, err := device.SelfTest(ctx)
	if err != nil {
		return fmt.Errorf("self test failed: %w", err)
	}
	if !ok {
		return errors.New("self test result does not match the reference for this chip version")
	}
	_, _ = fmt.Fprintln(cfg.out, "Self test passed")
	return nil
}

func runDumpMode(ctx context.Context, device *mfrc522.Device, cfg *config) error {
	session := polling.NewSession(device, polling.DefaultConfig())
	defer func() {
		if err := session.Close(); err != nil && cfg.debug {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close session: %v\n", err)
		}
	}()

	_, _ = fmt.Fprintln(cfg.out, "Place a card near the reader to dump it...")
	err := session.WithNextCard(ctx, func(ctx context.Context, dev *mfrc522.Device, uid *mfrc522.UID) error {
		return dev.DumpCard(ctx, uid, dumpKey(ctx, dev, uid, cfg))
	})
	if err != nil {
		return fmt.Errorf("dump failed: %w", err)
	}
	return nil
}

// dumpKey picks the key A for dumping a MIFARE Classic card from
// mfrc522.CommonKeys, tried on the sector 0 trailer. It falls back to the
// default key.
func dumpKey(ctx context.Context, dev *mfrc522.Device, uid *mfrc522.UID, cfg *config) mfrc522.Key {
	if !uid.Type().IsMifareClassic() {
		return mfrc522.DefaultKey
	}
	key, err := dev.FindKeyA(ctx, uid, 3, mfrc522.CommonKeys)
	if err != nil {
		_, _ = fmt.Fprintf(cfg.out, "No common key opens sector 0 (%v), trying the default key\n", err)
		return mfrc522.DefaultKey
	}
	_, _ = fmt.Fprintf(cfg.out, "Using key A % X\n", key[:])
	return key
}

func runReadMode(ctx context.Context, device *mfrc522.Device, cfg *config) error {
	session := polling.NewSession(device, polling.DefaultConfig())
	session.SetRecoverer(polling.NewDefaultRecoverer(device,
		func(ctx context.Context) (*mfrc522.Device, error) {
			return connectToDevice(ctx, cfg)
		}, 0, 0))

	defer func() {
		if err := session.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close session: %v\n", err)
		}
		// A reopened device replaces the one run closes.
		if current := session.GetDevice(); current != device {
			_ = current.Close()
		}
	}()

	_, _ = fmt.Fprintln(cfg.out, "Starting continuous card monitoring. Press Ctrl+C to stop...")

	session.SetOnCardDetected(func(uid *mfrc522.UID) error {
		_, _ = fmt.Fprintf(cfg.out, "Card detected: UID=%s Type=%s\n", uid, uid.Type())
		return nil
	})
	session.SetOnCardChanged(func(uid *mfrc522.UID) error {
		_, _ = fmt.Fprintf(cfg.out, "Card changed: UID=%s Type=%s\n", uid, uid.Type())
		return nil
	})
	session.SetOnCardRemoved(func() {
		_, _ = fmt.Fprintln(cfg.out, "Card removed - ready for next card...")
	})

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("polling failed: %w", err)
	}
	return nil
}

func run(ctx context.Context, cfg *config) error {
	device, err := connectToDevice(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := device.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
		}
	}()

	return runMode(ctx, device, cfg)
}

func runMode(ctx context.Context, device *mfrc522.Device, cfg *config) error {
	switch {
	case cfg.selfTest:
		return runSelfTest(ctx, device, cfg)
	case cfg.dump:
		return runDumpMode(ctx, device, cfg)
	default:
		return runReadMode(ctx, device, cfg)
	}
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg := parseConfig()

	if cfg.logToFile {
		path, err := mfrc522.InitSessionLog(cfg.logDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer func() { _ = mfrc522.CloseSessionLog() }()
		_, _ = fmt.Fprintf(os.Stderr, "Logging to %s\n", path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
