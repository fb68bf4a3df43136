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


// Package uart detects MFRC522 readers on serial ports. Importing it
// registers the detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
)

const probeTimeout = 2 * time.Second

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// USB serial bridges found on RC522 UART boards.
var knownBridges = []string{
	"1A86:7523", // QinHeng CH340
	"10C4:EA60", // Silicon Labs CP210x
	"0403:6001", // FTDI FT232
	"067B:2303", // Prolific PL2303
}

var readerKeywords = []string{"rc522", "mfrc522", "rfid", "nfc", "13.56"}

type detector struct {
	ports func() ([]serialPort, error)
	probe func(ctx context.Context, path string, mode detection.Mode) (mfrc522.ProbeResult, error)
}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{ports: listPorts, probe: probePort}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports, drops blocked and ignored ones and probes the
// rest one at a time. Passive mode reports likely adapters without opening
// them.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.ports()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for i := range ports {
		if ctx.Err() != nil {
			break
		}
		port := &ports[i]
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// processPort decides whether port is reported. A port whose probe fails
// is never reported, whatever its descriptor says.
func (d *detector) processPort(
	ctx context.Context,
	port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	likely := isLikelyReader(port)
	if opts.Mode == detection.Passive {
		if !likely {
			return detection.DeviceInfo{}, false
		}
		device := newDeviceInfo(port)
		device.Confidence = detection.Medium
		return device, true
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	result, err := d.probe(probeCtx, port.Path, opts.Mode)
	if err != nil {
		mfrc522.Debugf("uart detect: %s: %v", port.Path, err)
		return detection.DeviceInfo{}, false
	}

	device := newDeviceInfo(port)
	device.Confidence = result.Confidence
	for k, v := range result.Metadata() {
		device.Metadata[k] = v
	}
	return device, true
}

func newDeviceInfo(port *serialPort) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport: "uart",
		Path:      port.Path,
		Name:      port.Name,
		Metadata:  make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Manufacturer != "" {
		device.Metadata["manufacturer"] = port.Manufacturer
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// isLikelyReader reports whether the port's descriptors look like an RC522
// board.
func isLikelyReader(port *serialPort) bool {
	vidpid := strings.ToUpper(port.VIDPID)
	for _, known := range knownBridges {
		if vidpid == known {
			return true
		}
	}

	product := strings.ToLower(port.Product + " " + port.Manufacturer)
	for _, keyword := range readerKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}

// probePort opens path at the power-on baud rate and probes it once.
func probePort(ctx context.Context, path string, mode detection.Mode) (mfrc522.ProbeResult, error) {
	transport, err := uart.New(path)
	if err != nil {
		return mfrc522.ProbeResult{}, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = transport.Close() }()

	return mfrc522.ProbeTransport(ctx, transport, mode)
}
