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


// Package i2c detects MFRC522 readers on I2C buses. Importing it registers
// the detector with the detection package.
package i2c

import (
	"context"
	"fmt"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	i2ctransport "github.com/ZaparooProject/go-mfrc522/transport/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// The address pins select 0x28 to 0x2F.
const (
	firstAddress = 0x28
	lastAddress  = 0x2F
	probeTimeout = time.Second
)

type detector struct {
	buses func() ([]string, error)
	open  func(path string) (mfrc522.Transport, error)
}

// New creates a new I2C detector
func New() detection.Detector {
	return &detector{buses: listBuses, open: openTransport}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

func listBuses() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	refs := i2creg.All()
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.Name)
	}
	return names, nil
}

func openTransport(path string) (mfrc522.Transport, error) {
	return i2ctransport.New(path)
}

// Detect probes every MFRC522 address on every bus. Passive mode reports
// the default address of each bus without touching it.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := d.buses()
	if err != nil {
		return nil, err
	}
	if len(buses) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		for addr := uint16(firstAddress); addr <= lastAddress; addr++ {
			if ctx.Err() != nil {
				if len(devices) > 0 {
					return devices, nil
				}
				return nil, detection.ErrDetectionTimeout
			}
			if opts.Mode == detection.Passive && addr != i2ctransport.DefaultAddress {
				continue
			}
			if device, ok := d.probeAddress(ctx, bus, addr, opts); ok {
				devices = append(devices, device)
			}
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func (d *detector) probeAddress(
	ctx context.Context,
	bus string,
	addr uint16,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	path := fmt.Sprintf("%s:0x%02X", bus, addr)
	if detection.IsPathIgnored(path, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	device := detection.DeviceInfo{
		Transport:  "i2c",
		Path:       path,
		Name:       fmt.Sprintf("MFRC522 on %s at 0x%02X", bus, addr),
		Confidence: detection.Low,
		Metadata: map[string]string{
			"bus":     bus,
			"address": fmt.Sprintf("0x%02X", addr),
		},
	}
	if opts.Mode == detection.Passive {
		return device, true
	}

	transport, err := d.open(path)
	if err != nil {
		mfrc522.Debugf("i2c detect: open %s: %v", path, err)
		return detection.DeviceInfo{}, false
	}
	defer func() { _ = transport.Close() }()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	result, err := mfrc522.ProbeTransport(probeCtx, transport, opts.Mode)
	if err != nil {
		return detection.DeviceInfo{}, false
	}

	device.Confidence = result.Confidence
	for k, v := range result.Metadata() {
		device.Metadata[k] = v
	}
	return device, true
}
