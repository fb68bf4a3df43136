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


// Package spi detects MFRC522 readers on SPI ports. SPI has no presence
// signal, so ports come from a JSON config file, the environment and the
// ports periph.io knows about. Importing the package registers the
// detector with the detection package.
package spi

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/transport/spi"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	envDevice    = "MFRC522_SPI_DEVICE"
	envFrequency = "MFRC522_SPI_HZ"
	probeTimeout = 2 * time.Second
)

// Config describes one SPI port to probe.
type Config struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	// Device is a periph port name or alias, e.g. "/dev/spidev0.0"
	Device string `json:"device"`
	Name   string `json:"name,omitempty"`
	// FrequencyHz overrides the 4 MHz default clock
	FrequencyHz int64 `json:"frequency_hz,omitempty"`
}

type detector struct {
	configs func() []Config
	probe   func(ctx context.Context, config Config, mode detection.Mode) (mfrc522.ProbeResult, error)
}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{configs: gatherConfigs, probe: probePort}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// Detect probes every configured port. Passive mode reports them all with
// low confidence.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	configs := d.configs()
	if len(configs) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, config := range configs {
		if ctx.Err() != nil {
			break
		}
		if detection.IsPathIgnored(config.Device, opts.IgnorePaths) {
			continue
		}

		device := newDeviceInfo(config)
		if opts.Mode != detection.Passive {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			result, err := d.probe(probeCtx, config, opts.Mode)
			cancel()
			if err != nil {
				mfrc522.Debugf("spi detect: %s: %v", config.Device, err)
				continue
			}
			device.Confidence = result.Confidence
			for k, v := range result.Metadata() {
				device.Metadata[k] = v
			}
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func newDeviceInfo(config Config) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "spi",
		Path:       config.Device,
		Name:       config.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string, len(config.Metadata)+1),
	}
	for k, v := range config.Metadata {
		device.Metadata[k] = v
	}
	if config.FrequencyHz > 0 {
		device.Metadata["frequency_hz"] = strconv.FormatInt(config.FrequencyHz, 10)
	}
	if device.Name == "" {
		device.Name = "SPI device at " + config.Device
	}
	return device
}

// configPaths are searched in order; the first readable file wins.
func configPaths() []string {
	paths := []string{"mfrc522-spi.json", ".mfrc522-spi.json"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mfrc522", "spi.json"))
	}
	return append(paths, "/etc/mfrc522/spi.json")
}

func gatherConfigs() []Config {
	var configs []Config
	configs = append(configs, loadConfigFile(configPaths())...)
	if env := loadEnvConfig(os.Getenv); env != nil {
		configs = append(configs, *env)
	}
	configs = append(configs, registeredPorts()...)
	return deduplicateConfigs(configs)
}

// loadConfigFile reads a list of configs, or a single config, from the
// first readable path.
func loadConfigFile(paths []string) []Config {
	for _, path := range paths {
		data, err := os.ReadFile(path) // #nosec G304 -- fixed search path
		if err != nil {
			continue
		}

		var configs []Config
		if err := json.Unmarshal(data, &configs); err == nil {
			return configs
		}
		var config Config
		if err := json.Unmarshal(data, &config); err == nil && config.Device != "" {
			return []Config{config}
		}
		mfrc522.Debugf("spi detect: ignoring malformed %s", path)
	}
	return nil
}

func loadEnvConfig(getenv func(string) string) *Config {
	device := getenv(envDevice)
	if device == "" {
		return nil
	}
	config := &Config{Device: device, Name: "SPI device from environment"}
	if hz, err := strconv.ParseInt(getenv(envFrequency), 10, 64); err == nil && hz > 0 {
		config.FrequencyHz = hz
	}
	return config
}

// registeredPorts lists the SPI ports periph.io registered for this host.
func registeredPorts() []Config {
	if _, err := host.Init(); err != nil {
		return nil
	}
	var configs []Config
	for _, ref := range spireg.All() {
		name := ref.Name
		if len(ref.Aliases) > 0 {
			name = ref.Aliases[0]
		}
		configs = append(configs, Config{
			Device: name,
			Name:   fmt.Sprintf("SPI port %s", ref.Name),
		})
	}
	return configs
}

func deduplicateConfigs(configs []Config) []Config {
	seen := make(map[string]bool, len(configs))
	var unique []Config
	for _, config := range configs {
		if seen[config.Device] {
			continue
		}
		seen[config.Device] = true
		unique = append(unique, config)
	}
	return unique
}

func probePort(ctx context.Context, config Config, mode detection.Mode) (mfrc522.ProbeResult, error) {
	freq := spi.DefaultFrequency
	if config.FrequencyHz > 0 {
		freq = physic.Frequency(config.FrequencyHz) * physic.Hertz
	}
	transport, err := spi.NewWithFrequency(config.Device, freq)
	if err != nil {
		return mfrc522.ProbeResult{}, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = transport.Close() }()

	return mfrc522.ProbeTransport(ctx, transport, mode)
}
