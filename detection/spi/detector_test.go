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


package spi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNoChip = errors.New("VersionReg reads 0x00")

func TestDetect(t *testing.T) {
	t.Parallel()

	var probed []string
	d := &detector{
		configs: func() []Config {
			return []Config{
				{Device: "/dev/spidev0.0", FrequencyHz: 1000000},
				{Device: "/dev/spidev0.1"},
				{Device: "/dev/spidev1.0"},
			}
		},
		probe: func(_ context.Context, c Config, _ detection.Mode) (mfrc522.ProbeResult, error) {
			probed = append(probed, c.Device)
			if c.Device != "/dev/spidev0.0" {
				return mfrc522.ProbeResult{}, errNoChip
			}
			return mfrc522.ProbeResult{Version: chip.Version1_0, Confidence: detection.High}, nil
		},
	}

	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"/dev/spidev1.0"}
	devices, err := d.Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/spidev0.0", devices[0].Path)
	assert.Equal(t, "SPI device at /dev/spidev0.0", devices[0].Name)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.Equal(t, "v1.0", devices[0].Metadata["version"])
	assert.Equal(t, "1000000", devices[0].Metadata["frequency_hz"])
	assert.Equal(t, []string{"/dev/spidev0.0", "/dev/spidev0.1"}, probed)
}

func TestDetect_Passive(t *testing.T) {
	t.Parallel()

	d := &detector{
		configs: func() []Config { return []Config{{Device: "SPI0.0", Name: "hat"}} },
		probe: func(context.Context, Config, detection.Mode) (mfrc522.ProbeResult, error) {
			t.Fatal("passive mode must not probe")
			return mfrc522.ProbeResult{}, nil
		},
	}
	opts := detection.DefaultOptions()
	opts.Mode = detection.Passive

	devices, err := d.Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "hat", devices[0].Name)
	assert.Equal(t, detection.Low, devices[0].Confidence)
}

func TestDetect_NoConfigs(t *testing.T) {
	t.Parallel()

	d := &detector{configs: func() []Config { return nil }}
	opts := detection.DefaultOptions()
	_, err := d.Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	assert.Equal(t, "spi", d.Transport())
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	list := filepath.Join(dir, "list.json")
	single := filepath.Join(dir, "single.json")
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(list,
		[]byte(`[{"device":"/dev/spidev0.0","frequency_hz":2000000},{"device":"/dev/spidev0.1"}]`), 0o600))
	require.NoError(t, os.WriteFile(single, []byte(`{"device":"SPI1.0","name":"reader"}`), 0o600))
	require.NoError(t, os.WriteFile(broken, []byte(`{"device":`), 0o600))

	configs := loadConfigFile([]string{filepath.Join(dir, "missing.json"), list, single})
	require.Len(t, configs, 2)
	assert.Equal(t, int64(2000000), configs[0].FrequencyHz)

	configs = loadConfigFile([]string{broken, single})
	require.Len(t, configs, 1)
	assert.Equal(t, "reader", configs[0].Name)

	assert.Nil(t, loadConfigFile([]string{broken}))
}

func TestLoadEnvConfig(t *testing.T) {
	t.Parallel()

	env := map[string]string{}
	getenv := func(k string) string { return env[k] }
	assert.Nil(t, loadEnvConfig(getenv))

	env[envDevice] = "/dev/spidev0.0"
	env[envFrequency] = "bogus"
	config := loadEnvConfig(getenv)
	require.NotNil(t, config)
	assert.Equal(t, "/dev/spidev0.0", config.Device)
	assert.Zero(t, config.FrequencyHz)

	env[envFrequency] = "8000000"
	assert.Equal(t, int64(8000000), loadEnvConfig(getenv).FrequencyHz)
}

func TestDeduplicateConfigs(t *testing.T) {
	t.Parallel()

	configs := deduplicateConfigs([]Config{
		{Device: "/dev/spidev0.0", Name: "file"},
		{Device: "/dev/spidev0.1"},
		{Device: "/dev/spidev0.0", Name: "env"},
	})
	require.Len(t, configs, 2)
	assert.Equal(t, "file", configs[0].Name)
}
