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
	"testing"
	"time"
)

func TestDefaultDeviceConfig(t *testing.T) {
	t.Parallel()
	config := DefaultDeviceConfig()

	if config == nil {
		t.Fatal("DefaultDeviceConfig() returned nil")
	}

	tests := []struct {
		got      any
		expected any
		name     string
	}{
		{config.Timeout, 1 * time.Second, "Timeout"},
		{config.CommandTimeout, 36 * time.Millisecond, "CommandTimeout"},
		{config.CRCTimeout, 89 * time.Millisecond, "CRCTimeout"},
		{config.ResetDelay, 50 * time.Millisecond, "ResetDelay"},
		{config.HardResetDelay, 100 * time.Millisecond, "HardResetDelay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if config.RetryConfig == nil {
		t.Error("RetryConfig should not be nil")
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()
	config := DefaultRetryConfig()

	if config == nil {
		t.Fatal("DefaultRetryConfig() returned nil")
	}

	tests := []struct {
		got      any
		expected any
		name     string
	}{
		{config.MaxAttempts, 3, "MaxAttempts"},
		{config.InitialBackoff, 2 * time.Millisecond, "InitialBackoff"},
		{config.MaxBackoff, 100 * time.Millisecond, "MaxBackoff"},
		{config.BackoffMultiplier, 2.0, "BackoffMultiplier"},
		{config.Jitter, 0.1, "Jitter"},
		{config.RetryTimeout, 1 * time.Second, "RetryTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestDefaultDeviceConfig_Independent(t *testing.T) {
	t.Parallel()

	a := DefaultDeviceConfig()
	b := DefaultDeviceConfig()
	a.RetryConfig.MaxAttempts = 10
	a.CommandTimeout = time.Second

	if b.RetryConfig.MaxAttempts != 3 {
		t.Errorf("configs share a RetryConfig")
	}
	if b.CommandTimeout != 36*time.Millisecond {
		t.Errorf("configs share state")
	}
}

func TestTransportType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tt   TransportType
		str  string
	}{
		{"UART", TransportUART, "uart"},
		{"I2C", TransportI2C, "i2c"},
		{"SPI", TransportSPI, "spi"},
		{"Mock", TransportMock, "mock"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if string(test.tt) != test.str {
				t.Errorf("TransportType %s = %q, want %q", test.name, string(test.tt), test.str)
			}
		})
	}
}
