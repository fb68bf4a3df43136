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
	"fmt"
	"io"
	"time"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithResetLine attaches the NRSTPD reset line. Without one, Init always
// performs a soft reset.
func WithResetLine(line ResetLine) Option {
	return func(d *Device) error {
		d.resetLine = line
		return nil
	}
}

// WithRetryConfig sets the retry configuration for the device
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		d.SetRetryConfig(config)
		return nil
	}
}

// WithTimeout sets the per-transaction transport timeout
func WithTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		return d.SetTimeout(timeout)
	}
}

// WithCommandTimeout sets the deadline for a PCD command to raise its interrupt
func WithCommandTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: command timeout must be positive", ErrInvalidParameter)
		}
		d.config.CommandTimeout = timeout
		return nil
	}
}

// WithCRCTimeout sets the deadline for the CRC coprocessor
func WithCRCTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: CRC timeout must be positive", ErrInvalidParameter)
		}
		d.config.CRCTimeout = timeout
		return nil
	}
}

// WithResetDelays overrides the soft and hard reset waits.
func WithResetDelays(soft, hard time.Duration) Option {
	return func(d *Device) error {
		d.config.ResetDelay = soft
		d.config.HardResetDelay = hard
		return nil
	}
}

// WithDiagnostics sends the output of the Dump* methods to w.
func WithDiagnostics(w io.Writer) Option {
	return func(d *Device) error {
		if w == nil {
			w = io.Discard
		}
		d.diag = w
		return nil
	}
}
