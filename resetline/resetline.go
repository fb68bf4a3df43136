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


// Package resetline drives the MFRC522 NRSTPD pin through a periph.io GPIO.
package resetline

import (
	"errors"
	"fmt"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var errClosed = errors.New("reset line is closed")

// Pin is an NRSTPD line backed by a GPIO.
type Pin struct {
	pin gpio.PinIO
	mu  syncutil.Mutex
}

// Open initialises the host drivers and looks the pin up by name, e.g.
// "GPIO25" or "22".
func Open(name string) (*Pin, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty GPIO name", mfrc522.ErrInvalidParameter)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: GPIO %s", mfrc522.ErrDeviceNotFound, name)
	}
	return New(p), nil
}

// New wraps an already resolved pin.
func New(p gpio.PinIO) *Pin {
	return &Pin{pin: p}
}

// Assert drives NRSTPD low, powering the chip down.
func (p *Pin) Assert() error {
	return p.out(gpio.Low)
}

// Release drives NRSTPD high.
func (p *Pin) Release() error {
	return p.out(gpio.High)
}

func (p *Pin) out(level gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pin == nil {
		return errClosed
	}
	if err := p.pin.Out(level); err != nil {
		return fmt.Errorf("reset line %s: set %s: %w", p.pin.Name(), level, err)
	}
	mfrc522.Debugf("reset line %s: %s", p.pin.Name(), level)
	return nil
}

// Level reads the line. An unconfigured pin is read as an input.
func (p *Pin) Level() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pin == nil {
		return false, errClosed
	}
	return p.pin.Read() == gpio.High, nil
}

// Close leaves the line high, so the chip stays powered, and releases the
// pin.
func (p *Pin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pin == nil {
		return nil
	}
	err := p.pin.Out(gpio.High)
	p.pin = nil
	if err != nil {
		return fmt.Errorf("reset line close: %w", err)
	}
	return nil
}

var _ mfrc522.ResetLine = (*Pin)(nil)
