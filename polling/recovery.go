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


package polling

import (
	"context"
	"time"

	mfrc522 "github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// DeviceRecoverer handles device recovery after sleep/wake or errors
type DeviceRecoverer interface {
	// AttemptRecovery tries to bring the reader back.
	AttemptRecovery(ctx context.Context) error

	// GetDevice returns the current device, which may change after a
	// reconnection.
	GetDevice() *mfrc522.Device
}

// ReopenFunc reconnects the reader from scratch.
type ReopenFunc func(ctx context.Context) (*mfrc522.Device, error)

// DefaultRecoverer implements a tiered recovery strategy:
// 1. Re-initialise the chip, which helps after a brown-out or a host sleep
// 2. Full reconnection via user-provided reopen function
type DefaultRecoverer struct {
	device      *mfrc522.Device
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer with tiered recovery strategy.
// If reopenFunc is nil, only re-initialisation is attempted.
func NewDefaultRecoverer(
	device *mfrc522.Device,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		device:      device,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery runs Init on the current device and, when that fails
// and a reopen function is set, replaces the device with a fresh one.
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		err := r.device.Init(ctx)
		if err == nil {
			mfrc522.Debugf("polling: reader re-initialised on attempt %d", attempt+1)
			return nil
		}
		lastErr = err

		if r.reopenFunc != nil {
			_ = r.device.Close()
			device, reopenErr := r.reopenFunc(ctx)
			if reopenErr == nil {
				r.device = device
				mfrc522.Debugf("polling: reader reopened on attempt %d", attempt+1)
				return nil
			}
			lastErr = reopenErr
		}
	}
	return lastErr
}

// GetDevice returns the current device reference.
func (r *DefaultRecoverer) GetDevice() *mfrc522.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}
