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
	"fmt"
	"time"
)

const (
	cardPollInterval    = 50 * time.Millisecond
	maxDetectionErrors  = 10
	loggedDetectionErrs = 3
)

// WaitForCard polls with REQA until a card in the IDLE state enters the
// field, selects it and returns its UID. Cards left in HALT are not picked
// up again; use WakeupA for those.
//
// Example usage:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	uid, err := device.WaitForCard(ctx)
//	if err != nil {
//	    if errors.Is(err, context.DeadlineExceeded) {
//	        fmt.Println("Timeout: no card detected")
//	    }
//	    return err
//	}
//
//	fmt.Printf("Card detected: %s (%s)\n", uid, uid.Type())
func (d *Device) WaitForCard(ctx context.Context) (*UID, error) {
	return d.waitForCard(ctx, cardPollInterval)
}

func (d *Device) waitForCard(ctx context.Context, interval time.Duration) (*UID, error) {
	errorCount := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		uid, err := d.detectCard(ctx)
		if err == nil {
			debugf("card detected: UID=%s type=%s", uid, uid.Type())
			return uid, nil
		}
		if err := d.handleDetectionError(&errorCount, err); err != nil {
			return nil, err
		}

		if err := sleepCtx(ctx, interval); err != nil {
			return nil, err
		}
	}
}

// detectCard runs one REQA and select. Status errors mean no usable card
// this round.
func (d *Device) detectCard(ctx context.Context) (*UID, error) {
	var atqa [2]byte
	err := d.RequestA(ctx, atqa[:])
	if s := StatusOf(err); s != StatusOK && s != StatusCollision {
		return nil, err
	}
	return d.ReadCardSerial(ctx)
}

// handleDetectionError decides whether polling can go on after err. No card
// and RF noise never stop the loop; bus errors do after maxDetectionErrors,
// and fatal ones at once.
func (*Device) handleDetectionError(errorCount *int, err error) error {
	switch StatusOf(err) {
	case StatusTimeout, StatusCollision, StatusError, StatusCRCWrong:
		return nil
	}
	if IsFatal(err) {
		return err
	}

	*errorCount++
	if *errorCount <= loggedDetectionErrs {
		debugf("card detection error #%d: %v", *errorCount, err)
	}
	if *errorCount > maxDetectionErrors {
		return fmt.Errorf("too many detection errors (%d), last error: %w", *errorCount, err)
	}
	return nil
}
