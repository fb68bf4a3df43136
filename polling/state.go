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
	"errors"
	"time"
)

// CardDetectionState represents the finite state machine for card detection
type CardDetectionState int

const (
	StateIdle CardDetectionState = iota
	StateCardDetected
	StateReading
)

// String returns the state name.
func (s CardDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCardDetected:
		return "detected"
	case StateReading:
		return "reading"
	default:
		return "unknown"
	}
}

// CardState tracks the card in front of the reader.
type CardState struct {
	LastSeenTime   time.Time
	RemovalTimer   *time.Timer
	LastUID        string
	LastType       string
	DetectionState CardDetectionState
	Present        bool
}

// ErrNoCardInPoll indicates no card answered in a polling round. It is not
// an error condition.
var ErrNoCardInPoll = errors.New("no card detected in polling cycle")

// safeTimerStop stops a timer and drains its channel.
func safeTimerStop(timer *time.Timer) {
	if timer != nil && !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// TransitionToReading suspends the removal timer while callbacks or card
// operations run.
func (cs *CardState) TransitionToReading() {
	cs.DetectionState = StateReading
	safeTimerStop(cs.RemovalTimer)
	cs.RemovalTimer = nil
}

// TransitionToDetected records a sighting and restarts the removal timer.
func (cs *CardState) TransitionToDetected(timeout time.Duration, callback func()) {
	cs.DetectionState = StateCardDetected
	cs.LastSeenTime = time.Now()
	safeTimerStop(cs.RemovalTimer)
	cs.RemovalTimer = time.AfterFunc(timeout, callback)
}

// TransitionToIdle forgets the card.
func (cs *CardState) TransitionToIdle() {
	cs.DetectionState = StateIdle
	cs.Present = false
	cs.LastUID = ""
	cs.LastType = ""
	cs.LastSeenTime = time.Time{}
	safeTimerStop(cs.RemovalTimer)
	cs.RemovalTimer = nil
}
