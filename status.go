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

import "errors"

// Status is the result of a protocol operation. Every operation on a Device
// returns nil for StatusOK and a non-OK Status (or an error wrapping one)
// otherwise.
type Status uint8

const (
	StatusOK Status = iota
	StatusError
	StatusCollision
	StatusTimeout
	StatusNoRoom
	StatusInternalError
	StatusInvalid
	StatusCRCWrong
	StatusMifareNACK
	// StatusBusError means the register port failed a read or write.
	StatusBusError
)

// String returns a human readable description of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "Success."
	case StatusError:
		return "Error in communication."
	case StatusCollision:
		return "Collision detected."
	case StatusTimeout:
		return "Timeout in communication."
	case StatusNoRoom:
		return "A buffer is not big enough."
	case StatusInternalError:
		return "Internal error in the code. Should not happen."
	case StatusInvalid:
		return "Invalid argument."
	case StatusCRCWrong:
		return "The CRC_A does not match."
	case StatusMifareNACK:
		return "A MIFARE PICC responded with NAK."
	case StatusBusError:
		return "Register bus transaction failed."
	default:
		return "Unknown error"
	}
}

// Error implements error so a Status can be returned directly.
func (s Status) Error() string {
	return s.String()
}

// StatusOf maps an error returned by this package onto a Status. Errors that
// carry no Status, such as context cancellation, map to StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var be *BusError
	if errors.As(err, &be) {
		return StatusBusError
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusError
}
