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

import "github.com/ZaparooProject/go-mfrc522/chip"

// WriteRegister writes one byte to reg.
func (d *Device) WriteRegister(reg chip.Register, value byte) error {
	return d.WriteRegisterBlock(reg, []byte{value})
}

// WriteRegisterBlock writes values to reg in one bus transaction.
func (d *Device) WriteRegisterBlock(reg chip.Register, values []byte) error {
	if err := d.transport.WriteRegister(reg, values); err != nil {
		debugf("write %s failed: %v", reg, err)
		return &BusError{Op: "write", Reg: reg, Bytes: len(values), Err: err}
	}
	return nil
}

// ReadRegister reads one byte from reg. On failure it returns 0 and a
// *BusError.
func (d *Device) ReadRegister(reg chip.Register) (byte, error) {
	var buf [1]byte
	if err := d.transport.ReadRegister(reg, buf[:]); err != nil {
		debugf("read %s failed: %v", reg, err)
		return 0, &BusError{Op: "read", Reg: reg, Bytes: 1, Err: err}
	}
	return buf[0], nil
}

// ReadRegisterBlock fills buf from reg. With rxAlign > 0 only bit positions
// rxAlign and up of buf[0] are taken from the chip; the lower bits keep the
// value the caller put there. This merges the first byte of a frame whose
// start was not byte aligned.
func (d *Device) ReadRegisterBlock(reg chip.Register, buf []byte, rxAlign byte) error {
	if len(buf) == 0 {
		return nil
	}

	first := buf[0]
	if err := d.transport.ReadRegister(reg, buf); err != nil {
		debugf("read %s (%d bytes) failed: %v", reg, len(buf), err)
		return &BusError{Op: "read", Reg: reg, Bytes: len(buf), Err: err}
	}

	if rxAlign > 0 && rxAlign < 8 {
		mask := byte(0xFF << rxAlign)
		buf[0] = first&^mask | buf[0]&mask
	}
	return nil
}

// SetBits sets the bits of mask in reg.
func (d *Device) SetBits(reg chip.Register, mask byte) error {
	value, err := d.ReadRegister(reg)
	if err != nil {
		return err
	}
	return d.WriteRegister(reg, value|mask)
}

// ClearBits clears the bits of mask in reg.
func (d *Device) ClearBits(reg chip.Register, mask byte) error {
	value, err := d.ReadRegister(reg)
	if err != nil {
		return err
	}
	return d.WriteRegister(reg, value&^mask)
}

// writeRegisters writes a sequence of single-byte registers, stopping at the
// first failure.
func (d *Device) writeRegisters(writes ...registerWrite) error {
	for _, w := range writes {
		if err := d.WriteRegister(w.reg, w.value); err != nil {
			return err
		}
	}
	return nil
}

type registerWrite struct {
	reg   chip.Register
	value byte
}
