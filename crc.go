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
	"time"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// CalculateCRC runs data through the CRC coprocessor and returns the CRC
// low byte first. It fails with StatusTimeout when the coprocessor does not
// finish within the configured CRC timeout.
func (d *Device) CalculateCRC(ctx context.Context, data []byte) ([2]byte, error) {
	var result [2]byte

	err := d.writeRegisters(
		registerWrite{chip.CommandReg, byte(chip.Idle)},
		registerWrite{chip.DivIrqReg, chip.CRCIRq},
		registerWrite{chip.FIFOLevelReg, chip.FlushBuffer},
	)
	if err != nil {
		return result, err
	}
	if err := d.WriteRegisterBlock(chip.FIFODataReg, data); err != nil {
		return result, err
	}
	if err := d.WriteRegister(chip.CommandReg, byte(chip.CalcCRC)); err != nil {
		return result, err
	}

	if err := d.waitDivIrq(ctx, chip.CRCIRq); err != nil {
		return result, err
	}

	if err := d.WriteRegister(chip.CommandReg, byte(chip.Idle)); err != nil {
		return result, err
	}
	if result[0], err = d.ReadRegister(chip.CRCResultRegL); err != nil {
		return result, err
	}
	if result[1], err = d.ReadRegister(chip.CRCResultRegH); err != nil {
		return result, err
	}
	return result, nil
}

// waitDivIrq polls DivIrqReg until a bit of mask is set or the CRC deadline
// passes.
func (d *Device) waitDivIrq(ctx context.Context, mask byte) error {
	deadline := time.Now().Add(d.config.CRCTimeout)
	for {
		n, err := d.ReadRegister(chip.DivIrqReg)
		if err != nil {
			return err
		}
		if n&mask != 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			debugf("CRC coprocessor did not finish within %v", d.config.CRCTimeout)
			return StatusTimeout
		}
	}
}
