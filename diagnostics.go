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
	"bytes"
	"context"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// AntennaOn enables the TX1 and TX2 drivers. The register is only written
// when a driver is off.
func (d *Device) AntennaOn() error {
	value, err := d.ReadRegister(chip.TxControlReg)
	if err != nil {
		return err
	}
	if value&chip.TxRFEn == chip.TxRFEn {
		return nil
	}
	return d.WriteRegister(chip.TxControlReg, value|chip.TxRFEn)
}

// AntennaOff disables the TX1 and TX2 drivers.
func (d *Device) AntennaOff() error {
	return d.ClearBits(chip.TxControlReg, chip.TxRFEn)
}

// AntennaGain returns the receiver gain from RFCfgReg.
func (d *Device) AntennaGain() (chip.RxGain, error) {
	value, err := d.ReadRegister(chip.RFCfgReg)
	if err != nil {
		return 0, err
	}
	return chip.RxGain(value & chip.RxGainMask), nil
}

// SetAntennaGain sets the receiver gain. Bits outside RxGainMask are
// ignored and the register is left alone when the gain already matches.
func (d *Device) SetAntennaGain(gain chip.RxGain) error {
	gain &= chip.RxGain(chip.RxGainMask)
	current, err := d.AntennaGain()
	if err != nil {
		return err
	}
	if current == gain {
		return nil
	}
	if err := d.ClearBits(chip.RFCfgReg, chip.RxGainMask); err != nil {
		return err
	}
	return d.SetBits(chip.RFCfgReg, byte(gain))
}

// SetMaxInductance drives the antenna with maximum conductance on both the
// continuous wave and the modulation phase.
func (d *Device) SetMaxInductance() error {
	return d.writeRegisters(
		registerWrite{chip.CWGsPReg, 0x3F},
		registerWrite{chip.ModGsPReg, 0x3F},
		registerWrite{chip.GsNReg, 0xFF},
	)
}

// Version reads VersionReg. A value of 0x00 or 0xFF means nothing answered
// on the bus and is returned as a *BusError wrapping ErrDeviceNotFound.
func (d *Device) Version(ctx context.Context) (chip.Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	value, err := d.ReadRegister(chip.VersionReg)
	if err != nil {
		return 0, err
	}
	if value == 0x00 || value == 0xFF {
		return chip.Version(value), &BusError{
			Op:    "read",
			Reg:   chip.VersionReg,
			Bytes: 1,
			Err:   fmt.Errorf("%w: VersionReg reads 0x%02X", ErrDeviceNotFound, value),
		}
	}
	return chip.Version(value), nil
}

// SelfTest runs the digital self test of datasheet section 16.1.1 and
// compares the 64 bytes it leaves in the FIFO against the reference for the
// chip version. An unknown version fails the test. The chip is
// initialised again afterwards, so SelfTest can run at any time.
func (d *Device) SelfTest(ctx context.Context) (bool, error) {
	result, version, err := d.runSelfTest(ctx)
	if err != nil {
		return false, err
	}
	if err := d.Init(ctx); err != nil {
		return false, fmt.Errorf("re-init after self test: %w", err)
	}

	reference, ok := chip.SelfTestReference(version)
	if !ok {
		debugf("self test: no reference for version 0x%02X", byte(version))
		return false, nil
	}
	if !bytes.Equal(result[:], reference[:]) {
		debugf("self test mismatch for %s: % X", version, result)
		return false, nil
	}
	return true, nil
}

func (d *Device) runSelfTest(ctx context.Context) ([chip.SelfTestLength]byte, chip.Version, error) {
	var result [chip.SelfTestLength]byte

	if err := d.Reset(ctx); err != nil {
		return result, 0, err
	}

	// Clear the internal buffer by writing 25 zeros through the FIFO.
	if err := d.SetBits(chip.FIFOLevelReg, chip.FlushBuffer); err != nil {
		return result, 0, err
	}
	var zeros [25]byte
	if err := d.WriteRegisterBlock(chip.FIFODataReg, zeros[:]); err != nil {
		return result, 0, err
	}
	err := d.writeRegisters(
		registerWrite{chip.CommandReg, byte(chip.Mem)},
		registerWrite{chip.AutoTestReg, chip.AutoTestSelfTest},
		registerWrite{chip.FIFODataReg, 0x00},
		registerWrite{chip.CommandReg, byte(chip.CalcCRC)},
	)
	if err != nil {
		return result, 0, err
	}

	// The self test reports completion like a CRC calculation.
	if err := d.waitDivIrq(ctx, chip.CRCIRq); err != nil {
		return result, 0, fmt.Errorf("%w: %w", ErrSelfTestFailed, err)
	}
	if err := d.WriteRegister(chip.CommandReg, byte(chip.Idle)); err != nil {
		return result, 0, err
	}
	if err := d.ReadRegisterBlock(chip.FIFODataReg, result[:], 0); err != nil {
		return result, 0, err
	}
	if err := d.WriteRegister(chip.AutoTestReg, chip.AutoTestNormal); err != nil {
		return result, 0, err
	}

	version, err := d.ReadRegister(chip.VersionReg)
	if err != nil {
		return result, 0, err
	}
	return result, chip.Version(version), nil
}
