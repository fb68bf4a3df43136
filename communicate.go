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

// Frame describes one command/response exchange through the FIFO.
type Frame struct {
	// Send is loaded into the FIFO before the command starts.
	Send []byte
	// Recv receives the FIFO content after the command. Its length is the
	// receive capacity. Leave it nil when no answer is expected.
	Recv []byte
	// RecvLen is set to the number of bytes stored in Recv.
	RecvLen int
	// TxLastBits is the number of valid bits in the last sent byte, 0 for
	// all eight.
	TxLastBits byte
	// RxLastBits is set to the number of valid bits in the last received
	// byte, 0 for all eight.
	RxLastBits byte
	// RxAlign is the bit position in Recv[0] where the first received bit
	// is stored.
	RxAlign byte
	// CheckCRC validates the CRC_A of the received bytes.
	CheckCRC bool
}

// Received returns the part of Recv that was filled.
func (f *Frame) Received() []byte {
	return f.Recv[:f.RecvLen]
}

// Transceive sends f.Send to the PICC and collects the answer.
func (d *Device) Transceive(ctx context.Context, f *Frame) error {
	return d.Communicate(ctx, chip.Transceive, chip.RxIRq|chip.IdleIRq, f)
}

// Communicate runs cmd with the FIFO loaded from f.Send and waits for any
// ComIrqReg bit in waitIRq. The checks after completion run in a fixed
// order: buffer overflow, parity and protocol errors abort before the FIFO
// is read; a collision is reported after the data was read so callers can
// use the bits received up to the collision; the CRC is checked last.
func (d *Device) Communicate(ctx context.Context, cmd chip.Command, waitIRq byte, f *Frame) error {
	if f == nil || len(f.Send) > chip.FIFOSize || f.TxLastBits > 7 || f.RxAlign > 7 {
		return StatusInvalid
	}
	f.RecvLen = 0
	f.RxLastBits = 0

	err := d.writeRegisters(
		registerWrite{chip.CommandReg, byte(chip.Idle)},
		registerWrite{chip.ComIrqReg, chip.AllIRqs},
		registerWrite{chip.FIFOLevelReg, chip.FlushBuffer},
	)
	if err != nil {
		return err
	}
	if err := d.WriteRegisterBlock(chip.FIFODataReg, f.Send); err != nil {
		return err
	}
	if err := d.WriteRegister(chip.BitFramingReg, f.RxAlign<<4|f.TxLastBits); err != nil {
		return err
	}
	if err := d.WriteRegister(chip.CommandReg, byte(cmd)); err != nil {
		return err
	}
	if cmd == chip.Transceive {
		if err := d.SetBits(chip.BitFramingReg, chip.StartSend); err != nil {
			return err
		}
	}

	if err := d.waitComIrq(ctx, waitIRq); err != nil {
		return err
	}

	errReg, err := d.ReadRegister(chip.ErrorReg)
	if err != nil {
		return err
	}
	if errReg&chip.FatalErrors != 0 {
		debugf("%s: ErrorReg 0x%02X", cmd, errReg)
		return StatusError
	}

	if f.Recv != nil {
		if err := d.drainFIFO(f); err != nil {
			return err
		}
	}

	if errReg&chip.CollErr != 0 {
		return StatusCollision
	}

	if f.Recv != nil && f.CheckCRC {
		return d.checkCRC(ctx, f)
	}
	return nil
}

// waitComIrq polls ComIrqReg until a bit of waitIRq is set. The chip timer
// interrupt means the PICC did not answer within 25 ms.
func (d *Device) waitComIrq(ctx context.Context, waitIRq byte) error {
	deadline := time.Now().Add(d.config.CommandTimeout)
	for {
		n, err := d.ReadRegister(chip.ComIrqReg)
		if err != nil {
			return err
		}
		if n&waitIRq != 0 {
			return nil
		}
		if n&chip.TimerIRq != 0 {
			return StatusTimeout
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			debugf("no interrupt within %v", d.config.CommandTimeout)
			return StatusTimeout
		}
	}
}

func (d *Device) drainFIFO(f *Frame) error {
	level, err := d.ReadRegister(chip.FIFOLevelReg)
	if err != nil {
		return err
	}
	n := int(level & chip.FIFOLevelMask)
	if n > len(f.Recv) {
		return StatusNoRoom
	}
	if err := d.ReadRegisterBlock(chip.FIFODataReg, f.Recv[:n], f.RxAlign); err != nil {
		return err
	}
	f.RecvLen = n

	control, err := d.ReadRegister(chip.ControlReg)
	if err != nil {
		return err
	}
	f.RxLastBits = control & chip.RxLastBitsMask
	return nil
}

func (d *Device) checkCRC(ctx context.Context, f *Frame) error {
	// A MIFARE NAK is a single 4-bit frame without CRC.
	if f.RecvLen == 1 && f.RxLastBits == 4 {
		return StatusMifareNACK
	}
	if f.RecvLen < 2 || f.RxLastBits != 0 {
		return StatusCRCWrong
	}

	crc, err := d.CalculateCRC(ctx, f.Recv[:f.RecvLen-2])
	if err != nil {
		return err
	}
	if f.Recv[f.RecvLen-2] != crc[0] || f.Recv[f.RecvLen-1] != crc[1] {
		return StatusCRCWrong
	}
	return nil
}
