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
	"encoding/hex"
	"strings"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// UID is the identifier of a selected PICC. Size is 4, 7 or 10 after a
// successful Select.
type UID struct {
	Data [10]byte
	Size int
	SAK  byte
}

// NewUID returns a UID holding b, for use as the known part of a UID
// passed to Select or to compare against.
func NewUID(b []byte) (*UID, error) {
	if len(b) > 10 {
		return nil, StatusInvalid
	}
	uid := &UID{Size: len(b)}
	copy(uid.Data[:], b)
	return uid, nil
}

// Bytes returns the UID bytes.
func (u *UID) Bytes() []byte {
	if u.Size < 0 || u.Size > len(u.Data) {
		return nil
	}
	return u.Data[:u.Size]
}

// String returns the UID as upper case hex.
func (u *UID) String() string {
	return strings.ToUpper(hex.EncodeToString(u.Bytes()))
}

// Type returns the PICC type indicated by the SAK.
func (u *UID) Type() PICCType {
	return PICCTypeFromSAK(u.SAK)
}

// PICCType classifies a PICC by its SAK.
type PICCType int

const (
	PICCTypeUnknown PICCType = iota
	PICCTypeISO14443_4
	PICCTypeISO18092
	PICCTypeMifareMini
	PICCTypeMifare1K
	PICCTypeMifare4K
	PICCTypeMifareUL
	PICCTypeMifarePlus
	PICCTypeMifareDESFire
	PICCTypeTNP3XXX
	PICCTypeNotComplete
)

// PICCTypeFromSAK decodes a SAK. See NXP AN10833 "MIFARE Type Identification
// Procedure". Bit 8 has no meaning and is ignored.
func PICCTypeFromSAK(sak byte) PICCType {
	switch sak & 0x7F {
	case 0x04:
		return PICCTypeNotComplete
	case 0x09:
		return PICCTypeMifareMini
	case 0x08:
		return PICCTypeMifare1K
	case 0x18:
		return PICCTypeMifare4K
	case 0x00:
		return PICCTypeMifareUL
	case 0x10, 0x11:
		return PICCTypeMifarePlus
	case 0x01:
		return PICCTypeTNP3XXX
	case 0x20:
		return PICCTypeISO14443_4
	case 0x40:
		return PICCTypeISO18092
	default:
		return PICCTypeUnknown
	}
}

// String returns a human readable name.
func (t PICCType) String() string {
	switch t {
	case PICCTypeISO14443_4:
		return "PICC compliant with ISO/IEC 14443-4"
	case PICCTypeISO18092:
		return "PICC compliant with ISO/IEC 18092 (NFC)"
	case PICCTypeMifareMini:
		return "MIFARE Mini, 320 bytes"
	case PICCTypeMifare1K:
		return "MIFARE 1KB"
	case PICCTypeMifare4K:
		return "MIFARE 4KB"
	case PICCTypeMifareUL:
		return "MIFARE Ultralight or Ultralight C"
	case PICCTypeMifarePlus:
		return "MIFARE Plus"
	case PICCTypeMifareDESFire:
		return "MIFARE DESFire"
	case PICCTypeTNP3XXX:
		return "MIFARE TNP3XXX"
	case PICCTypeNotComplete:
		return "SAK indicates UID is not complete."
	default:
		return "Unknown type"
	}
}

// IsMifareClassic reports whether t uses Crypto1 sectors.
func (t PICCType) IsMifareClassic() bool {
	return t == PICCTypeMifareMini || t == PICCTypeMifare1K || t == PICCTypeMifare4K
}

// RequestA sends REQA, waking PICCs in the IDLE state, and stores the ATQA
// in atqa, which must hold at least two bytes.
func (d *Device) RequestA(ctx context.Context, atqa []byte) error {
	return d.requestOrWakeup(ctx, chip.PICCReqA, atqa)
}

// WakeupA sends WUPA, waking PICCs in the IDLE and HALT states, and stores
// the ATQA in atqa, which must hold at least two bytes.
func (d *Device) WakeupA(ctx context.Context, atqa []byte) error {
	return d.requestOrWakeup(ctx, chip.PICCWupA, atqa)
}

func (d *Device) requestOrWakeup(ctx context.Context, cmd byte, atqa []byte) error {
	if len(atqa) < 2 {
		return StatusNoRoom
	}
	if err := d.ClearBits(chip.CollReg, chip.ValuesAfterColl); err != nil {
		return err
	}

	// REQA and WUPA are short frames of 7 bits.
	f := &Frame{Send: []byte{cmd}, TxLastBits: 7, Recv: atqa}
	if err := d.Transceive(ctx, f); err != nil {
		return err
	}
	if f.RecvLen != 2 || f.RxLastBits != 0 {
		return StatusError
	}
	return nil
}

// HaltA puts the selected PICC into the HALT state. A PICC does not answer
// HLTA, so a timeout is success and any answer is an error.
func (d *Device) HaltA(ctx context.Context) error {
	cmd := []byte{chip.PICCHltA, 0x00}
	crc, err := d.CalculateCRC(ctx, cmd)
	if err != nil {
		return err
	}
	cmd = append(cmd, crc[0], crc[1])

	err = d.Transceive(ctx, &Frame{Send: cmd})
	switch StatusOf(err) {
	case StatusTimeout:
		return nil
	case StatusOK:
		return StatusError
	default:
		return err
	}
}

// IsNewCardPresent reports whether a PICC in the IDLE state answers REQA.
// A collision still means at least one card is there. Halted PICCs do not
// answer; use WakeupA for those. The bit rates and the modulation width go
// back to their reset values first.
func (d *Device) IsNewCardPresent(ctx context.Context) bool {
	err := d.writeRegisters(
		registerWrite{chip.TxModeReg, 0x00},
		registerWrite{chip.RxModeReg, 0x00},
		registerWrite{chip.ModWidthReg, 0x26},
	)
	if err != nil {
		debugf("IsNewCardPresent: %v", err)
		return false
	}

	var atqa [2]byte
	switch StatusOf(d.RequestA(ctx, atqa[:])) {
	case StatusOK, StatusCollision:
		return true
	default:
		return false
	}
}

// ReadCardSerial selects the PICC woken by IsNewCardPresent, RequestA or
// WakeupA and returns its UID.
func (d *Device) ReadCardSerial(ctx context.Context) (*UID, error) {
	uid := &UID{}
	if err := d.Select(ctx, uid, 0); err != nil {
		return nil, err
	}
	return uid, nil
}
