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

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// maxUIDBits is the largest number of known UID bits Select accepts.
const maxUIDBits = 80

// cascadeLevel describes one ISO/IEC 14443-3 cascade level.
type cascadeLevel struct {
	sel      byte
	uidIndex int // first UID byte covered by the level
	level    int
}

var cascadeLevels = [...]cascadeLevel{
	{sel: chip.PICCSelCL1, uidIndex: 0, level: 1},
	{sel: chip.PICCSelCL2, uidIndex: 3, level: 2},
	{sel: chip.PICCSelCL3, uidIndex: 6, level: 3},
}

// selectFrame is the SEL/NVB/UID CLn/BCC frame of one cascade level. known
// counts the leading bits of uid that are fixed, 0 to 32. The frame is an
// ANTICOLLISION command while known < 32 and a SELECT once all 32 bits are
// known.
type selectFrame struct {
	uid   [4]byte
	known int
	sel   byte
}

// complete reports whether all UID CLn bits are known.
func (f *selectFrame) complete() bool {
	return f.known >= 32
}

// nvb packs the number of valid bytes (including SEL and NVB) in the upper
// nibble and the number of extra valid bits in the lower nibble.
func (f *selectFrame) nvb() byte {
	if f.complete() {
		return chip.SelectNVBComplete
	}
	return byte((2+f.known/8)<<4 | f.known%8)
}

// bcc is the block check character over UID CLn.
func (f *selectFrame) bcc() byte {
	return f.uid[0] ^ f.uid[1] ^ f.uid[2] ^ f.uid[3]
}

// txLastBits is the number of valid bits in the last byte of the
// ANTICOLLISION frame.
func (f *selectFrame) txLastBits() byte {
	return byte(f.known % 8)
}

// anticollision returns SEL, NVB and the known UID bytes, the last one
// possibly partial.
func (f *selectFrame) anticollision() []byte {
	n := (f.known + 7) / 8
	out := make([]byte, 0, 2+n)
	out = append(out, f.sel, f.nvb())
	return append(out, f.uid[:n]...)
}

// selectCommand returns SEL, NVB, UID CLn and BCC. The CRC_A is appended by
// the caller.
func (f *selectFrame) selectCommand() []byte {
	return []byte{f.sel, f.nvb(), f.uid[0], f.uid[1], f.uid[2], f.uid[3], f.bcc()}
}

// responseBuffer returns a receive buffer for the answer to an
// ANTICOLLISION frame. The answer starts at the partially known byte, so
// that byte is pre-loaded and merged using rxAlign.
func (f *selectFrame) responseBuffer() []byte {
	start := f.known / 8
	buf := make([]byte, 5-start)
	buf[0] = f.uid[start]
	return buf
}

// merge stores an ANTICOLLISION answer. The trailing BCC byte is dropped;
// the BCC sent with SELECT is recomputed from the UID.
func (f *selectFrame) merge(resp []byte) {
	start := f.known / 8
	for i, b := range resp {
		if start+i >= len(f.uid) {
			break
		}
		f.uid[start+i] = b
	}
}

// resolveCollision fixes the colliding bit at 1-based position pos to 1
// and marks everything up to it as known.
func (f *selectFrame) resolveCollision(pos int) {
	bit := pos - 1
	f.uid[bit/8] |= 1 << (bit % 8)
	f.known = pos
}

// Select runs the anticollision and select loop on a PICC in the READY
// state and returns its UID in uid. validBits is the number of leading UID
// bits the caller already knows and has put in uid, 0 for none. When
// validBits is non-zero uid.Size must hold the expected UID size so that
// cascade tags are inserted in the right place.
//
// On a collision the bit at the collision position is taken to be 1, so
// with several cards in the field the one with the highest UID at the first
// differing bit is selected.
func (d *Device) Select(ctx context.Context, uid *UID, validBits int) error {
	if uid == nil || validBits < 0 || validBits > maxUIDBits {
		return StatusInvalid
	}

	// All received bits are cleared after a collision.
	if err := d.ClearBits(chip.CollReg, chip.ValuesAfterColl); err != nil {
		return err
	}

	for _, level := range cascadeLevels {
		frame, useCascadeTag := newSelectFrame(level, uid, validBits)

		sak, err := d.resolveLevel(ctx, frame)
		if err != nil {
			return err
		}

		// Copy UID CLn, skipping the cascade tag when the PICC says the
		// UID continues in the next level.
		cascade := sak&chip.SAKCascade != 0
		if cascade || useCascadeTag {
			copy(uid.Data[level.uidIndex:], frame.uid[1:4])
		} else {
			copy(uid.Data[level.uidIndex:], frame.uid[:4])
		}

		if !cascade {
			uid.Size = 3*level.level + 1
			uid.SAK = sak
			debugf("selected PICC %s, SAK 0x%02X", uid, sak)
			return nil
		}
	}

	// A cascade bit on level 3 has no level 4 to go to.
	return StatusInternalError
}

// newSelectFrame prepares the frame for level from the bits the caller
// already knows.
func newSelectFrame(level cascadeLevel, uid *UID, validBits int) (*selectFrame, bool) {
	frame := &selectFrame{sel: level.sel}

	var useCascadeTag bool
	switch level.level {
	case 1:
		useCascadeTag = validBits > 0 && uid.Size > 4
	case 2:
		useCascadeTag = validBits > 0 && uid.Size > 7
	}

	known := validBits - 8*level.uidIndex
	if known < 0 {
		known = 0
	}

	index := 0
	if useCascadeTag {
		frame.uid[0] = chip.PICCCT
		index = 1
	}

	bytesToCopy := (known + 7) / 8
	if maxBytes := 4 - index; bytesToCopy > maxBytes {
		bytesToCopy = maxBytes
	}
	copy(frame.uid[index:], uid.Data[level.uidIndex:level.uidIndex+bytesToCopy])

	if useCascadeTag {
		known += 8
	}
	if known > 32 {
		known = 32
	}
	frame.known = known
	return frame, useCascadeTag
}

// resolveLevel runs ANTICOLLISION rounds until all 32 bits of the level
// are known, then SELECTs and returns the verified SAK.
func (d *Device) resolveLevel(ctx context.Context, frame *selectFrame) (byte, error) {
	// Each round fixes at least one more bit, so 33 rounds always suffice.
	for range 33 {
		if frame.complete() {
			return d.selectLevel(ctx, frame)
		}

		f := &Frame{
			Send:       frame.anticollision(),
			TxLastBits: frame.txLastBits(),
			Recv:       frame.responseBuffer(),
			RxAlign:    frame.txLastBits(),
		}
		err := d.Transceive(ctx, f)
		frame.merge(f.Received())

		switch StatusOf(err) {
		case StatusOK:
			// No collision signalled, all remaining bits arrived.
			frame.known = 32
		case StatusCollision:
			coll, err := d.ReadRegister(chip.CollReg)
			if err != nil {
				return 0, err
			}
			if coll&chip.CollPosNotValid != 0 {
				return 0, StatusCollision
			}
			pos := int(coll & chip.CollPosMask)
			if pos == 0 {
				pos = 32
			}
			if pos <= frame.known {
				return 0, StatusInternalError
			}
			debugf("collision at bit %d of level 0x%02X", pos, frame.sel)
			frame.resolveCollision(pos)
		default:
			return 0, err
		}
	}
	return 0, StatusInternalError
}

// selectLevel sends SELECT for a fully known level and checks the SAK.
func (d *Device) selectLevel(ctx context.Context, frame *selectFrame) (byte, error) {
	cmd := frame.selectCommand()
	crc, err := d.CalculateCRC(ctx, cmd)
	if err != nil {
		return 0, err
	}
	cmd = append(cmd, crc[0], crc[1])

	f := &Frame{Send: cmd, Recv: make([]byte, 3)}
	if err := d.Transceive(ctx, f); err != nil {
		return 0, err
	}

	// SAK is one byte followed by CRC_A.
	if f.RecvLen != 3 || f.RxLastBits != 0 {
		return 0, StatusError
	}
	sakCRC, err := d.CalculateCRC(ctx, f.Recv[:1])
	if err != nil {
		return 0, err
	}
	if sakCRC[0] != f.Recv[1] || sakCRC[1] != f.Recv[2] {
		return 0, StatusCRCWrong
	}
	return f.Recv[0], nil
}
