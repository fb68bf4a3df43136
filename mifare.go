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
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// Key is a 6-byte MIFARE Classic sector key.
type Key [6]byte

// DefaultKey is the transport key MIFARE Classic cards ship with.
var DefaultKey = Key{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// CommonKeys are worth trying with FindKeyA on cards of unknown origin.
var CommonKeys = []Key{
	DefaultKey,
	{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}, // MAD key A
	{0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5},
	{0xD3, 0xF7, 0xD3, 0xF7, 0xD3, 0xF7}, // NFC Forum sector key
}

// MIFARE memory structure
const (
	MifareBlockSize = 16
	// mifareReadSize is a block plus its CRC_A.
	mifareReadSize = MifareBlockSize + 2
	// mifareMaxSend is the longest plain frame accepted by mifareTransceive.
	mifareMaxSend = 16
	// UltralightPageSize is the write unit of MIFARE Ultralight.
	UltralightPageSize = 4
)

// RestoreDataValue is sent in the data phase of RESTORE. The card ignores
// it but expects four bytes.
const RestoreDataValue int32 = 0

// Authenticate runs the three-pass MIFARE authentication for block with
// key. cmd is chip.PICCAuthKeyA or chip.PICCAuthKeyB. The last four UID
// bytes take part in the handshake.
//
// The Crypto1 session stays open until StopCrypto1 is called. Only one
// PICC can be authenticated at a time; call StopCrypto1 before talking to
// another card.
func (d *Device) Authenticate(ctx context.Context, cmd, block byte, key Key, uid *UID) error {
	if cmd != chip.PICCAuthKeyA && cmd != chip.PICCAuthKeyB {
		return StatusInvalid
	}
	if uid == nil || uid.Size < 4 || uid.Size > len(uid.Data) {
		return StatusInvalid
	}

	send := make([]byte, 0, 12)
	send = append(send, cmd, block)
	send = append(send, key[:]...)
	send = append(send, uid.Data[uid.Size-4:uid.Size]...)

	// Authentication ends in IDLE, not with received data.
	return d.Communicate(ctx, chip.MFAuthent, chip.IdleIRq, &Frame{Send: send})
}

// StopCrypto1 leaves the authenticated state. Without it no new
// communication with a PICC is possible after authentication.
func (d *Device) StopCrypto1() error {
	return d.ClearBits(chip.Status2Reg, chip.MFCrypto1On)
}

// FindKeyA authenticates block with each of keys as key A and returns the
// first that works. The Crypto1 session for that key stays open. A wrong
// key leaves the PICC idle, so it is halted, woken and selected again
// before the next attempt. ErrKeyNotFound means no key matched.
func (d *Device) FindKeyA(ctx context.Context, uid *UID, block byte, keys []Key) (Key, error) {
	for i, key := range keys {
		err := d.Authenticate(ctx, chip.PICCAuthKeyA, block, key, uid)
		if err == nil {
			return key, nil
		}
		if status := StatusOf(err); status == StatusBusError || status == StatusInvalid {
			return Key{}, err
		}
		debugf("FindKeyA: key %d failed for block %d: %v", i, block, err)

		if err := d.reselect(ctx, uid); err != nil {
			return Key{}, err
		}
	}
	return Key{}, ErrKeyNotFound
}

// reselect brings the PICC with uid back to ACTIVE after a failed
// authentication.
func (d *Device) reselect(ctx context.Context, uid *UID) error {
	if err := d.StopCrypto1(); err != nil {
		return err
	}
	if err := d.HaltA(ctx); err != nil && StatusOf(err) == StatusBusError {
		return err
	}
	var atqa [2]byte
	if err := d.WakeupA(ctx, atqa[:]); err != nil && StatusOf(err) != StatusCollision {
		return err
	}
	again, err := d.ReadCardSerial(ctx)
	if err != nil {
		return err
	}
	if !bytes.Equal(again.Bytes(), uid.Bytes()) {
		return fmt.Errorf("%w: card %s replaced by %s", StatusError, uid, again)
	}
	return nil
}

// Read reads a MIFARE Classic block or, on Ultralight, four pages starting
// at block. buf must hold at least 18 bytes: 16 data bytes followed by the
// CRC_A, which is checked. It returns the number of bytes stored.
func (d *Device) Read(ctx context.Context, block byte, buf []byte) (int, error) {
	if len(buf) < mifareReadSize {
		return 0, StatusNoRoom
	}

	cmd := []byte{chip.PICCRead, block}
	crc, err := d.CalculateCRC(ctx, cmd)
	if err != nil {
		return 0, err
	}
	cmd = append(cmd, crc[0], crc[1])

	f := &Frame{Send: cmd, Recv: buf, CheckCRC: true}
	if err := d.Transceive(ctx, f); err != nil {
		return f.RecvLen, err
	}
	return f.RecvLen, nil
}

// Write writes 16 bytes to a MIFARE Classic block. Only the first 16 bytes
// of data are used. On Ultralight the card takes the first four.
func (d *Device) Write(ctx context.Context, block byte, data []byte) error {
	if len(data) < MifareBlockSize {
		return StatusInvalid
	}

	// Address phase, then data phase. Each is acknowledged separately.
	if err := d.mifareTransceive(ctx, []byte{chip.PICCWrite, block}, false); err != nil {
		return err
	}
	return d.mifareTransceive(ctx, data[:MifareBlockSize], false)
}

// UltralightWrite writes one 4-byte page of a MIFARE Ultralight.
func (d *Device) UltralightWrite(ctx context.Context, page byte, data []byte) error {
	if len(data) < UltralightPageSize {
		return StatusInvalid
	}
	cmd := []byte{chip.PICCULWrite, page, data[0], data[1], data[2], data[3]}
	return d.mifareTransceive(ctx, cmd, false)
}

// Decrement subtracts delta from the value block and keeps the result in
// the card's transfer buffer. Use Transfer to store it.
func (d *Device) Decrement(ctx context.Context, block byte, delta int32) error {
	return d.twoStep(ctx, chip.PICCDecrement, block, delta)
}

// Increment adds delta to the value block and keeps the result in the
// card's transfer buffer. Use Transfer to store it.
func (d *Device) Increment(ctx context.Context, block byte, delta int32) error {
	return d.twoStep(ctx, chip.PICCIncrement, block, delta)
}

// Restore copies the value block into the card's transfer buffer. Use
// Transfer to store it.
func (d *Device) Restore(ctx context.Context, block byte) error {
	return d.twoStep(ctx, chip.PICCRestore, block, RestoreDataValue)
}

// twoStep sends a value command and its 4-byte operand. The card does not
// always acknowledge the operand, so a timeout there is success.
func (d *Device) twoStep(ctx context.Context, cmd, block byte, data int32) error {
	if err := d.mifareTransceive(ctx, []byte{cmd, block}, false); err != nil {
		return err
	}
	var operand [4]byte
	binary.LittleEndian.PutUint32(operand[:], uint32(data))
	return d.mifareTransceive(ctx, operand[:], true)
}

// Transfer writes the card's transfer buffer to block.
func (d *Device) Transfer(ctx context.Context, block byte) error {
	return d.mifareTransceive(ctx, []byte{chip.PICCTransfer, block}, false)
}

// GetValue reads a value block. A block that is not a valid value block
// fails with StatusError.
func (d *Device) GetValue(ctx context.Context, block byte) (int32, error) {
	var buf [mifareReadSize]byte
	if _, err := d.Read(ctx, block, buf[:]); err != nil {
		return 0, err
	}
	value, _, err := DecodeValueBlock(buf[:MifareBlockSize])
	return value, err
}

// SetValue formats block as a value block holding value.
func (d *Device) SetValue(ctx context.Context, block byte, value int32) error {
	data := EncodeValueBlock(value, block)
	return d.Write(ctx, block, data[:])
}

// mifareTransceive sends data with a CRC_A appended and expects the 4-bit
// MIFARE ACK. With acceptTimeout a missing answer also counts as success.
func (d *Device) mifareTransceive(ctx context.Context, data []byte, acceptTimeout bool) error {
	if len(data) > mifareMaxSend {
		return StatusInvalid
	}

	crc, err := d.CalculateCRC(ctx, data)
	if err != nil {
		return err
	}
	send := make([]byte, 0, len(data)+2)
	send = append(send, data...)
	send = append(send, crc[0], crc[1])

	f := &Frame{Send: send, Recv: make([]byte, mifareReadSize)}
	err = d.Transceive(ctx, f)
	if acceptTimeout && StatusOf(err) == StatusTimeout {
		return nil
	}
	if err != nil {
		return err
	}

	if f.RecvLen != 1 || f.RxLastBits != 4 {
		return StatusError
	}
	if f.Recv[0] != chip.MIFAREAck {
		return StatusMifareNACK
	}
	return nil
}
