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

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// maxMagicUIDSize is the largest UID SetUID can place in block 0.
const maxMagicUIDSize = 15

// unbrickBlock0 is a valid manufacturer block for a 4-byte UID card.
var unbrickBlock0 = [MifareBlockSize]byte{0x01, 0x02, 0x03, 0x04, 0x04}

// OpenUIDBackdoor unlocks block 0 of a "Chinese magic" (gen1a) MIFARE
// Classic card. The card is halted and then answers two vendor commands
// with an ACK; regular cards ignore them and the call fails with
// StatusTimeout. Block 0 can then be written without authentication.
func (d *Device) OpenUIDBackdoor(ctx context.Context) error {
	// The card must be in HALT for the backdoor to respond. A failure here
	// shows up in the next step.
	_ = d.HaltA(ctx)

	if err := d.magicCommand(ctx, chip.MagicUnlock1, 7); err != nil {
		return fmt.Errorf("UID backdoor command 0x%02X: %w", chip.MagicUnlock1, err)
	}
	if err := d.magicCommand(ctx, chip.MagicUnlock2, 0); err != nil {
		return fmt.Errorf("UID backdoor command 0x%02X: %w", chip.MagicUnlock2, err)
	}
	return nil
}

func (d *Device) magicCommand(ctx context.Context, cmd, txLastBits byte) error {
	var resp [32]byte
	f := &Frame{Send: []byte{cmd}, TxLastBits: txLastBits, Recv: resp[:]}
	if err := d.Transceive(ctx, f); err != nil {
		return err
	}
	if f.RecvLen != 1 || resp[0] != chip.MIFAREAck {
		debugf("magic command 0x%02X answered % X (%d bits in last byte)", cmd, f.Received(), f.RxLastBits)
		return StatusError
	}
	return nil
}

// SetUID writes newUID into block 0 of a gen1a magic card selected as uid.
// The rest of block 0 is kept and the BCC byte after the UID is
// recomputed. uid is updated in place when the card has to be selected
// again. Some cards only accept a 4-byte UID here.
func (d *Device) SetUID(ctx context.Context, uid *UID, newUID []byte) error {
	if len(newUID) == 0 || len(newUID) > maxMagicUIDSize || uid == nil {
		return StatusInvalid
	}

	// Reading block 0 needs authentication; a timeout means the card is not
	// selected yet.
	err := d.Authenticate(ctx, chip.PICCAuthKeyA, 1, DefaultKey, uid)
	if StatusOf(err) == StatusTimeout {
		if !d.IsNewCardPresent(ctx) {
			return fmt.Errorf("no card to rewrite: %w", StatusTimeout)
		}
		if err = d.Select(ctx, uid, 0); err != nil {
			return err
		}
		err = d.Authenticate(ctx, chip.PICCAuthKeyA, 1, DefaultKey, uid)
	}
	if err != nil {
		return fmt.Errorf("authenticate block 1: %w", err)
	}

	var block0 [mifareReadSize]byte
	if _, err := d.Read(ctx, 0, block0[:]); err != nil {
		return fmt.Errorf("read block 0: %w", err)
	}

	var bcc byte
	for i, b := range newUID {
		block0[i] = b
		bcc ^= b
	}
	block0[len(newUID)] = bcc

	// Raw frames follow, so leave the Crypto1 session.
	if err := d.StopCrypto1(); err != nil {
		return err
	}
	if err := d.OpenUIDBackdoor(ctx); err != nil {
		return err
	}
	if err := d.Write(ctx, 0, block0[:MifareBlockSize]); err != nil {
		return fmt.Errorf("write block 0: %w", err)
	}

	// Wake the card so the caller can select it under the new UID.
	var atqa [2]byte
	_ = d.WakeupA(ctx, atqa[:])
	return nil
}

// UnbrickUIDSector rewrites block 0 of a gen1a card whose manufacturer
// block was corrupted, giving it the UID 01 02 03 04.
func (d *Device) UnbrickUIDSector(ctx context.Context) error {
	if err := d.OpenUIDBackdoor(ctx); err != nil {
		debugf("unbrick: backdoor did not open: %v", err)
	}
	if err := d.Write(ctx, 0, unbrickBlock0[:]); err != nil {
		return fmt.Errorf("write block 0: %w", err)
	}
	return nil
}
