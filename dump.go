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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// Dump output goes to the writer given with WithDiagnostics. Write errors
// on that writer are ignored; the returned errors come from the chip.

// DumpVersion prints the firmware version. 0x00 and 0xFF are printed with
// a wiring warning and reported as an error.
func (d *Device) DumpVersion(ctx context.Context) error {
	version, err := d.Version(ctx)
	var busErr *BusError
	if err != nil && !(errors.As(err, &busErr) && errors.Is(busErr.Err, ErrDeviceNotFound)) {
		return err
	}
	fmt.Fprintf(d.diag, "MFRC522 Firmware Version Detected: 0x%02X = %s\n", byte(version), version)
	if err != nil {
		fmt.Fprintln(d.diag, "WARNING: Communication failure, is the MFRC522 properly connected?")
	}
	return err
}

// DumpDetails prints the UID, SAK and PICC type of uid.
func (d *Device) DumpDetails(uid *UID) {
	fmt.Fprintf(d.diag, "Card UID: % X\n", uid.Bytes())
	fmt.Fprintf(d.diag, "Card SAK: %02X\n", uid.SAK)
	fmt.Fprintf(d.diag, "PICC type: %s\n", uid.Type())
}

// DumpCard prints the UID, type and memory of the selected PICC. MIFARE
// Classic sectors are read with key as key A. The PICC is halted
// afterwards.
func (d *Device) DumpCard(ctx context.Context, uid *UID, key Key) error {
	fmt.Fprintf(d.diag, "Card UID: % X\n", uid.Bytes())
	piccType := uid.Type()
	fmt.Fprintf(d.diag, "PICC type: %s\n", piccType)

	var err error
	switch piccType {
	case PICCTypeMifareMini, PICCTypeMifare1K, PICCTypeMifare4K:
		err = d.DumpClassic(ctx, uid, key)
	case PICCTypeMifareUL:
		err = d.DumpUltralight(ctx)
	case PICCTypeISO14443_4, PICCTypeISO18092, PICCTypeMifarePlus, PICCTypeTNP3XXX:
		fmt.Fprintln(d.diag, "Dumping memory contents not implemented for that PICC type.")
	}
	fmt.Fprintln(d.diag)

	if haltErr := d.HaltA(ctx); err == nil {
		err = haltErr
	}
	return err
}

// classicSectors returns the number of sectors of a MIFARE Classic type.
func classicSectors(t PICCType) int {
	switch t {
	case PICCTypeMifareMini:
		return 5
	case PICCTypeMifare1K:
		return 16
	case PICCTypeMifare4K:
		return 40
	default:
		return 0
	}
}

// DumpClassic prints every sector of a MIFARE Classic PICC, highest
// address first, then halts the PICC and leaves the Crypto1 session.
// Sectors that fail to authenticate are reported inline and skipped.
func (d *Device) DumpClassic(ctx context.Context, uid *UID, key Key) error {
	sectors := classicSectors(uid.Type())
	if sectors > 0 {
		fmt.Fprintln(d.diag, "Sector Block   0  1  2  3   4  5  6  7   8  9 10 11  12 13 14 15  AccessBits")
		for sector := sectors - 1; sector >= 0; sector-- {
			if err := d.DumpClassicSector(ctx, uid, key, byte(sector)); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if errors.Is(err, StatusBusError) {
					return err
				}
			}
		}
	}

	_ = d.HaltA(ctx)
	return d.StopCrypto1()
}

// sectorLayout returns the first block and the block count of a sector.
// Sectors 0 to 31 have 4 blocks and sectors 32 to 39 of a 4K card have 16.
func sectorLayout(sector byte) (first byte, blocks int, ok bool) {
	switch {
	case sector < 32:
		return sector * 4, 4, true
	case sector < 40:
		return 128 + (sector-32)*16, 16, true
	default:
		return 0, 0, false
	}
}

// DumpClassicSector prints one sector, highest block first, with the
// access conditions of each block group and the content of value blocks.
// The sector is authenticated with key as key A because only key A can
// always read the trailer.
func (d *Device) DumpClassicSector(ctx context.Context, uid *UID, key Key, sector byte) error {
	firstBlock, blocks, ok := sectorLayout(sector)
	if !ok {
		return StatusInvalid
	}

	var (
		groups     [4]byte
		accessOK   bool
		buf        [mifareReadSize]byte
		isTrailer  = true
		lastResult error
	)
	for offset := blocks - 1; offset >= 0; offset-- {
		block := firstBlock + byte(offset)
		if isTrailer {
			fmt.Fprintf(d.diag, "%4d   ", sector)
		} else {
			fmt.Fprint(d.diag, "       ")
		}
		fmt.Fprintf(d.diag, "%4d  ", block)

		if isTrailer {
			if err := d.Authenticate(ctx, chip.PICCAuthKeyA, firstBlock, key, uid); err != nil {
				fmt.Fprintf(d.diag, "Authenticate() failed: %s\n", StatusOf(err))
				return err
			}
		}

		if _, err := d.Read(ctx, block, buf[:]); err != nil {
			fmt.Fprintf(d.diag, "Read() failed: %s\n", StatusOf(err))
			lastResult = err
			continue
		}
		for i := 0; i < MifareBlockSize; i++ {
			fmt.Fprintf(d.diag, " %02X", buf[i])
			if i%4 == 3 {
				fmt.Fprint(d.diag, " ")
			}
		}

		if isTrailer {
			groups, accessOK = DecodeAccessBits([3]byte{buf[6], buf[7], buf[8]})
			isTrailer = false
		}

		group, firstInGroup := offset, true
		if blocks != 4 {
			group = offset / 5
			firstInGroup = group == 3 || group != (offset+1)/5
		}
		g := groups[group]

		if firstInGroup {
			fmt.Fprintf(d.diag, " [ %d %d %d ] ", g>>2&1, g>>1&1, g&1)
			if !accessOK {
				fmt.Fprint(d.diag, " Inverted access bits did not match! ")
			}
		}
		// Groups 110 and 001 are value blocks.
		if group != 3 && (g == 1 || g == 6) {
			value := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
			fmt.Fprintf(d.diag, " Value=0x%X Adr=0x%X", value, buf[12])
		}
		fmt.Fprintln(d.diag)
	}
	return lastResult
}

// DumpUltralight prints pages 0 to 15 of a MIFARE Ultralight PICC. READ
// returns four pages at a time.
func (d *Device) DumpUltralight(ctx context.Context) error {
	fmt.Fprintln(d.diag, "Page  0  1  2  3")

	var buf [mifareReadSize]byte
	for page := byte(0); page < 16; page += 4 {
		if _, err := d.Read(ctx, page, buf[:]); err != nil {
			fmt.Fprintf(d.diag, "Read() failed: %s\n", StatusOf(err))
			return err
		}
		for offset := byte(0); offset < 4; offset++ {
			fmt.Fprintf(d.diag, "%3d  ", page+offset)
			for i := byte(0); i < UltralightPageSize; i++ {
				fmt.Fprintf(d.diag, " %02X", buf[4*offset+i])
			}
			fmt.Fprintln(d.diag)
		}
	}
	return nil
}
