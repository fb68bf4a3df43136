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

// Package mfrc522 drives the NXP MFRC522 contactless reader IC.
//
// The package is layered the way the chip is used:
//
//   - register transactions through a Transport (I2C, SPI or UART)
//   - the on-chip CRC coprocessor
//   - the command/response engine that loads the FIFO, runs a PCD command
//     and decodes the interrupt and error registers
//   - the ISO/IEC 14443-3 type A card layer (REQA/WUPA, anticollision and
//     select, HALT) and the MIFARE Classic/Ultralight command set
//
// Every protocol operation hangs off a *Device and returns an error whose
// value is a Status, or a *BusError when the register port itself failed:
//
//	dev, err := mfrc522.New(transport)
//	if err != nil {
//	    return err
//	}
//	if err := dev.Init(ctx); err != nil {
//	    return err
//	}
//	if dev.IsNewCardPresent(ctx) {
//	    uid, err := dev.ReadCardSerial(ctx)
//	    ...
//	}
//
// Use StatusOf to map any returned error back onto the Status enumeration.
package mfrc522
