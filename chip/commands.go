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

package chip

import "fmt"

// Command is a PCD command written to CommandReg[3:0].
type Command byte

const (
	Idle             Command = 0x00
	Mem              Command = 0x01
	GenerateRandomID Command = 0x02
	CalcCRC          Command = 0x03
	Transmit         Command = 0x04
	NoCmdChange      Command = 0x07
	Receive          Command = 0x08
	Transceive       Command = 0x0C
	MFAuthent        Command = 0x0E
	SoftReset        Command = 0x0F
)

// String returns the datasheet name of the command.
func (c Command) String() string {
	switch c {
	case Idle:
		return "Idle"
	case Mem:
		return "Mem"
	case GenerateRandomID:
		return "Generate RandomID"
	case CalcCRC:
		return "CalcCRC"
	case Transmit:
		return "Transmit"
	case NoCmdChange:
		return "NoCmdChange"
	case Receive:
		return "Receive"
	case Transceive:
		return "Transceive"
	case MFAuthent:
		return "MFAuthent"
	case SoftReset:
		return "SoftReset"
	default:
		return fmt.Sprintf("Command(0x%02X)", byte(c))
	}
}

// ISO/IEC 14443-3 type A commands
const (
	PICCReqA    byte = 0x26
	PICCWupA    byte = 0x52
	PICCCT      byte = 0x88
	PICCSelCL1  byte = 0x93
	PICCSelCL2  byte = 0x95
	PICCSelCL3  byte = 0x97
	PICCHltA    byte = 0x50
	PICCRatsReq byte = 0xE0
)

// MIFARE Classic and Ultralight commands
const (
	PICCAuthKeyA  byte = 0x60
	PICCAuthKeyB  byte = 0x61
	PICCRead      byte = 0x30
	PICCWrite     byte = 0xA0
	PICCDecrement byte = 0xC0
	PICCIncrement byte = 0xC1
	PICCRestore   byte = 0xC2
	PICCTransfer  byte = 0xB0
	PICCULWrite   byte = 0xA2
)

// MIFAREAck is the 4-bit acknowledge a MIFARE PICC sends after a command.
const MIFAREAck byte = 0x0A

// Gen1a "magic" card backdoor commands. The first is sent as a 7-bit frame.
const (
	MagicUnlock1 byte = 0x40
	MagicUnlock2 byte = 0x43
)

// SelectNVBComplete is the NVB of a SELECT carrying all 40 UID bits plus BCC.
const SelectNVBComplete byte = 0x70

// SAK bits
const (
	SAKCascade byte = 0x04
)

// Version is the content of VersionReg.
type Version byte

const (
	VersionFM17522     Version = 0x88
	Version0_0         Version = 0x90
	Version1_0         Version = 0x91
	Version2_0         Version = 0x92
	VersionCounterfeit Version = 0x12
)

// String names the chip behind the version byte.
func (v Version) String() string {
	switch v {
	case VersionFM17522:
		return "FM17522 (clone)"
	case Version0_0:
		return "v0.0"
	case Version1_0:
		return "v1.0"
	case Version2_0:
		return "v2.0"
	case VersionCounterfeit:
		return "counterfeit chip"
	default:
		return "unknown"
	}
}

// Known reports whether v is one of the recognised versions.
func (v Version) Known() bool {
	switch v {
	case VersionFM17522, Version0_0, Version1_0, Version2_0, VersionCounterfeit:
		return true
	default:
		return false
	}
}
