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

// Package chip holds the MFRC522 register map, command codes and the fixed
// tables published in the NXP datasheet (MFRC522 Rev. 3.9).
package chip

import "fmt"

// Register is a 6-bit MFRC522 register address.
type Register byte

// Page 0: command and status
const (
	CommandReg    Register = 0x01
	ComIEnReg     Register = 0x02
	DivIEnReg     Register = 0x03
	ComIrqReg     Register = 0x04
	DivIrqReg     Register = 0x05
	ErrorReg      Register = 0x06
	Status1Reg    Register = 0x07
	Status2Reg    Register = 0x08
	FIFODataReg   Register = 0x09
	FIFOLevelReg  Register = 0x0A
	WaterLevelReg Register = 0x0B
	ControlReg    Register = 0x0C
	BitFramingReg Register = 0x0D
	CollReg       Register = 0x0E
)

// Page 1: command
const (
	ModeReg        Register = 0x11
	TxModeReg      Register = 0x12
	RxModeReg      Register = 0x13
	TxControlReg   Register = 0x14
	TxASKReg       Register = 0x15
	TxSelReg       Register = 0x16
	RxSelReg       Register = 0x17
	RxThresholdReg Register = 0x18
	DemodReg       Register = 0x19
	MfTxReg        Register = 0x1C
	MfRxReg        Register = 0x1D
	SerialSpeedReg Register = 0x1F
)

// Page 2: configuration
const (
	CRCResultRegH     Register = 0x21
	CRCResultRegL     Register = 0x22
	ModWidthReg       Register = 0x24
	RFCfgReg          Register = 0x26
	GsNReg            Register = 0x27
	CWGsPReg          Register = 0x28
	ModGsPReg         Register = 0x29
	TModeReg          Register = 0x2A
	TPrescalerReg     Register = 0x2B
	TReloadRegH       Register = 0x2C
	TReloadRegL       Register = 0x2D
	TCounterValueRegH Register = 0x2E
	TCounterValueRegL Register = 0x2F
)

// Page 3: test registers
const (
	TestSel1Reg     Register = 0x31
	TestSel2Reg     Register = 0x32
	TestPinEnReg    Register = 0x33
	TestPinValueReg Register = 0x34
	TestBusReg      Register = 0x35
	AutoTestReg     Register = 0x36
	VersionReg      Register = 0x37
	AnalogTestReg   Register = 0x38
	TestDAC1Reg     Register = 0x39
	TestDAC2Reg     Register = 0x3A
	TestADCReg      Register = 0x3B
)

// RegisterCount is the size of the register address space.
const RegisterCount = 0x40

var registerNames = map[Register]string{
	CommandReg:        "CommandReg",
	ComIEnReg:         "ComIEnReg",
	DivIEnReg:         "DivIEnReg",
	ComIrqReg:         "ComIrqReg",
	DivIrqReg:         "DivIrqReg",
	ErrorReg:          "ErrorReg",
	Status1Reg:        "Status1Reg",
	Status2Reg:        "Status2Reg",
	FIFODataReg:       "FIFODataReg",
	FIFOLevelReg:      "FIFOLevelReg",
	WaterLevelReg:     "WaterLevelReg",
	ControlReg:        "ControlReg",
	BitFramingReg:     "BitFramingReg",
	CollReg:           "CollReg",
	ModeReg:           "ModeReg",
	TxModeReg:         "TxModeReg",
	RxModeReg:         "RxModeReg",
	TxControlReg:      "TxControlReg",
	TxASKReg:          "TxASKReg",
	TxSelReg:          "TxSelReg",
	RxSelReg:          "RxSelReg",
	RxThresholdReg:    "RxThresholdReg",
	DemodReg:          "DemodReg",
	MfTxReg:           "MfTxReg",
	MfRxReg:           "MfRxReg",
	SerialSpeedReg:    "SerialSpeedReg",
	CRCResultRegH:     "CRCResultRegH",
	CRCResultRegL:     "CRCResultRegL",
	ModWidthReg:       "ModWidthReg",
	RFCfgReg:          "RFCfgReg",
	GsNReg:            "GsNReg",
	CWGsPReg:          "CWGsPReg",
	ModGsPReg:         "ModGsPReg",
	TModeReg:          "TModeReg",
	TPrescalerReg:     "TPrescalerReg",
	TReloadRegH:       "TReloadRegH",
	TReloadRegL:       "TReloadRegL",
	TCounterValueRegH: "TCounterValueRegH",
	TCounterValueRegL: "TCounterValueRegL",
	TestSel1Reg:       "TestSel1Reg",
	TestSel2Reg:       "TestSel2Reg",
	TestPinEnReg:      "TestPinEnReg",
	TestPinValueReg:   "TestPinValueReg",
	TestBusReg:        "TestBusReg",
	AutoTestReg:       "AutoTestReg",
	VersionReg:        "VersionReg",
	AnalogTestReg:     "AnalogTestReg",
	TestDAC1Reg:       "TestDAC1Reg",
	TestDAC2Reg:       "TestDAC2Reg",
	TestADCReg:        "TestADCReg",
}

// String returns the datasheet name of the register.
func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reg(0x%02X)", byte(r))
}

// Valid reports whether r fits in the 6-bit address space.
func (r Register) Valid() bool {
	return r < RegisterCount
}

// CommandReg bits
const (
	PowerDown   byte = 0x10
	CommandMask byte = 0x0F
)

// ComIrqReg bits
const (
	Set1       byte = 0x80
	TxIRq      byte = 0x40
	RxIRq      byte = 0x20
	IdleIRq    byte = 0x10
	HiAlertIRq byte = 0x08
	LoAlertIRq byte = 0x04
	ErrIRq     byte = 0x02
	TimerIRq   byte = 0x01

	// AllIRqs clears every ComIrqReg flag when written with Set1 low.
	AllIRqs byte = 0x7F
)

// DivIrqReg bits
const (
	MfinActIRq byte = 0x10
	CRCIRq     byte = 0x04
)

// ErrorReg bits
const (
	WrErr       byte = 0x80
	TempErr     byte = 0x40
	BufferOvfl  byte = 0x10
	CollErr     byte = 0x08
	CRCErr      byte = 0x04
	ParityErr   byte = 0x02
	ProtocolErr byte = 0x01

	// FatalErrors abort a command before any FIFO data is read.
	FatalErrors = BufferOvfl | ParityErr | ProtocolErr
)

// Status2Reg bits
const (
	MFCrypto1On byte = 0x08
)

// FIFOLevelReg bits
const (
	FlushBuffer   byte = 0x80
	FIFOLevelMask byte = 0x7F
)

// FIFOSize is the depth of the chip FIFO in bytes.
const FIFOSize = 64

// ControlReg bits
const (
	RxLastBitsMask byte = 0x07
)

// BitFramingReg bits
const (
	StartSend byte = 0x80
)

// CollReg bits
const (
	ValuesAfterColl byte = 0x80
	CollPosNotValid byte = 0x20
	CollPosMask     byte = 0x1F
)

// TxControlReg bits
const (
	Tx2RFEn byte = 0x02
	Tx1RFEn byte = 0x01
	TxRFEn       = Tx1RFEn | Tx2RFEn
)

// RxGain values for RFCfgReg[6:4].
type RxGain byte

const (
	RxGain18dB  RxGain = 0x00
	RxGain23dB  RxGain = 0x10
	RxGain18dB2 RxGain = 0x20
	RxGain23dB2 RxGain = 0x30
	RxGain33dB  RxGain = 0x40
	RxGain38dB  RxGain = 0x50
	RxGain43dB  RxGain = 0x60
	RxGain48dB  RxGain = 0x70

	RxGainMin RxGain = RxGain18dB
	RxGainAvg RxGain = RxGain33dB
	RxGainMax RxGain = RxGain48dB

	RxGainMask byte = 0x70
)

// String returns the gain in decibels.
func (g RxGain) String() string {
	switch g & RxGain(RxGainMask) {
	case RxGain18dB, RxGain18dB2:
		return "18 dB"
	case RxGain23dB, RxGain23dB2:
		return "23 dB"
	case RxGain33dB:
		return "33 dB"
	case RxGain38dB:
		return "38 dB"
	case RxGain43dB:
		return "43 dB"
	default:
		return "48 dB"
	}
}

// CRCPreset returns the CRC coprocessor preset selected by ModeReg[1:0].
func CRCPreset(mode byte) uint16 {
	switch mode & 0x03 {
	case 0x00:
		return 0x0000
	case 0x01:
		return 0x6363
	case 0x02:
		return 0xA671
	default:
		return 0xFFFF
	}
}
