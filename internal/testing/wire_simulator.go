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

// Package testing provides test utilities including a register-level
// MFRC522 simulator.
//
// VirtualMFRC522 answers register reads and writes the way the chip does
// on its host interface, as described in the MFRC522 datasheet (rev. 3.9):
//   - FIFO buffer with FIFOLevelReg and FlushBuffer (§8.3)
//   - interrupt request registers with the Set1/Set2 convention (§9.3.1.5)
//   - the command set of §10.3, including the CRC coprocessor and the
//     digital self test of §16.1.1
//   - ISO/IEC 14443 A framing with bit-oriented frames, RxAlign and
//     collision detection (§9.3.1.14, §9.3.1.15)
//
// Virtual tags placed in the field answer Transceive and MFAuthent.
package testing

import (
	"errors"

	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// ErrInjected is returned for registers set up with InjectBusError when no
// specific error is given.
var ErrInjected = errors.New("injected bus error")

// resetValues are the register contents after power-on or SoftReset.
var resetValues = map[chip.Register]byte{
	chip.CommandReg:      0x20,
	chip.ComIEnReg:       0x80,
	chip.ComIrqReg:       0x14,
	chip.Status1Reg:      0x21,
	chip.WaterLevelReg:   0x08,
	chip.ControlReg:      0x10,
	chip.CollReg:         0x80,
	chip.ModeReg:         0x3F,
	chip.TxModeReg:       0x00,
	chip.RxModeReg:       0x00,
	chip.TxControlReg:    0x80,
	chip.TxSelReg:        0x10,
	chip.RxSelReg:        0x84,
	chip.RxThresholdReg:  0x84,
	chip.DemodReg:        0x4D,
	chip.MfTxReg:         0x62,
	chip.SerialSpeedReg:  0xEB,
	chip.CRCResultRegH:   0xFF,
	chip.CRCResultRegL:   0xFF,
	chip.ModWidthReg:     0x26,
	chip.RFCfgReg:        0x48,
	chip.GsNReg:          0x88,
	chip.CWGsPReg:        0x20,
	chip.ModGsPReg:       0x20,
	chip.AutoTestReg:     0x40,
	chip.TestPinEnReg:    0x80,
	chip.TestSel1Reg:     0x00,
	chip.TestSel2Reg:     0x00,
	chip.TestPinValueReg: 0x00,
}

// RegisterWrite is one write transaction seen by the simulator.
type RegisterWrite struct {
	Values []byte
	Reg    chip.Register
}

// Transmission is one frame the simulated chip sent to the field.
type Transmission struct {
	Data []byte
	Bits int
}

// VirtualMFRC522 simulates an MFRC522 behind its register interface.
//
// It is safe for concurrent use; every register transaction is atomic.
type VirtualMFRC522 struct {
	busErrors     map[chip.Register]error
	regs          [chip.RegisterCount]byte
	fifo          []byte
	selfTestMem   []byte
	tags          []*VirtualTag
	writes        []RegisterWrite
	transmissions []Transmission
	mu            syncutil.Mutex
	version       byte
	pendingErrors byte
	powerDownLeft int
	powerDownSet  int
	stallCommands bool
	stallCRC      bool
}

// NewVirtualMFRC522 creates a simulator for a version 2.0 chip with no
// tags in the field. The chip starts out as after power-on.
func NewVirtualMFRC522() *VirtualMFRC522 {
	v := &VirtualMFRC522{
		version:   byte(chip.Version2_0),
		busErrors: make(map[chip.Register]error),
	}
	v.softReset()
	return v
}

// WriteRegister performs one register write transaction.
func (v *VirtualMFRC522) WriteRegister(reg chip.Register, values []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.busErrors[reg]; err != nil {
		return err
	}
	v.writes = append(v.writes, RegisterWrite{Reg: reg, Values: append([]byte(nil), values...)})

	for _, value := range values {
		v.writeByte(reg, value)
	}
	return nil
}

// ReadRegister performs one register read transaction filling buf.
func (v *VirtualMFRC522) ReadRegister(reg chip.Register, buf []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.busErrors[reg]; err != nil {
		return err
	}
	for i := range buf {
		buf[i] = v.readByte(reg)
	}
	return nil
}

func (v *VirtualMFRC522) readByte(reg chip.Register) byte {
	switch reg {
	case chip.FIFODataReg:
		if len(v.fifo) == 0 {
			return 0
		}
		b := v.fifo[0]
		v.fifo = v.fifo[1:]
		return b
	case chip.FIFOLevelReg:
		return byte(len(v.fifo))
	case chip.VersionReg:
		return v.version
	case chip.CommandReg:
		if v.powerDownLeft > 0 {
			v.powerDownLeft--
			return v.regs[reg] | chip.PowerDown
		}
		return v.regs[reg]
	default:
		return v.regs[reg]
	}
}

func (v *VirtualMFRC522) writeByte(reg chip.Register, value byte) {
	switch reg {
	case chip.FIFODataReg:
		if len(v.fifo) >= chip.FIFOSize {
			v.regs[chip.ErrorReg] |= chip.BufferOvfl
			return
		}
		v.fifo = append(v.fifo, value)
	case chip.FIFOLevelReg:
		if value&chip.FlushBuffer != 0 {
			v.fifo = v.fifo[:0]
			v.regs[chip.ErrorReg] &^= chip.BufferOvfl
		}
	case chip.ComIrqReg, chip.DivIrqReg:
		// Bit 7 selects whether the marked bits are set or cleared.
		if value&0x80 != 0 {
			v.regs[reg] |= value & 0x7F
		} else {
			v.regs[reg] &^= value & 0x7F
		}
	case chip.CommandReg:
		v.regs[reg] = value & 0x3F
		v.execute(chip.Command(value & chip.CommandMask))
	case chip.BitFramingReg:
		v.regs[reg] = value
		if value&chip.StartSend != 0 && chip.Command(v.regs[chip.CommandReg]&chip.CommandMask) == chip.Transceive {
			v.transceive()
			v.regs[reg] &^= chip.StartSend
		}
	case chip.Status2Reg:
		v.regs[reg] = value
		if value&chip.MFCrypto1On == 0 {
			for _, tag := range v.tags {
				if tag.authSector >= 0 {
					tag.authSector = -1
				}
			}
		}
	case chip.TxControlReg:
		v.regs[reg] = value
		if !v.fieldOn() {
			for _, tag := range v.tags {
				tag.reset()
			}
		}
	case chip.VersionReg, chip.ErrorReg, chip.Status1Reg, chip.CRCResultRegH, chip.CRCResultRegL:
		// read only
	default:
		v.regs[reg] = value
	}
}

func (v *VirtualMFRC522) fieldOn() bool {
	return v.regs[chip.TxControlReg]&chip.TxRFEn != 0
}

// finish returns the chip to Idle, as commands that terminate by
// themselves do.
func (v *VirtualMFRC522) finish() {
	v.regs[chip.CommandReg] = v.regs[chip.CommandReg]&^chip.CommandMask | byte(chip.Idle)
	v.regs[chip.ComIrqReg] |= chip.IdleIRq
}

func (v *VirtualMFRC522) execute(cmd chip.Command) {
	switch cmd {
	case chip.Idle, chip.NoCmdChange:
	case chip.Mem:
		v.selfTestMem = append(v.selfTestMem[:0], v.fifo...)
		v.fifo = v.fifo[:0]
		v.finish()
	case chip.CalcCRC:
		v.calcCRC()
	case chip.Transceive:
		v.regs[chip.ErrorReg] = 0
	case chip.MFAuthent:
		v.mfAuthent()
	case chip.SoftReset:
		v.softReset()
	default:
		v.finish()
	}
}

func (v *VirtualMFRC522) calcCRC() {
	if v.regs[chip.AutoTestReg]&0x0F == chip.AutoTestSelfTest {
		v.fifo = v.fifo[:0]
		reference, ok := chip.SelfTestReference(chip.Version(v.version))
		if ok && len(v.selfTestMem) == 25 {
			v.fifo = append(v.fifo, reference[:]...)
		} else {
			v.fifo = append(v.fifo, make([]byte, chip.SelfTestLength)...)
		}
	} else {
		crc := chip.CRCA(chip.CRCPreset(v.regs[chip.ModeReg]), v.fifo)
		v.fifo = v.fifo[:0]
		v.regs[chip.CRCResultRegL] = crc[0]
		v.regs[chip.CRCResultRegH] = crc[1]
	}
	if !v.stallCRC {
		v.regs[chip.DivIrqReg] |= chip.CRCIRq
	}
}

func (v *VirtualMFRC522) softReset() {
	var regs [chip.RegisterCount]byte
	for reg, value := range resetValues {
		regs[reg] = value
	}
	v.regs = regs
	v.fifo = v.fifo[:0]
	v.powerDownLeft = v.powerDownSet
	for _, tag := range v.tags {
		tag.reset()
	}
}

// mfAuthent runs the MIFARE authentication with the FIFO content
// cmd, block, key (6 bytes), UID (4 bytes).
func (v *VirtualMFRC522) mfAuthent() {
	data := append([]byte(nil), v.fifo...)
	v.fifo = v.fifo[:0]
	v.regs[chip.ErrorReg] = 0

	if v.stallCommands {
		return
	}
	if len(data) != 12 || !v.fieldOn() {
		v.regs[chip.ComIrqReg] |= chip.TimerIRq
		return
	}
	for _, tag := range v.tags {
		if tag.authenticate(data[0], int(data[1]), data[2:8], data[8:12]) {
			v.regs[chip.Status2Reg] |= chip.MFCrypto1On
			v.finish()
			return
		}
	}
	// A wrong key leaves the tag silent and the timer runs out.
	v.regs[chip.ComIrqReg] |= chip.TimerIRq
}

// transceive sends the FIFO to the field and stores the merged answers of
// all tags that respond.
func (v *VirtualMFRC522) transceive() {
	framing := v.regs[chip.BitFramingReg]
	txLastBits := int(framing & 0x07)
	rxAlign := int(framing>>4) & 0x07

	frame := append([]byte(nil), v.fifo...)
	v.fifo = v.fifo[:0]
	bits := 8 * len(frame)
	if txLastBits != 0 && len(frame) > 0 {
		bits = 8*(len(frame)-1) + txLastBits
	}
	v.transmissions = append(v.transmissions, Transmission{Data: frame, Bits: bits})

	if v.stallCommands {
		return
	}

	var answers []answer
	if v.fieldOn() {
		for _, tag := range v.tags {
			if a, ok := tag.handle(frame, bits); ok {
				answers = append(answers, a)
			}
		}
	}

	if len(answers) == 0 {
		v.regs[chip.ComIrqReg] |= chip.TimerIRq
		return
	}

	v.receive(answers, rxAlign)
	if v.pendingErrors != 0 {
		v.regs[chip.ErrorReg] |= v.pendingErrors
		v.pendingErrors = 0
	}
	if v.regs[chip.ErrorReg] != 0 {
		v.regs[chip.ComIrqReg] |= chip.ErrIRq
	}
	v.regs[chip.ComIrqReg] |= chip.RxIRq
}

// receive merges the answers bit by bit. The first bit where two tags
// disagree is a collision; its 1-based position within UID CLn is stored in
// CollReg and, unless ValuesAfterColl is set, that bit and all later ones
// are received as zero.
func (v *VirtualMFRC522) receive(answers []answer, rxAlign int) {
	n := 0
	for _, a := range answers {
		n = max(n, a.bits)
	}

	bits := make([]byte, n)
	collision := -1
	for i := 0; i < n && collision < 0; i++ {
		seen := false
		for _, a := range answers {
			if i >= a.bits {
				continue
			}
			b := bitAt(a.data, i)
			if !seen {
				bits[i], seen = b, true
			} else if b != bits[i] {
				collision = i
				break
			}
		}
	}

	keepAfterColl := v.regs[chip.CollReg]&chip.ValuesAfterColl != 0
	if collision >= 0 && !keepAfterColl {
		for i := collision; i < n; i++ {
			bits[i] = 0
		}
	}

	total := rxAlign + n
	out := make([]byte, (total+7)/8)
	for i, b := range bits {
		setBitAt(out, rxAlign+i, b)
	}
	for _, b := range out {
		if len(v.fifo) >= chip.FIFOSize {
			v.regs[chip.ErrorReg] |= chip.BufferOvfl
			break
		}
		v.fifo = append(v.fifo, b)
	}
	v.regs[chip.ControlReg] = v.regs[chip.ControlReg]&^chip.RxLastBitsMask | byte(total%8)

	coll := v.regs[chip.CollReg] & chip.ValuesAfterColl
	if collision >= 0 {
		v.regs[chip.ErrorReg] |= chip.CollErr
		pos := answers[0].offset + collision + 1
		if pos > 32 {
			coll |= chip.CollPosNotValid
		} else {
			coll |= byte(pos) & chip.CollPosMask
		}
	} else {
		coll |= chip.CollPosNotValid
	}
	v.regs[chip.CollReg] = coll
}

// AddTag places a tag in the field.
func (v *VirtualMFRC522) AddTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tags = append(v.tags, tag)
}

// SetTag replaces all tags in the field with tag.
func (v *VirtualMFRC522) SetTag(tag *VirtualTag) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tags = []*VirtualTag{tag}
}

// RemoveAllTags empties the field.
func (v *VirtualMFRC522) RemoveAllTags() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tags = nil
}

// SetVersion sets the VersionReg value.
func (v *VirtualMFRC522) SetVersion(version byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.version = version
}

// InjectBusError makes every transaction on reg fail with err, or with
// ErrInjected when err is nil.
func (v *VirtualMFRC522) InjectBusError(reg chip.Register, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	v.busErrors[reg] = err
}

// ClearBusErrors removes all injected bus errors.
func (v *VirtualMFRC522) ClearBusErrors() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.busErrors = make(map[chip.Register]error)
}

// InjectReceiveErrors sets the given ErrorReg bits on the next frame
// received from a tag.
func (v *VirtualMFRC522) InjectReceiveErrors(bits byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pendingErrors = bits
}

// StallCommands stops Transceive and MFAuthent from ever raising an
// interrupt, as a hung chip would.
func (v *VirtualMFRC522) StallCommands(stall bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stallCommands = stall
}

// StallCRC stops the CRC coprocessor from signalling completion.
func (v *VirtualMFRC522) StallCRC(stall bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stallCRC = stall
}

// SetPowerDownPolls makes CommandReg report PowerDown for the next n reads
// after each SoftReset.
func (v *VirtualMFRC522) SetPowerDownPolls(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.powerDownSet = n
}

// PowerOn resets the chip as the rising edge of NRSTPD does.
func (v *VirtualMFRC522) PowerOn() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.softReset()
	v.powerDownLeft = 0
}

// Register returns the stored value of reg without side effects.
func (v *VirtualMFRC522) Register(reg chip.Register) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	if reg == chip.FIFOLevelReg {
		return byte(len(v.fifo))
	}
	return v.regs[reg]
}

// SetRegister overwrites reg without side effects.
func (v *VirtualMFRC522) SetRegister(reg chip.Register, value byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.regs[reg] = value
}

// Writes returns the write transactions seen so far.
func (v *VirtualMFRC522) Writes() []RegisterWrite {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]RegisterWrite(nil), v.writes...)
}

// Transmissions returns the frames sent to the field so far.
func (v *VirtualMFRC522) Transmissions() []Transmission {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Transmission(nil), v.transmissions...)
}

// ClearLog forgets recorded writes and transmissions.
func (v *VirtualMFRC522) ClearLog() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.writes = nil
	v.transmissions = nil
}
