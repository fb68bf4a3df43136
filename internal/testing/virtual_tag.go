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

package testing

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/ZaparooProject/go-mfrc522/chip"
)

// Common UIDs used by tests
var (
	TestClassic1KUID  = []byte{0xDE, 0xAD, 0xBE, 0xEF}
	TestClassic4KUID  = []byte{0x4A, 0x11, 0x22, 0x33}
	TestUltralightUID = []byte{0x04, 0x51, 0x7C, 0xA2, 0x13, 0x5B, 0x80}
	TestTripleUID     = []byte{0x08, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}
)

// TagType selects the memory layout and answers of a VirtualTag.
type TagType int

const (
	TagClassicMini TagType = iota
	TagClassic1K
	TagClassic4K
	TagUltralight
	TagISO14443_4
)

// TagState is the ISO/IEC 14443-3 state of a PICC.
type TagState int

const (
	TagIdle TagState = iota
	TagReady
	TagActive
	TagHalt
)

func (s TagState) String() string {
	switch s {
	case TagIdle:
		return "IDLE"
	case TagReady:
		return "READY"
	case TagActive:
		return "ACTIVE"
	case TagHalt:
		return "HALT"
	default:
		return "unknown"
	}
}

// answer is a PICC response as a bit string, LSB first. offset is the bit
// position of the first answer bit inside UID CLn for anticollision
// answers, used to report the collision position.
type answer struct {
	data   []byte
	bits   int
	offset int
}

var (
	ackAnswer = answer{data: []byte{chip.MIFAREAck}, bits: 4}
	nakAnswer = answer{data: []byte{0x04}, bits: 4}
)

func bytesAnswer(b []byte) answer {
	return answer{data: b, bits: 8 * len(b)}
}

func crcAnswer(b []byte) answer {
	return bytesAnswer(chip.AppendCRCA(append([]byte(nil), b...)))
}

// VirtualTag simulates an ISO/IEC 14443 type A PICC in front of the
// antenna: REQA/WUPA, bit-level anticollision over up to three cascade
// levels, HLTA, MIFARE Classic memory behind key checks and MIFARE
// Ultralight pages.
type VirtualTag struct {
	// Memory holds 16-byte blocks for MIFARE Classic and 4-byte pages for
	// Ultralight.
	Memory [][]byte
	UID    []byte
	ATQA   [2]byte
	Type   TagType
	SAK    byte
	// Magic makes the tag answer the gen1a backdoor commands.
	Magic bool
	// AnswerHalt makes the tag answer HLTA, which real tags never do.
	AnswerHalt bool
	// NAKWriteData makes the tag refuse the data phase of WRITE.
	NAKWriteData bool

	state        TagState
	wasHalted    bool
	level        int
	authSector   int
	backdoorStep int
	pendingWrite int
	pendingValue *valueOp
	transfer     *int32
}

type valueOp struct {
	cmd   byte
	block int
}

// NewVirtualTag creates a tag of the given type with factory content. A
// nil uid picks a default for the type.
func NewVirtualTag(tagType TagType, uid []byte) *VirtualTag {
	if uid == nil {
		switch tagType {
		case TagUltralight:
			uid = TestUltralightUID
		case TagClassic4K:
			uid = TestClassic4KUID
		default:
			uid = TestClassic1KUID
		}
	}

	t := &VirtualTag{
		Type:         tagType,
		UID:          append([]byte(nil), uid...),
		authSector:   -1,
		pendingWrite: -1,
	}

	// ATQA bits 7 and 8 encode the UID size.
	var sizeBits byte
	switch len(uid) {
	case 7:
		sizeBits = 0x40
	case 10:
		sizeBits = 0x80
	}

	switch tagType {
	case TagClassicMini:
		t.SAK, t.ATQA = 0x09, [2]byte{0x04 | sizeBits, 0x00}
		t.initClassic(20)
	case TagClassic1K:
		t.SAK, t.ATQA = 0x08, [2]byte{0x04 | sizeBits, 0x00}
		t.initClassic(64)
	case TagClassic4K:
		t.SAK, t.ATQA = 0x18, [2]byte{0x02 | sizeBits, 0x00}
		t.initClassic(256)
	case TagUltralight:
		t.SAK, t.ATQA = 0x00, [2]byte{0x04 | sizeBits, 0x00}
		t.initUltralight()
	case TagISO14443_4:
		t.SAK, t.ATQA = 0x20, [2]byte{0x04 | sizeBits, 0x03}
	}
	return t
}

// NewMagicClassic1K creates a gen1a MIFARE Classic 1K with a writable
// block 0.
func NewMagicClassic1K(uid []byte) *VirtualTag {
	t := NewVirtualTag(TagClassic1K, uid)
	t.Magic = true
	return t
}

// State returns the ISO/IEC 14443-3 state.
func (t *VirtualTag) State() TagState {
	return t.state
}

// UIDString returns the UID as upper case hex.
func (t *VirtualTag) UIDString() string {
	return strings.ToUpper(hex.EncodeToString(t.UID))
}

// Block returns a copy of a Classic block or Ultralight page.
func (t *VirtualTag) Block(n int) []byte {
	if n < 0 || n >= len(t.Memory) {
		return nil
	}
	return append([]byte(nil), t.Memory[n]...)
}

// SetBlock replaces a Classic block or Ultralight page.
func (t *VirtualTag) SetBlock(n int, data []byte) {
	if n >= 0 && n < len(t.Memory) {
		copy(t.Memory[n], data)
	}
}

func (t *VirtualTag) initClassic(blocks int) {
	t.Memory = make([][]byte, blocks)
	for i := range t.Memory {
		t.Memory[i] = make([]byte, 16)
	}

	block0 := t.Memory[0]
	copy(block0, t.UID)
	if len(t.UID) == 4 {
		block0[4] = t.UID[0] ^ t.UID[1] ^ t.UID[2] ^ t.UID[3]
		block0[5] = t.SAK
		block0[6], block0[7] = t.ATQA[0], t.ATQA[1]
	}

	for sector := 0; ; sector++ {
		trailer := trailerBlock(sector)
		if trailer >= blocks {
			break
		}
		copy(t.Memory[trailer], []byte{
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
			0xFF, 0x07, 0x80, 0x69,
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
		})
	}
}

func (t *VirtualTag) initUltralight() {
	t.Memory = make([][]byte, 16)
	for i := range t.Memory {
		t.Memory[i] = make([]byte, 4)
	}
	if len(t.UID) != 7 {
		return
	}
	uid := t.UID
	t.Memory[0] = []byte{uid[0], uid[1], uid[2], chip.PICCCT ^ uid[0] ^ uid[1] ^ uid[2]}
	t.Memory[1] = []byte{uid[3], uid[4], uid[5], uid[6]}
	t.Memory[2] = []byte{uid[3] ^ uid[4] ^ uid[5] ^ uid[6], 0x48, 0x00, 0x00}
}

func (t *VirtualTag) isClassic() bool {
	return t.Type == TagClassicMini || t.Type == TagClassic1K || t.Type == TagClassic4K
}

func blockSector(block int) int {
	if block < 128 {
		return block / 4
	}
	return 32 + (block-128)/16
}

func trailerBlock(sector int) int {
	if sector < 32 {
		return sector*4 + 3
	}
	return 128 + (sector-32)*16 + 15
}

// levels is the number of cascade levels for the UID size.
func (t *VirtualTag) levels() int {
	switch len(t.UID) {
	case 7:
		return 2
	case 10:
		return 3
	default:
		return 1
	}
}

// cascadeFrame returns UID CLn and BCC for a cascade level.
func (t *VirtualTag) cascadeFrame(level int) [5]byte {
	var cl [5]byte
	last := level == t.levels()-1
	if last {
		copy(cl[:4], t.UID[3*level:3*level+4])
	} else {
		cl[0] = chip.PICCCT
		copy(cl[1:4], t.UID[3*level:3*level+3])
	}
	cl[4] = cl[0] ^ cl[1] ^ cl[2] ^ cl[3]
	return cl
}

// reset returns the tag to IDLE, as when the field drops.
func (t *VirtualTag) reset() {
	t.state = TagIdle
	t.wasHalted = false
	t.level = 0
	t.deauth()
}

func (t *VirtualTag) deauth() {
	t.authSector = -1
	t.backdoorStep = 0
	t.pendingWrite = -1
	t.pendingValue = nil
	t.transfer = nil
}

// leave drops an unselected tag back to where it was woken from.
func (t *VirtualTag) leave() {
	t.level = 0
	if t.wasHalted {
		t.state = TagHalt
		return
	}
	t.state = TagIdle
}

// authenticate checks key against the sector trailer of block.
func (t *VirtualTag) authenticate(cmd byte, block int, key []byte, uid []byte) bool {
	if !t.isClassic() || t.state != TagActive || block >= len(t.Memory) {
		return false
	}
	if len(uid) != 4 || string(uid) != string(t.UID[len(t.UID)-4:]) {
		return false
	}
	trailer := t.Memory[trailerBlock(blockSector(block))]
	stored := trailer[0:6]
	if cmd == chip.PICCAuthKeyB {
		stored = trailer[10:16]
	}
	if string(stored) != string(key) {
		t.authSector = -1
		return false
	}
	t.authSector = blockSector(block)
	return true
}

// canAccess reports whether block may be read or written now.
func (t *VirtualTag) canAccess(block int) bool {
	if block < 0 || block >= len(t.Memory) {
		return false
	}
	if t.backdoorStep == 2 || !t.isClassic() {
		return true
	}
	return t.authSector == blockSector(block)
}

// handle processes one frame of bits sent by the PCD and returns the answer,
// if any.
func (t *VirtualTag) handle(frame []byte, bits int) (answer, bool) {
	if len(frame) == 0 {
		return answer{}, false
	}

	pending := t.pendingWrite >= 0 || t.pendingValue != nil
	if bits == 7 && !pending {
		return t.handleShortFrame(frame[0] & 0x7F)
	}

	if !pending && len(frame) >= 2 && isSelectCode(frame[0]) && frame[1] != chip.SelectNVBComplete {
		return t.handleAnticollision(frame, bits)
	}
	if bits%8 != 0 {
		return answer{}, false
	}

	if len(frame) == 1 && frame[0] == chip.MagicUnlock2 {
		if t.Magic && t.backdoorStep == 1 {
			t.backdoorStep = 2
			return ackAnswer, true
		}
		return answer{}, false
	}

	// Everything else carries a CRC_A.
	if len(frame) < 3 {
		return answer{}, false
	}
	crc := chip.CRCA(0x6363, frame[:len(frame)-2])
	if crc[0] != frame[len(frame)-2] || crc[1] != frame[len(frame)-1] {
		return answer{}, false
	}
	payload := frame[:len(frame)-2]

	if !pending && isSelectCode(payload[0]) && len(payload) == 7 {
		return t.handleSelect(payload)
	}
	return t.handleCommand(payload)
}

func isSelectCode(b byte) bool {
	return b == chip.PICCSelCL1 || b == chip.PICCSelCL2 || b == chip.PICCSelCL3
}

func selectLevel(sel byte) int {
	return int(sel-chip.PICCSelCL1) / 2
}

func (t *VirtualTag) handleShortFrame(cmd byte) (answer, bool) {
	switch cmd {
	case chip.PICCReqA:
		if t.state != TagIdle {
			return answer{}, false
		}
	case chip.PICCWupA:
		if t.state != TagIdle && t.state != TagHalt {
			return answer{}, false
		}
	case chip.MagicUnlock1:
		if t.Magic && (t.state == TagHalt || t.state == TagIdle) {
			t.backdoorStep = 1
			return ackAnswer, true
		}
		return answer{}, false
	default:
		return answer{}, false
	}

	t.wasHalted = t.state == TagHalt
	t.state = TagReady
	t.level = 0
	t.deauth()
	return bytesAnswer(t.ATQA[:]), true
}

func (t *VirtualTag) handleAnticollision(frame []byte, bits int) (answer, bool) {
	if t.state != TagReady || selectLevel(frame[0]) != t.level {
		return answer{}, false
	}
	nvb := frame[1]
	known := int(nvb>>4-2)*8 + int(nvb&0x0F)
	if known < 0 || known > 32 || bits != 16+known {
		return answer{}, false
	}

	cl := t.cascadeFrame(t.level)
	for i := range known {
		if bitAt(frame[2:], i) != bitAt(cl[:], i) {
			return answer{}, false
		}
	}

	out := answer{bits: 40 - known, offset: known, data: make([]byte, 5)}
	for i := known; i < 40; i++ {
		setBitAt(out.data, i-known, bitAt(cl[:], i))
	}
	return out, true
}

func (t *VirtualTag) handleSelect(payload []byte) (answer, bool) {
	if t.state != TagReady || selectLevel(payload[0]) != t.level {
		return answer{}, false
	}
	cl := t.cascadeFrame(t.level)
	if string(cl[:]) != string(payload[2:7]) {
		t.leave()
		return answer{}, false
	}

	if t.level < t.levels()-1 {
		t.level++
		return crcAnswer([]byte{chip.SAKCascade}), true
	}
	t.state = TagActive
	return crcAnswer([]byte{t.SAK}), true
}

//nolint:gocyclo,cyclop // one case per PICC command
func (t *VirtualTag) handleCommand(payload []byte) (answer, bool) {
	active := t.state == TagActive || t.backdoorStep == 2
	if !active {
		return answer{}, false
	}

	// Second phase of a two-phase command.
	if t.pendingWrite >= 0 {
		block := t.pendingWrite
		t.pendingWrite = -1
		if len(payload) != 16 || t.NAKWriteData {
			return nakAnswer, true
		}
		t.write(block, payload)
		return ackAnswer, true
	}
	if op := t.pendingValue; op != nil {
		t.pendingValue = nil
		if len(payload) != 4 {
			return answer{}, false
		}
		t.applyValue(op, int32(binary.LittleEndian.Uint32(payload)))
		// The operand is never acknowledged.
		return answer{}, false
	}

	cmd := payload[0]
	switch {
	case cmd == chip.PICCHltA && len(payload) == 2:
		t.state = TagHalt
		t.level = 0
		t.deauth()
		if t.AnswerHalt {
			return ackAnswer, true
		}
		return answer{}, false

	case cmd == chip.PICCRead && len(payload) == 2:
		return t.read(int(payload[1]))

	case cmd == chip.PICCWrite && len(payload) == 2:
		block := int(payload[1])
		if !t.canAccess(block) {
			return nakAnswer, true
		}
		if block == 0 && t.isClassic() && t.backdoorStep != 2 {
			return nakAnswer, true
		}
		t.pendingWrite = block
		return ackAnswer, true

	case cmd == chip.PICCULWrite && len(payload) == 6:
		page := int(payload[1])
		if t.Type != TagUltralight || page < 2 || page >= len(t.Memory) {
			return nakAnswer, true
		}
		copy(t.Memory[page], payload[2:6])
		return ackAnswer, true

	case (cmd == chip.PICCDecrement || cmd == chip.PICCIncrement || cmd == chip.PICCRestore) && len(payload) == 2:
		block := int(payload[1])
		if !t.isClassic() || !t.canAccess(block) {
			return nakAnswer, true
		}
		if _, ok := decodeValue(t.Memory[block]); !ok {
			return nakAnswer, true
		}
		t.pendingValue = &valueOp{cmd: cmd, block: block}
		return ackAnswer, true

	case cmd == chip.PICCTransfer && len(payload) == 2:
		block := int(payload[1])
		if t.transfer == nil || !t.canAccess(block) {
			return nakAnswer, true
		}
		addr := byte(block)
		t.write(block, encodeValue(*t.transfer, addr))
		t.transfer = nil
		return ackAnswer, true
	}
	return nakAnswer, true
}

func (t *VirtualTag) read(block int) (answer, bool) {
	if t.Type == TagUltralight {
		if block >= len(t.Memory) {
			return nakAnswer, true
		}
		out := make([]byte, 0, 16)
		for i := range 4 {
			out = append(out, t.Memory[(block+i)%len(t.Memory)]...)
		}
		return crcAnswer(out), true
	}
	if !t.isClassic() || !t.canAccess(block) {
		return nakAnswer, true
	}
	out := append([]byte(nil), t.Memory[block]...)
	if block == trailerBlock(blockSector(block)) {
		// Key A is never readable.
		copy(out[0:6], make([]byte, 6))
	}
	return crcAnswer(out), true
}

func (t *VirtualTag) write(block int, data []byte) {
	if t.Type == TagUltralight {
		if block >= 2 && block < len(t.Memory) {
			copy(t.Memory[block], data[:4])
		}
		return
	}
	copy(t.Memory[block], data)
	if block == 0 && t.Magic && len(t.UID) == 4 {
		copy(t.UID, data[:4])
	}
}

func (t *VirtualTag) applyValue(op *valueOp, operand int32) {
	value, ok := decodeValue(t.Memory[op.block])
	if !ok {
		return
	}
	switch op.cmd {
	case chip.PICCIncrement:
		value += operand
	case chip.PICCDecrement:
		value -= operand
	}
	t.transfer = &value
}

func encodeValue(value int32, addr byte) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint32(out[0:4], uint32(value))
	binary.LittleEndian.PutUint32(out[4:8], ^uint32(value))
	binary.LittleEndian.PutUint32(out[8:12], uint32(value))
	out[12], out[13], out[14], out[15] = addr, ^addr, addr, ^addr
	return out
}

func decodeValue(b []byte) (int32, bool) {
	if len(b) < 16 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(b[0:4])
	if ^v != binary.LittleEndian.Uint32(b[4:8]) || v != binary.LittleEndian.Uint32(b[8:12]) {
		return 0, false
	}
	if b[12] != ^b[13] || b[12] != b[14] || b[13] != b[15] {
		return 0, false
	}
	return int32(v), true
}

func bitAt(b []byte, i int) byte {
	return b[i/8] >> (i % 8) & 1
}

func setBitAt(b []byte, i int, v byte) {
	if v != 0 {
		b[i/8] |= 1 << (i % 8)
	} else {
		b[i/8] &^= 1 << (i % 8)
	}
}
