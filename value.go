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
	"encoding/binary"
	"fmt"
)

// EncodeValueBlock lays out a MIFARE Classic value block: the value in
// bytes 0-3 and 8-11, its complement in 4-7, and the address byte in 12
// and 14 with its complement in 13 and 15. All integers are little endian.
func EncodeValueBlock(value int32, addr byte) [MifareBlockSize]byte {
	var block [MifareBlockSize]byte
	v := uint32(value)
	binary.LittleEndian.PutUint32(block[0:4], v)
	binary.LittleEndian.PutUint32(block[4:8], ^v)
	binary.LittleEndian.PutUint32(block[8:12], v)
	block[12] = addr
	block[13] = ^addr
	block[14] = addr
	block[15] = ^addr
	return block
}

// DecodeValueBlock returns the value and address stored in a value block.
// It fails with StatusError when the redundant copies disagree and with
// StatusInvalid when data is shorter than a block.
func DecodeValueBlock(data []byte) (value int32, addr byte, err error) {
	if len(data) < MifareBlockSize {
		return 0, 0, StatusInvalid
	}

	v := binary.LittleEndian.Uint32(data[0:4])
	inv := binary.LittleEndian.Uint32(data[4:8])
	v2 := binary.LittleEndian.Uint32(data[8:12])
	if inv != ^v || v2 != v {
		return 0, 0, fmt.Errorf("%w: value fields do not match", StatusError)
	}
	addr = data[12]
	if data[13] != ^addr || data[14] != addr || data[15] != ^addr {
		return 0, 0, fmt.Errorf("%w: address fields do not match", StatusError)
	}
	return int32(v), addr, nil
}

// IsValueBlock reports whether data holds a well formed value block.
func IsValueBlock(data []byte) bool {
	_, _, err := DecodeValueBlock(data)
	return err == nil
}

// AccessBits returns bytes 6, 7 and 8 of a sector trailer for the access
// conditions g0 to g3. Each group is [C1 C2 C3] with C1 as the most
// significant bit: g0 to g2 cover the data blocks (or groups of five blocks
// in the large sectors of a 4K card) and g3 the sector trailer.
func AccessBits(g0, g1, g2, g3 byte) [3]byte {
	c1 := (g3&4)<<1 | (g2&4)<<0 | (g1&4)>>1 | (g0&4)>>2
	c2 := (g3&2)<<2 | (g2&2)<<1 | (g1&2)<<0 | (g0&2)>>1
	c3 := (g3&1)<<3 | (g2&1)<<2 | (g1&1)<<1 | (g0&1)<<0

	return [3]byte{
		(^c2&0xF)<<4 | ^c1&0xF,
		c1<<4 | ^c3&0xF,
		c3<<4 | c2,
	}
}

// SetAccessBits writes the access bits for g0 to g3 into the first three
// bytes of buf, which is usually trailer[6:9].
func SetAccessBits(buf []byte, g0, g1, g2, g3 byte) error {
	if len(buf) < 3 {
		return StatusNoRoom
	}
	bits := AccessBits(g0, g1, g2, g3)
	copy(buf, bits[:])
	return nil
}

// DecodeAccessBits reverses AccessBits. ok is false when the inverted
// copies in the trailer do not match.
func DecodeAccessBits(b [3]byte) (groups [4]byte, ok bool) {
	c1 := b[1] >> 4
	c2 := b[2] & 0xF
	c3 := b[2] >> 4
	c1n := b[0] & 0xF
	c2n := b[0] >> 4
	c3n := b[1] & 0xF

	ok = c1 == ^c1n&0xF && c2 == ^c2n&0xF && c3 == ^c3n&0xF

	groups[0] = (c1&1)<<2 | (c2&1)<<1 | (c3&1)<<0
	groups[1] = (c1&2)<<1 | (c2&2)<<0 | (c3&2)>>1
	groups[2] = (c1&4)<<0 | (c2&4)>>1 | (c3&4)>>2
	groups[3] = (c1&8)>>1 | (c2&8)>>2 | (c3&8)>>3
	return groups, ok
}
