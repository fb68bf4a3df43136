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

// CRCA computes the CRC the coprocessor produces for data when started from
// preset. With preset 0x6363 this is the ISO/IEC 14443-3 CRC_A. The result
// is low byte first, the order it is transmitted in.
func CRCA(preset uint16, data []byte) [2]byte {
	crc := uint32(preset)
	for _, bt := range data {
		bt ^= uint8(crc & 0xff)
		bt ^= bt << 4
		bt32 := uint32(bt)
		crc = (crc >> 8) ^ (bt32 << 8) ^ (bt32 << 3) ^ (bt32 >> 4)
	}
	return [2]byte{byte(crc & 0xff), byte((crc >> 8) & 0xff)}
}

// AppendCRCA appends the CRC_A of data to data.
func AppendCRCA(data []byte) []byte {
	crc := CRCA(0x6363, data)
	return append(data, crc[0], crc[1])
}
