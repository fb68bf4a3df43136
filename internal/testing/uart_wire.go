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
	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

// UARTWire speaks the MFRC522 UART protocol of datasheet §8.1.3 on top of
// a VirtualMFRC522. A read is one address byte with bit 7 set, answered
// with the register value. A write is an address byte followed by the data
// byte, answered with the address byte as echo.
//
// UARTWire implements io.ReadWriter. Read returns 0 bytes when nothing is
// pending, like a serial port whose read timeout expired.
type UARTWire struct {
	sim         *VirtualMFRC522
	out         []byte
	mu          syncutil.Mutex
	pendingAddr byte
	writing     bool
	// DropEcho suppresses the echo of writes.
	DropEcho bool
	// CorruptEcho makes the echo differ from the address sent.
	CorruptEcho bool
}

// NewUARTWire wraps sim.
func NewUARTWire(sim *VirtualMFRC522) *UARTWire {
	return &UARTWire{sim: sim}
}

// Write consumes bytes sent by the host.
func (u *UARTWire) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, b := range p {
		if u.writing {
			u.writing = false
			if err := u.sim.WriteRegister(chip.Register(u.pendingAddr), []byte{b}); err != nil {
				continue
			}
			if u.DropEcho {
				continue
			}
			echo := u.pendingAddr
			if u.CorruptEcho {
				echo ^= 0x01
			}
			u.out = append(u.out, echo)
			continue
		}

		addr := b & 0x3F
		if b&0x80 == 0 {
			u.pendingAddr = addr
			u.writing = true
			continue
		}
		var value [1]byte
		if err := u.sim.ReadRegister(chip.Register(addr), value[:]); err != nil {
			continue
		}
		u.out = append(u.out, value[0])
	}
	return len(p), nil
}

// Read returns bytes sent by the chip.
func (u *UARTWire) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	n := copy(p, u.out)
	u.out = u.out[n:]
	return n, nil
}
