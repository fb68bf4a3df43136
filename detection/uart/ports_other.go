//go:build !linux

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


package uart

import (
	"fmt"
	"path/filepath"

	"go.bug.st/serial"
)

// listPorts returns the ports known to the serial library. Descriptors are
// not available, so blocklisting by VID:PID does not apply.
func listPorts() ([]serialPort, error) {
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	ports := make([]serialPort, 0, len(names))
	for _, name := range names {
		ports = append(ports, serialPort{Path: name, Name: filepath.Base(name)})
	}
	return ports, nil
}
