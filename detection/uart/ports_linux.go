//go:build linux

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
	"os"
	"path/filepath"
	"strings"

	"go.bug.st/serial"
)

const (
	sysTTY       = "/sys/class/tty"
	maxUSBWalkUp = 10
)

// listPorts returns the USB serial adapters found in sysfs with their
// descriptors, then the on-board UARTs. When sysfs yields nothing the
// serial library's port list is used.
func listPorts() ([]serialPort, error) {
	ports := usbPorts(sysTTY)
	ports = append(ports, builtinPorts()...)
	if len(ports) > 0 {
		return ports, nil
	}

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	for _, name := range names {
		ports = append(ports, serialPort{Path: name, Name: filepath.Base(name)})
	}
	return ports, nil
}

// usbPorts walks ttyDir for entries whose device link resolves into the
// USB tree.
func usbPorts(ttyDir string) []serialPort {
	entries, err := os.ReadDir(ttyDir)
	if err != nil {
		return nil
	}

	var ports []serialPort
	for _, entry := range entries {
		resolved, err := filepath.EvalSymlinks(filepath.Join(ttyDir, entry.Name(), "device"))
		if err != nil || !strings.Contains(resolved, "/usb") {
			continue
		}
		port := serialPort{
			Path: "/dev/" + entry.Name(),
			Name: entry.Name(),
		}
		readUSBAttributes(&port, resolved)
		ports = append(ports, port)
	}
	return ports
}

// readUSBAttributes climbs from the interface to the USB device node that
// carries idVendor and idProduct.
func readUSBAttributes(port *serialPort, devicePath string) {
	current := devicePath
	for range maxUSBWalkUp {
		vid := readSysAttr(current, "idVendor")
		pid := readSysAttr(current, "idProduct")
		if vid != "" && pid != "" {
			port.VIDPID = strings.ToUpper(vid + ":" + pid)
			port.Manufacturer = readSysAttr(current, "manufacturer")
			port.Product = readSysAttr(current, "product")
			port.SerialNumber = readSysAttr(current, "serial")
			return
		}
		current = filepath.Dir(current)
		if current == "/" || current == "." {
			return
		}
	}
}

func readSysAttr(dir, name string) string {
	path := filepath.Clean(filepath.Join(dir, name))
	data, err := os.ReadFile(path) // #nosec G304 -- sysfs attribute
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// builtinPorts lists on-board UARTs, such as the Raspberry Pi's ttyAMA0.
func builtinPorts() []serialPort {
	var ports []serialPort
	for _, pattern := range []string{"/dev/ttyAMA*", "/dev/ttyS*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, serialPort{Path: path, Name: filepath.Base(path)})
			}
		}
	}
	return ports
}
