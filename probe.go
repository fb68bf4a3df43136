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
	"context"
	"fmt"

	"github.com/ZaparooProject/go-mfrc522/chip"
	"github.com/ZaparooProject/go-mfrc522/detection"
)

// ProbeResult is what a detection probe learned about a transport.
type ProbeResult struct {
	Version    chip.Version
	Confidence detection.Confidence
	SelfTested bool
}

// Metadata returns the probe result as detection metadata.
func (r ProbeResult) Metadata() map[string]string {
	m := map[string]string{}
	if r.Version != 0 {
		m["version"] = r.Version.String()
	}
	if r.SelfTested {
		m["selftest"] = "passed"
	}
	return m
}

// ProbeTransport checks whether an MFRC522 answers on transport. Passive
// mode does not touch the bus. Safe mode reads VersionReg: a known version
// gives High confidence, any other plausible value Medium. Full mode also
// initialises the chip and runs the self test, and only a passed test gives
// High. The transport is left open.
//
// Detectors pass unwrapped transports so that every register access is a
// single attempt.
func ProbeTransport(ctx context.Context, transport Transport, mode detection.Mode) (ProbeResult, error) {
	if mode == detection.Passive {
		return ProbeResult{Confidence: detection.Low}, nil
	}

	device, err := New(transport)
	if err != nil {
		return ProbeResult{}, err
	}

	version, err := device.Version(ctx)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("probe: %w", err)
	}
	result := ProbeResult{Version: version, Confidence: detection.Medium}
	if mode == detection.Safe {
		if version.Known() {
			result.Confidence = detection.High
		}
		return result, nil
	}

	if err := device.Init(ctx); err != nil {
		return ProbeResult{}, fmt.Errorf("probe init: %w", err)
	}
	passed, err := device.SelfTest(ctx)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("probe self test: %w", err)
	}
	if passed {
		result.Confidence = detection.High
		result.SelfTested = true
	}
	return result, nil
}
