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
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures JitteryConnection.
type JitterConfig struct {
	MaxLatency       time.Duration
	FragmentMinBytes int
	StallAfterBytes  int
	StallDuration    time.Duration
	Seed             uint64
	FragmentReads    bool
}

// DefaultJitterConfig returns a configuration that fragments every read
// and adds up to 2 ms of latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection wraps an io.ReadWriter and delivers the bytes read from
// it late and in random fragments, as USB serial bridges (CH340, CP2102)
// do. Nothing is lost: bytes held back are returned by later reads.
type JitteryConnection struct {
	backend        io.ReadWriter
	rng            *rand.Rand
	pending        []byte
	config         JitterConfig
	delivered      int
	stallTriggered bool
}

// NewJitteryConnection wraps backend.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test code
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test code
	}
}

// Write passes data through unchanged.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read returns a fragment of the data available from the backend.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)))
	}

	if len(j.pending) == 0 {
		tmp := make([]byte, 256)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // pass-through
		}
		j.pending = append(j.pending, tmp[:n]...)
	}
	if len(j.pending) == 0 {
		return 0, nil
	}

	n := min(len(j.pending), len(buf))
	if j.config.StallAfterBytes > 0 && !j.stallTriggered {
		if j.delivered >= j.config.StallAfterBytes {
			j.stallTriggered = true
			time.Sleep(j.config.StallDuration)
		} else {
			n = min(n, j.config.StallAfterBytes-j.delivered)
		}
	}
	if j.config.FragmentReads && n > j.config.FragmentMinBytes {
		n = j.config.FragmentMinBytes + j.rng.IntN(n-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.pending[:n])
	j.pending = j.pending[n:]
	j.delivered += n
	return n, nil
}

// Buffered returns the number of bytes held back.
func (j *JitteryConnection) Buffered() int {
	return len(j.pending)
}
