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


package detection

import (
	"time"

	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

// resultCache keeps the last detection result per transport.
type resultCache struct {
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &resultCache{
	entries: make(map[string]cacheEntry),
}

// getCached returns a copy of the devices cached for transport, unless the
// entry is older than ttl.
func getCached(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	entry, ok := cache.entries[transport]
	if !ok || time.Since(entry.stored) > ttl {
		return nil, false
	}
	return copyDevices(entry.devices), true
}

func setCached(transport string, devices []DeviceInfo) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries[transport] = cacheEntry{
		devices: copyDevices(devices),
		stored:  time.Now(),
	}
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	cache.entries = make(map[string]cacheEntry)
}

func clearCacheForTransport(transport string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	delete(cache.entries, transport)
}

// copyDevices copies the slice and each Metadata map.
func copyDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d
		if d.Metadata != nil {
			out[i].Metadata = make(map[string]string, len(d.Metadata))
			for k, v := range d.Metadata {
				out[i].Metadata[k] = v
			}
		}
	}
	return out
}
