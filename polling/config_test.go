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


package polling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	assert.Equal(t, 100*time.Millisecond, config.PollInterval)
	assert.Equal(t, 600*time.Millisecond, config.CardRemovalTimeout)
	assert.Equal(t, 10, config.MaxPollErrors)
	assert.Greater(t, config.CardRemovalTimeout, 2*config.PollInterval)
	assert.Equal(t, DefaultSleepRecoveryConfig(), config.SleepRecovery)
}

func TestSleepRecoveryConfig_DetectSleep(t *testing.T) {
	t.Parallel()

	enabled := DefaultSleepRecoveryConfig()
	disabled := enabled
	disabled.Enabled = false

	tests := []struct {
		name    string
		config  SleepRecoveryConfig
		elapsed time.Duration
		want    bool
	}{
		{name: "NormalGap", config: enabled, elapsed: 150 * time.Millisecond, want: false},
		{name: "AtThreshold", config: enabled, elapsed: 2100 * time.Millisecond, want: false},
		{name: "Sleep", config: enabled, elapsed: 5 * time.Second, want: true},
		{name: "Disabled", config: disabled, elapsed: time.Minute, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.config.DetectSleep(tt.elapsed, 100*time.Millisecond))
		})
	}
}
