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

//nolint:paralleltest // tests replace package-level hooks
package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stub(t *testing.T, os string, buses []string, answering map[string]string) {
	t.Helper()
	origList, origQuery, origOS := listBuses, queryDevice, goos
	t.Cleanup(func() {
		listBuses, queryDevice, goos = origList, origQuery, origOS
	})
	goos = os
	listBuses = func() ([]string, error) { return buses, nil }
	queryDevice = func(path string) (string, error) {
		if v, ok := answering[path]; ok {
			return v, nil
		}
		return "", errors.New("nack")
	}
}

func TestDetect_Passive(t *testing.T) {
	stub(t, "linux", []string{"/dev/i2c-0", "/dev/i2c-1"}, nil)

	opts := detection.DefaultOptions()
	opts.Mode = detection.Passive
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "/dev/i2c-0:0x28", devices[0].Path)
	assert.Equal(t, detection.Low, devices[0].Confidence)
}

func TestDetect_SafeQueries(t *testing.T) {
	stub(t, "linux", []string{"/dev/i2c-0", "/dev/i2c-1"}, map[string]string{"/dev/i2c-1:0x28": "v2.0"})

	opts := detection.DefaultOptions()
	devices, err := New().Detect(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.Equal(t, "v2.0", devices[0].Metadata["version"])
}

func TestDetect_IgnoredBus(t *testing.T) {
	stub(t, "linux", []string{"/dev/i2c-1"}, map[string]string{"/dev/i2c-1:0x28": "v2.0"})

	opts := detection.DefaultOptions()
	opts.IgnorePaths = []string{"/dev/i2c-1"}
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetect_Unsupported(t *testing.T) {
	stub(t, "windows", nil, nil)

	opts := detection.DefaultOptions()
	_, err := New().Detect(context.Background(), &opts)
	require.ErrorIs(t, err, detection.ErrUnsupportedPlatform)
}
