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

//nolint:paralleltest // tests share the package-level registry and cache
package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	calls     int
}

func (s *stubDetector) Detect(_ context.Context, _ *Options) ([]DeviceInfo, error) {
	s.calls++
	return s.devices, s.err
}

func (s *stubDetector) Transport() string {
	return s.transport
}

type blockingDetector struct{}

func (*blockingDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (*blockingDetector) Transport() string { return "uart" }

func withRegistry(t *testing.T, detectors ...Detector) {
	t.Helper()
	saved := registry
	registry = detectors
	clearCache()
	t.Cleanup(func() {
		registry = saved
		clearCache()
	})
}

func TestDeviceInfo_String(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		device DeviceInfo
	}{
		{
			name:   "uart high",
			device: DeviceInfo{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: High},
			want:   "uart device at /dev/ttyUSB0 (confidence: high)",
		},
		{
			name:   "i2c low",
			device: DeviceInfo{Transport: "i2c", Path: "/dev/i2c-1:0x28", Confidence: Low},
			want:   "i2c device at /dev/i2c-1:0x28 (confidence: low)",
		},
		{
			name:   "out of range",
			device: DeviceInfo{Transport: "uart", Path: "COM3", Confidence: Confidence(9)},
			want:   "uart device at COM3 (confidence: unknown)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.device.String())
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Passive, Safe, Full} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("aggressive")
	require.Error(t, err)
}

func TestDetectAll_SortsBestFirst(t *testing.T) {
	withRegistry(t,
		&stubDetector{transport: "uart", devices: []DeviceInfo{
			{Transport: "uart", Path: "/dev/ttyS0", Confidence: Low},
			{Transport: "uart", Path: "/dev/ttyUSB1", Confidence: Medium, USB: true},
			{Transport: "uart", Path: "/dev/ttyUSB0", Confidence: Medium, USB: true},
		}},
		&stubDetector{transport: "i2c", devices: []DeviceInfo{
			{Transport: "i2c", Path: "/dev/i2c-1:0x28", Confidence: High},
		}},
	)

	opts := Options{}
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)

	paths := make([]string, 0, len(devices))
	for _, d := range devices {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"/dev/i2c-1:0x28", "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyS0"}, paths)
}

func TestDetectAll_TransportFilter(t *testing.T) {
	uart := &stubDetector{transport: "uart", devices: []DeviceInfo{{Path: "/dev/ttyUSB0"}}}
	i2c := &stubDetector{transport: "i2c", devices: []DeviceInfo{{Path: "/dev/i2c-1"}}}
	withRegistry(t, uart, i2c)

	opts := Options{Transports: []string{"i2c"}}
	devices, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, 0, uart.calls)

	opts.Transports = []string{"spi"}
	_, err = DetectAll(context.Background(), &opts)
	require.Error(t, err)
}

func TestDetectAll_NothingFound(t *testing.T) {
	withRegistry(t, &stubDetector{transport: "uart", err: ErrNoDevicesFound})

	_, err := DetectAll(context.Background(), &Options{})
	require.ErrorIs(t, err, ErrNoDevicesFound)
}

func TestDetectAll_DetectorError(t *testing.T) {
	boom := errors.New("enumeration failed")
	withRegistry(t, &stubDetector{transport: "uart", err: boom})

	_, err := DetectAll(context.Background(), &Options{})
	require.ErrorIs(t, err, boom)
}

func TestDetectAll_Timeout(t *testing.T) {
	withRegistry(t, &blockingDetector{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := DetectAll(ctx, &Options{})
	require.ErrorIs(t, err, ErrDetectionTimeout)
}

func TestDetectAll_Cache(t *testing.T) {
	stub := &stubDetector{transport: "uart", devices: []DeviceInfo{{Path: "/dev/ttyUSB0"}}}
	withRegistry(t, stub)

	opts := Options{EnableCache: true, CacheTTL: time.Minute}
	_, err := DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	_, err = DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)

	// cached results still honour ignore paths
	opts.IgnorePaths = []string{"/dev/ttyUSB0"}
	_, err = DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)

	ClearDetectionCacheForTransport("uart")
	opts.IgnorePaths = nil
	_, err = DetectAll(context.Background(), &opts)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestDetectAll_EmptyResultClearsCache(t *testing.T) {
	stub := &stubDetector{transport: "uart", err: ErrNoDevicesFound}
	withRegistry(t, stub)
	setCached("uart", []DeviceInfo{{Path: "/dev/ttyUSB9"}})

	opts := Options{EnableCache: true, CacheTTL: time.Nanosecond}
	time.Sleep(time.Millisecond)
	_, err := DetectAll(context.Background(), &opts)
	require.ErrorIs(t, err, ErrNoDevicesFound)

	_, found := getCached("uart", time.Hour)
	assert.False(t, found)
}

func TestCache_ReturnsCopy(t *testing.T) {
	clearCache()
	defer clearCache()

	devices := []DeviceInfo{{Path: "/dev/ttyUSB0"}}
	setCached("uart", devices)
	devices[0].Path = "changed"

	cached, ok := getCached("uart", time.Minute)
	require.True(t, ok)
	cached[0].Path = "also changed"

	again, ok := getCached("uart", time.Minute)
	require.True(t, ok)
	assert.Equal(t, "/dev/ttyUSB0", again[0].Path)

	ClearDetectionCache()
	_, ok = getCached("uart", time.Minute)
	assert.False(t, ok)
}

func TestIsBlocked(t *testing.T) {
	blocklist := []string{"2341:0043", " 1d50:6089 "}

	assert.True(t, IsBlocked("2341:0043", blocklist))
	assert.True(t, IsBlocked("1D50:6089", blocklist))
	assert.False(t, IsBlocked("1A86:7523", blocklist))
	assert.False(t, IsBlocked("", blocklist))
}

func TestFormatVIDPID(t *testing.T) {
	assert.Equal(t, "1A86:7523", FormatVIDPID("1a86", "7523"))
	assert.Empty(t, FormatVIDPID("1a86", ""))
	assert.Empty(t, FormatVIDPID("zz86", "7523"))
	assert.Empty(t, FormatVIDPID("01a86", "7523"))
}

func TestIsPathIgnored(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		ignore []string
		want   bool
	}{
		{name: "exact", path: "/dev/ttyUSB0", ignore: []string{"/dev/ttyUSB0"}, want: true},
		{name: "unclean", path: "/dev/ttyUSB0", ignore: []string{"/dev/../dev/ttyUSB0"}, want: true},
		{name: "windows case", path: "COM3", ignore: []string{"com3"}, want: true},
		{name: "different", path: "/dev/ttyUSB1", ignore: []string{"/dev/ttyUSB0"}},
		{name: "empty entries", path: "/dev/ttyUSB0", ignore: []string{""}},
		{name: "empty path", path: "", ignore: []string{"/dev/ttyUSB0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPathIgnored(tt.path, tt.ignore))
		})
	}
}

func TestFilterDevices(t *testing.T) {
	devices := []DeviceInfo{
		{Path: "/dev/ttyUSB0", Metadata: map[string]string{"vidpid": "2341:0043"}},
		{Path: "/dev/ttyUSB1", Metadata: map[string]string{"vidpid": "1A86:7523"}},
		{Path: "/dev/ttyS0"},
	}
	opts := Options{Blocklist: DefaultBlocklist(), IgnorePaths: []string{"/dev/ttyS0"}}

	filtered := FilterDevices(devices, &opts)
	require.Len(t, filtered, 1)
	assert.Equal(t, "/dev/ttyUSB1", filtered[0].Path)
}
