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

// Package detection finds MFRC522 readers attached to the host.
//
// Bus-specific detectors live in subpackages and register themselves on
// import:
//
//	import _ "github.com/ZaparooProject/go-mfrc522/detection/uart"
package detection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Mode is how far a detector may go to confirm a device
type Mode int

const (
	// Passive only inspects port metadata and never opens a device
	Passive Mode = iota
	// Safe opens the device and reads the chip version register
	Safe
	// Full runs the complete reader initialization
	Full
)

func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "passive", "safe" or "full"
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Passive, Safe, Full} {
		if m.String() == s {
			return m, nil
		}
	}
	return Safe, fmt.Errorf("unknown detection mode %q", s)
}

// Confidence is how sure a detector is that a device is an MFRC522
type Confidence int

const (
	// Low means the bus answered but nothing identifies the chip
	Low Confidence = iota
	// Medium means the port metadata matches a typical reader adapter
	Medium
	// High means the chip answered with a known version
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one candidate reader
type DeviceInfo struct {
	// Metadata holds bus specific details such as "vidpid" or "version"
	Metadata map[string]string
	// Transport is "uart", "i2c" or "spi"
	Transport string
	// Path is what the transport's New function expects
	Path string
	// Name is a human-readable label
	Name string
	// Confidence of the match
	Confidence Confidence
	// USB is set for USB-attached serial adapters
	USB bool
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures detection
type Options struct {
	// Blocklist holds USB VID:PID pairs that must never be opened
	Blocklist []string
	// IgnorePaths holds device paths to skip, e.g. "/dev/ttyS0" or "COM1"
	IgnorePaths []string
	// Transports limits detection to these buses (empty means all)
	Transports []string
	// CacheTTL is how long results stay valid
	CacheTTL time.Duration
	// Timeout bounds a single device query
	Timeout time.Duration
	Mode    Mode
	// EnableCache reuses results across calls within CacheTTL
	EnableCache bool
}

// DefaultOptions returns the options used by auto-detection
func DefaultOptions() Options {
	return Options{
		Mode:        Safe,
		Timeout:     5 * time.Second,
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector finds devices on one bus type
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	Transport() string
}

var (
	// ErrNoDevicesFound is returned when no candidate reader was found
	ErrNoDevicesFound = errors.New("no MFRC522 devices found")
	// ErrDetectionTimeout is returned when the context ends before all detectors finish
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform is returned by detectors that cannot run on this OS
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

var registry []Detector

// RegisterDetector adds a detector; subpackages call it from init
func RegisterDetector(d Detector) {
	registry = append(registry, d)
}

func detectorsFor(transports []string) []Detector {
	if len(transports) == 0 {
		return registry
	}
	var out []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every registered detector concurrently and returns the
// devices found, best candidates first.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := detectorsFor(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}

	results := make(chan detectionResult, len(detectors))
	for _, d := range detectors {
		go func(d Detector) {
			results <- detectOne(ctx, d, opts)
		}(d)
	}

	var devices []DeviceInfo
	var errs []error
	for range detectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
				continue
			}
			devices = append(devices, res.devices...)
		case <-ctx.Done():
			return nil, ErrDetectionTimeout
		}
	}

	if len(devices) > 0 {
		SortDevices(devices)
		return devices, nil
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return nil, ErrNoDevicesFound
}

func detectOne(ctx context.Context, d Detector, opts *Options) detectionResult {
	if opts.EnableCache {
		if cached, ok := getCached(d.Transport(), opts.CacheTTL); ok {
			return detectionResult{devices: FilterDevices(cached, opts)}
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: err}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(d.Transport(), devices)
		} else {
			// a stale entry would point callers at an unplugged device
			clearCacheForTransport(d.Transport())
		}
	}
	return detectionResult{devices: devices}
}

// SortDevices orders devices by confidence, then USB adapters before
// built-in ports, then by path.
func SortDevices(devices []DeviceInfo) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.USB != b.USB {
			return a.USB
		}
		return a.Path < b.Path
	})
}

// FilterDevices drops ignored paths and blocklisted USB devices
func FilterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}
	var out []DeviceInfo
	for _, d := range devices {
		if IsPathIgnored(d.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := d.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}

// ClearDetectionCacheForTransport removes cached results for one transport
func ClearDetectionCacheForTransport(transport string) {
	clearCacheForTransport(transport)
}
