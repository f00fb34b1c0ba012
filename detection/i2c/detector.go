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

// Package i2c detects MFRC522 readers on Linux I2C buses at the default
// chip address.
package i2c

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/transport/i2c"
)

var (
	listBuses   = func() ([]string, error) { return filepath.Glob("/dev/i2c-*") }
	queryDevice = queryVersion
	goos        = runtime.GOOS
)

type detector struct{}

// New creates an I2C detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns "i2c"
func (*detector) Transport() string {
	return string(mfrc522.TransportI2C)
}

// Detect lists I2C bus devices. Passive mode reports every bus with low
// confidence; other modes read the version register at DefaultAddress.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if goos != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	buses, err := listBuses()
	if err != nil {
		return nil, fmt.Errorf("failed to list I2C buses: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if ctx.Err() != nil {
			break
		}
		path := fmt.Sprintf("%s:0x%02X", bus, i2c.DefaultAddress)
		if detection.IsPathIgnored(bus, opts.IgnorePaths) || detection.IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}
		device := detection.DeviceInfo{
			Transport:  string(mfrc522.TransportI2C),
			Path:       path,
			Name:       filepath.Base(bus),
			Confidence: detection.Low,
			Metadata:   map[string]string{"address": fmt.Sprintf("0x%02X", i2c.DefaultAddress)},
		}
		if opts.Mode != detection.Passive {
			version, err := queryDevice(path)
			if err != nil {
				continue
			}
			device.Confidence = detection.High
			device.Metadata["version"] = version
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func queryVersion(path string) (string, error) {
	transport, err := i2c.New(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = transport.Close() }()

	raw, err := transport.ReadRegister(mfrc522.RegVersion)
	if err != nil {
		return "", err
	}
	version := mfrc522.DecodeVersion(raw)
	if !version.Known() {
		return "", fmt.Errorf("unknown chip version 0x%02X", raw)
	}
	return version.String(), nil
}
