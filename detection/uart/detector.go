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

// Package uart detects MFRC522 readers behind USB-serial adapters and
// built-in serial ports.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/transport/uart"
	"go.bug.st/serial/enumerator"
)

// USB-serial bridges found on MFRC522 UART modules
var knownBridges = map[string]string{
	"1A86:7523": "QinHeng CH340",
	"10C4:EA60": "Silicon Labs CP210x",
	"0403:6001": "FTDI FT232",
	"067B:2303": "Prolific PL2303",
}

var (
	listPorts   = enumerator.GetDetailedPortsList
	queryDevice = queryVersion
)

type detector struct{}

// New creates a UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns "uart"
func (*detector) Transport() string {
	return string(mfrc522.TransportUART)
}

// Detect lists serial ports and, unless opts.Mode is Passive, queries each
// for an MFRC522 version register.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			break
		}
		device, ok := examine(ctx, port, opts)
		if ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	detection.SortDevices(devices)
	return devices, nil
}

// examine turns one enumerated port into a candidate device
func examine(ctx context.Context, port *enumerator.PortDetails, opts *detection.Options) (detection.DeviceInfo, bool) {
	device := detection.DeviceInfo{
		Transport:  string(mfrc522.TransportUART),
		Path:       port.Name,
		Name:       port.Name,
		USB:        port.IsUSB,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}

	if port.IsUSB {
		vidpid := detection.FormatVIDPID(port.VID, port.PID)
		if vidpid != "" {
			device.Metadata["vidpid"] = vidpid
		}
		if detection.IsBlocked(vidpid, opts.Blocklist) {
			return device, false
		}
		if bridge, ok := knownBridges[vidpid]; ok {
			device.Name = bridge
		}
		if IsLikelyReader(vidpid, port.Product) {
			device.Confidence = detection.Medium
		}
		if port.Product != "" {
			device.Metadata["product"] = port.Product
		}
		if port.SerialNumber != "" {
			device.Metadata["serial"] = port.SerialNumber
		}
	}
	if detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return device, false
	}

	if opts.Mode == detection.Passive {
		return device, true
	}

	queryCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	version, err := queryDevice(queryCtx, port.Name, opts.Mode)
	if err != nil {
		mfrc522.Debugf("detection: %s did not answer: %v", port.Name, err)
		return device, false
	}
	device.Confidence = detection.High
	device.Metadata["version"] = version
	return device, true
}

// queryVersion opens the port once and asks for the chip version. There is no
// retry: a silent port is most likely not a reader.
func queryVersion(ctx context.Context, path string, mode detection.Mode) (string, error) {
	transport, err := uart.New(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = transport.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = transport.SetTimeout(min(uart.DefaultTimeout, time.Until(deadline)))
	}

	if mode == detection.Full {
		reader, err := mfrc522.New(transport, mfrc522.WithEventSink(nil))
		if err != nil {
			return "", err
		}
		if !reader.Version().Known() {
			return "", fmt.Errorf("unknown chip version 0x%02X", reader.Version().Raw)
		}
		return reader.Version().String(), nil
	}

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

// IsLikelyReader reports whether port metadata matches a typical MFRC522
// UART module without opening it.
func IsLikelyReader(vidpid, product string) bool {
	if _, ok := knownBridges[strings.ToUpper(vidpid)]; ok {
		return true
	}
	product = strings.ToLower(product)
	for _, keyword := range []string{"rc522", "mfrc522", "rfid", "nfc"} {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}
