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

// Package config loads the rc522 command's YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/polling"
	"gopkg.in/yaml.v3"
)

// Config is the file layout:
//
//	reader:
//	  device: /dev/ttyUSB0
//	  transport: uart
//	  baud: 9600
//	  timeout: 100ms
//	  antenna_gain: 7
//	keys:
//	  method: A
//	  key: ffffffffffff
//	polling:
//	  interval: 100ms
//	  cooldown: 1s
//	debug:
//	  enabled: true
//	  log_dir: /tmp
type Config struct {
	Reader  ReaderConfig  `yaml:"reader"`
	Keys    KeysConfig    `yaml:"keys"`
	Polling PollingConfig `yaml:"polling"`
	Debug   DebugConfig   `yaml:"debug"`
}

type ReaderConfig struct {
	AntennaGain  *int          `yaml:"antenna_gain"`
	Device       string        `yaml:"device"`
	Transport    string        `yaml:"transport"`
	Baud         int           `yaml:"baud"`
	Timeout      time.Duration `yaml:"timeout"`
	IRQPollLimit int           `yaml:"irq_poll_limit"`
}

type KeysConfig struct {
	Method string `yaml:"method"`
	Key    string `yaml:"key"`
	// KeyFile holds the key as hex; relative paths resolve against the config file
	KeyFile string `yaml:"key_file"`
}

type PollingConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Cooldown  time.Duration `yaml:"cooldown"`
	MaxErrors int           `yaml:"max_errors"`
}

type DebugConfig struct {
	LogDir  string `yaml:"log_dir"`
	Enabled bool   `yaml:"enabled"`
}

// Transport names accepted in reader.transport
const (
	TransportUART = "uart"
	TransportI2C  = "i2c"
	TransportSPI  = "spi"
)

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{Transport: TransportUART, Baud: 9600},
		Keys:   KeysConfig{Method: "A", Key: mfrc522.DefaultKey.String()},
	}
}

// Load reads path on top of Default. Unknown fields are an error.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.Keys.KeyFile = resolvePath(filepath.Dir(path), cfg.Keys.KeyFile)
	cfg.Debug.LogDir = resolvePath(filepath.Dir(path), cfg.Debug.LogDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and names
func (c *Config) Validate() error {
	switch strings.ToLower(c.Reader.Transport) {
	case TransportUART, TransportI2C, TransportSPI:
	default:
		return fmt.Errorf("config.reader.transport: unknown transport %q", c.Reader.Transport)
	}
	if c.Reader.Baud < 0 {
		return errors.New("config.reader.baud must be >= 0")
	}
	if c.Reader.Timeout < 0 {
		return errors.New("config.reader.timeout must be >= 0")
	}
	if g := c.Reader.AntennaGain; g != nil && (*g < 0 || *g > 7) {
		return fmt.Errorf("config.reader.antenna_gain must be 0-7, got %d", *g)
	}
	if c.Reader.IRQPollLimit < 0 {
		return errors.New("config.reader.irq_poll_limit must be >= 0")
	}
	if _, err := mfrc522.ParseAuthMethod(c.Keys.Method); err != nil {
		return fmt.Errorf("config.keys.method: %w", err)
	}
	if c.Keys.KeyFile == "" {
		if _, err := mfrc522.ParseKey(c.Keys.Key); err != nil {
			return fmt.Errorf("config.keys.key: %w", err)
		}
	}
	if c.Polling.Interval < 0 || c.Polling.Cooldown < 0 || c.Polling.MaxErrors < 0 {
		return errors.New("config.polling values must be >= 0")
	}
	return nil
}

// Auth returns the configured method and key. A key file wins over an inline key.
func (c *Config) Auth() (mfrc522.AuthMethod, mfrc522.Key, error) {
	method, err := mfrc522.ParseAuthMethod(c.Keys.Method)
	if err != nil {
		return 0, mfrc522.Key{}, err
	}

	raw := c.Keys.Key
	if c.Keys.KeyFile != "" {
		content, err := os.ReadFile(c.Keys.KeyFile)
		if err != nil {
			return 0, mfrc522.Key{}, fmt.Errorf("config.keys.key_file: %w", err)
		}
		raw = strings.TrimSpace(string(content))
	}
	key, err := mfrc522.ParseKey(raw)
	if err != nil {
		return 0, mfrc522.Key{}, err
	}
	return method, key, nil
}

// ReaderOptions converts the reader section into mfrc522 options
func (c *Config) ReaderOptions() []mfrc522.Option {
	var opts []mfrc522.Option
	if c.Reader.Timeout > 0 {
		opts = append(opts, mfrc522.WithTimeout(c.Reader.Timeout))
	}
	if c.Reader.IRQPollLimit > 0 {
		opts = append(opts, mfrc522.WithIRQPollLimit(c.Reader.IRQPollLimit))
	}
	if c.Reader.AntennaGain != nil {
		opts = append(opts, mfrc522.WithAntennaGain(byte(*c.Reader.AntennaGain)))
	}
	return opts
}

// PollingConfig overlays the polling section on polling.DefaultConfig
func (c *Config) PollingConfig() *polling.Config {
	pc := polling.DefaultConfig()
	if c.Polling.Interval > 0 {
		pc.PollInterval = c.Polling.Interval
	}
	if c.Polling.Cooldown > 0 {
		pc.Cooldown = c.Polling.Cooldown
	}
	if c.Polling.MaxErrors > 0 {
		pc.MaxConsecutiveErrors = c.Polling.MaxErrors
	}
	return pc
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}
