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

// Package config loads the bridge configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
)

// Environment overrides, applied after the file and before flags
const (
	EnvListen = "SIGMATCP_LISTEN"
	EnvHTTP   = "SIGMATCP_HTTP"
	EnvBus    = "SIGMATCP_BUS"
	EnvDevice = "SIGMATCP_DEVICE"
)

// Bus types
const (
	BusI2C    = "i2c"
	BusSPI    = "spi"
	BusMemory = "memory"
)

// DefaultBaud is used when [uart] names a port without a rate.
const DefaultBaud = 115200

// Config is the complete bridge configuration.
type Config struct {
	Listen         string
	HTTPListen     string
	LogLevel       string
	Capture        string
	UART           UARTConfig
	Bus            BusConfig
	MaxPayload     int
	TCPUserTimeout time.Duration
	WriteAcks      bool
}

// BusConfig selects and tunes the register bus.
type BusConfig struct {
	Type          string
	Device        string
	Chips         []Chip
	SpeedHz       int64
	MaxTransfer   int
	WaitForDevice time.Duration
	Scan          bool
}

// Chip maps a SigmaStudio IC number to a bus address.
type Chip struct {
	IC      uint8 `toml:"ic"`
	Address uint8 `toml:"address"`
}

// UARTConfig enables serving the protocol on a serial port.
type UARTConfig struct {
	Port string
	Baud int
}

type fileConfig struct {
	Listen         string   `toml:"listen"`
	HTTPListen     string   `toml:"http_listen"`
	TCPUserTimeout string   `toml:"tcp_user_timeout"`
	LogLevel       string   `toml:"log_level"`
	Capture        string   `toml:"capture"`
	Bus            fileBus  `toml:"bus"`
	UART           fileUART `toml:"uart"`
	MaxPayload     int      `toml:"max_payload"`
	WriteAcks      bool     `toml:"write_acks"`
}

type fileBus struct {
	Type          string `toml:"type"`
	Device        string `toml:"device"`
	WaitForDevice string `toml:"wait_for_device"`
	Chips         []Chip `toml:"chips"`
	SpeedHz       int64  `toml:"speed_hz"`
	MaxTransfer   int    `toml:"max_transfer"`
	Scan          bool   `toml:"scan"`
}

type fileUART struct {
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
}

// Default returns the configuration used when no file is given: TCP on
// :8086, first I2C adapter, write acks on.
func Default() Config {
	return Config{
		Listen:     fmt.Sprintf(":%d", frame.DefaultPort),
		MaxPayload: frame.DefaultMaxPayload,
		WriteAcks:  true,
		LogLevel:   "info",
		Bus: BusConfig{
			Type: BusI2C,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = decodeFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func decodeFile(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("http_listen") {
		cfg.HTTPListen = strings.TrimSpace(raw.HTTPListen)
	}
	if meta.IsDefined("tcp_user_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.TCPUserTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse tcp_user_timeout: %w", err)
		}
		cfg.TCPUserTimeout = d
	}
	if meta.IsDefined("write_acks") {
		cfg.WriteAcks = raw.WriteAcks
	}
	if meta.IsDefined("max_payload") {
		cfg.MaxPayload = raw.MaxPayload
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("capture") {
		cfg.Capture = strings.TrimSpace(raw.Capture)
	}

	if meta.IsDefined("bus", "type") {
		cfg.Bus.Type = strings.ToLower(strings.TrimSpace(raw.Bus.Type))
	}
	if meta.IsDefined("bus", "device") {
		cfg.Bus.Device = strings.TrimSpace(raw.Bus.Device)
	}
	if meta.IsDefined("bus", "speed_hz") {
		cfg.Bus.SpeedHz = raw.Bus.SpeedHz
	}
	if meta.IsDefined("bus", "max_transfer") {
		cfg.Bus.MaxTransfer = raw.Bus.MaxTransfer
	}
	if meta.IsDefined("bus", "wait_for_device") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Bus.WaitForDevice))
		if err != nil {
			return Config{}, fmt.Errorf("parse bus.wait_for_device: %w", err)
		}
		cfg.Bus.WaitForDevice = d
	}
	if meta.IsDefined("bus", "scan") {
		cfg.Bus.Scan = raw.Bus.Scan
	}
	if meta.IsDefined("bus", "chips") {
		cfg.Bus.Chips = raw.Bus.Chips
	}

	if meta.IsDefined("uart", "port") {
		cfg.UART.Port = strings.TrimSpace(raw.UART.Port)
	}
	if meta.IsDefined("uart", "baud") {
		cfg.UART.Baud = raw.UART.Baud
	}
	if cfg.UART.Port != "" && cfg.UART.Baud == 0 {
		cfg.UART.Baud = DefaultBaud
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvListen); ok {
		c.Listen = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvHTTP); ok {
		c.HTTPListen = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvBus); ok {
		c.Bus.Type = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvDevice); ok {
		c.Bus.Device = strings.TrimSpace(v)
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" && c.UART.Port == "" {
		errs = append(errs, errors.New("listen and uart.port are both empty: nothing to serve"))
	}
	if c.MaxPayload <= 0 || c.MaxPayload > frame.AddressSpace*4 {
		errs = append(errs, fmt.Errorf("max_payload %d out of range", c.MaxPayload))
	}
	if c.TCPUserTimeout < 0 {
		errs = append(errs, fmt.Errorf("tcp_user_timeout must not be negative, got %v", c.TCPUserTimeout))
	}
	if c.LogLevel != "" {
		if _, err := sigmatcp.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Bus.Type {
	case BusI2C, BusSPI, BusMemory:
	default:
		errs = append(errs, fmt.Errorf("bus.type %q is not one of i2c, spi, memory", c.Bus.Type))
	}
	if c.Bus.SpeedHz < 0 {
		errs = append(errs, fmt.Errorf("bus.speed_hz must not be negative, got %d", c.Bus.SpeedHz))
	}
	if c.Bus.MaxTransfer < 0 {
		errs = append(errs, fmt.Errorf("bus.max_transfer must not be negative, got %d", c.Bus.MaxTransfer))
	}
	if c.Bus.WaitForDevice < 0 {
		errs = append(errs, fmt.Errorf("bus.wait_for_device must not be negative, got %v", c.Bus.WaitForDevice))
	}

	seen := make(map[uint8]bool, len(c.Bus.Chips))
	for _, chip := range c.Bus.Chips {
		if chip.IC > frame.MaxChipAddress || chip.Address > frame.MaxChipAddress {
			errs = append(errs, fmt.Errorf("bus.chips: ic %d -> 0x%02x outside 7-bit range", chip.IC, chip.Address))
		}
		if seen[chip.IC] {
			errs = append(errs, fmt.Errorf("bus.chips: ic %d mapped twice", chip.IC))
		}
		seen[chip.IC] = true
	}

	if c.UART.Port != "" && c.UART.Baud <= 0 {
		errs = append(errs, fmt.Errorf("uart.baud must be positive, got %d", c.UART.Baud))
	}

	return errors.Join(errs...)
}

// ChipMap returns the IC-number to bus-address translation, or nil when
// none is configured.
func (c *Config) ChipMap() map[uint8]uint8 {
	if len(c.Bus.Chips) == 0 {
		return nil
	}
	m := make(map[uint8]uint8, len(c.Bus.Chips))
	for _, chip := range c.Bus.Chips {
		m[chip.IC] = chip.Address
	}
	return m
}

// WaitAddresses returns the bus addresses to wait for at startup: the
// mapped addresses when a chip map exists, otherwise none.
func (c *Config) WaitAddresses() []uint8 {
	addrs := make([]uint8, 0, len(c.Bus.Chips))
	for _, chip := range c.Bus.Chips {
		addrs = append(addrs, chip.Address)
	}
	return addrs
}
