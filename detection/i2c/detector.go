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

// Package i2c detects i2c-dev adapters and the SigmaDSP chips on them.
package i2c

import (
	"context"
	"fmt"
	"strconv"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/detection"
	i2cbus "github.com/ZaparooProject/go-sigmatcp/transport/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Scan range: addresses outside it are reserved on the I2C bus.
const (
	FirstAddress = 0x03
	LastAddress  = 0x77
)

// Prober answers whether a chip acknowledges its address
type Prober interface {
	Probe(addr uint8) bool
}

// Scan probes every non-reserved address and returns those that answer,
// in ascending order. It stops early when ctx is cancelled.
func Scan(ctx context.Context, p Prober) []uint8 {
	var found []uint8
	for addr := uint8(FirstAddress); addr <= LastAddress; addr++ {
		if ctx.Err() != nil {
			break
		}
		if p.Probe(addr) {
			found = append(found, addr)
		}
	}
	return found
}

// WaitFor probes addrs until one answers, retrying per cfg. It returns the
// first address that answered. A DSP whose self-boot EEPROM is still
// loading does not acknowledge, so the daemon waits here at startup.
func WaitFor(ctx context.Context, p Prober, addrs []uint8, cfg *sigmatcp.RetryConfig) (uint8, error) {
	if len(addrs) == 0 {
		return 0, fmt.Errorf("no addresses to wait for: %w", sigmatcp.ErrNoDevice)
	}

	var found uint8
	logger := sigmatcp.Logger()
	err := sigmatcp.RetryWithConfig(ctx, cfg, func() error {
		for _, addr := range addrs {
			if p.Probe(addr) {
				found = addr
				return nil
			}
		}
		logger.Debug().Interface("addrs", addrs).Msg("waiting for chip")
		return sigmatcp.ErrNoDevice
	})
	if err != nil {
		return 0, fmt.Errorf("wait for chip: %w", err)
	}
	return found, nil
}

// detector implements the Detector interface for I2C adapters
type detector struct {
	open func(name string) (Prober, func() error, error)
}

// New creates an I2C detector
func New() detection.Detector {
	return &detector{open: openProber}
}

func init() {
	detection.RegisterDetector(New())
}

func openProber(name string) (Prober, func() error, error) {
	b, err := i2cbus.Open(name)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // already names the bus
	}
	return b, b.Close, nil
}

// Bus returns the bus type
func (*detector) Bus() string {
	return "i2c"
}

// Detect lists registered I2C adapters. In probe mode every adapter is
// also scanned for responding chips.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	refs := i2creg.All()
	if len(refs) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	devices := make([]detection.DeviceInfo, 0, len(refs))
	for _, ref := range refs {
		if detection.IsPathIgnored(ref.Name, opts.IgnorePaths) {
			continue
		}
		info := detection.DeviceInfo{
			Bus:      d.Bus(),
			Path:     ref.Name,
			Name:     fmt.Sprintf("I2C bus %d", ref.Number),
			Metadata: map[string]string{"number": strconv.Itoa(ref.Number)},
		}
		if opts.Mode == detection.Probe {
			info.Addresses = d.scan(ctx, ref.Name)
		}
		devices = append(devices, info)
	}
	return devices, nil
}

func (d *detector) scan(ctx context.Context, name string) []uint8 {
	p, closeFn, err := d.open(name)
	if err != nil {
		sigmatcp.Logger().Warn().Err(err).Str("bus", name).Msg("cannot scan i2c bus")
		return nil
	}
	defer func() { _ = closeFn() }()
	return Scan(ctx, p)
}
