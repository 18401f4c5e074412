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

// Package spi lists spidev ports a SigmaDSP can be attached to.
package spi

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ZaparooProject/go-sigmatcp/detection"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

type detector struct{}

// New creates an SPI detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Bus returns the bus type
func (*detector) Bus() string {
	return "spi"
}

// Detect lists registered SPI ports. SPI has no acknowledge, so probe mode
// cannot tell whether a chip is attached and behaves like passive mode.
func (d *detector) Detect(_ context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	refs := spireg.All()
	if len(refs) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	devices := make([]detection.DeviceInfo, 0, len(refs))
	for _, ref := range refs {
		if detection.IsPathIgnored(ref.Name, opts.IgnorePaths) {
			continue
		}
		devices = append(devices, detection.DeviceInfo{
			Bus:      d.Bus(),
			Path:     ref.Name,
			Name:     "SPI port " + ref.Name,
			Metadata: map[string]string{"number": strconv.Itoa(ref.Number)},
		})
	}
	return devices, nil
}
