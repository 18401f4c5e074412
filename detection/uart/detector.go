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

// Package uart lists serial ports the protocol can be served over.
package uart

import (
	"context"
	"strings"

	"github.com/ZaparooProject/go-sigmatcp/detection"
	"github.com/ZaparooProject/go-sigmatcp/transport/uart"
)

type detector struct {
	list func() ([]uart.PortInfo, error)
}

// New creates a UART detector
func New() detection.Detector {
	return &detector{list: uart.ListPorts}
}

func init() {
	detection.RegisterDetector(New())
}

// Bus returns the bus type
func (*detector) Bus() string {
	return "uart"
}

// Detect lists serial ports. Passive mode reports only USB adapters, which
// is where a host-side bridge is found; probe mode reports every port.
func (d *detector) Detect(_ context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, err //nolint:wrapcheck // ListPorts names the operation
	}

	devices := make([]detection.DeviceInfo, 0, len(ports))
	for _, p := range ports {
		if opts.Mode == detection.Passive && !p.IsUSB {
			continue
		}
		if detection.IsPathIgnored(p.Name, opts.IgnorePaths) {
			continue
		}
		info := detection.DeviceInfo{
			Bus:      d.Bus(),
			Path:     p.Name,
			Name:     p.Name,
			Metadata: map[string]string{},
		}
		if p.IsUSB {
			info.Name = p.Product
			info.Metadata["vidpid"] = strings.ToUpper(p.VID + ":" + p.PID)
			if p.SerialNumber != "" {
				info.Metadata["serial"] = p.SerialNumber
			}
		}
		devices = append(devices, info)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}
