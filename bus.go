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

// Package sigmatcp bridges the SigmaStudio TCPIP control protocol to a
// SigmaDSP register bus. Frames arriving on a connection are decoded into
// commands, executed against the bus by a shared Dispatcher, and answered
// with response frames.
package sigmatcp

import "fmt"

// Bus is a register-addressed link to one or more SigmaDSP chips.
// Implementations need not be safe for concurrent use: every access goes
// through a Dispatcher, which serializes commands.
type Bus interface {
	// Write writes data to consecutive registers starting at register.
	Write(chip uint8, register uint16, data []byte) error

	// Read reads n bytes from consecutive registers starting at register.
	Read(chip uint8, register uint16, n int) ([]byte, error)

	// MaxTransferSize is the largest payload one Write or Read may carry.
	MaxTransferSize() int

	// Type returns the bus type
	Type() BusType

	// Close releases the underlying device
	Close() error
}

// BusType names a Bus implementation
type BusType string

const (
	// BusI2C is a Linux i2c-dev bus.
	BusI2C BusType = "i2c"
	// BusSPI is a Linux spidev bus.
	BusSPI BusType = "spi"
	// BusMemory is an in-memory register file used without hardware.
	BusMemory BusType = "memory"
	// BusMock is the test double in this package.
	BusMock BusType = "mock"
)

// Direction of a bus transaction
type Direction uint8

const (
	// DirWrite moves bytes from host to chip.
	DirWrite Direction = iota
	// DirRead moves bytes from chip to host.
	DirRead
)

func (d Direction) String() string {
	if d == DirRead {
		return "read"
	}
	return "write"
}

// Transaction is one physical bus operation. A command larger than the
// bus transfer limit becomes several transactions at increasing registers.
type Transaction struct {
	Length   int
	Register uint16
	Chip     uint8
	Dir      Direction
}

func (t Transaction) String() string {
	return fmt.Sprintf("%s chip=0x%02x reg=0x%04x len=%d", t.Dir, t.Chip, t.Register, t.Length)
}
