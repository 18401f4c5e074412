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

// Package memory provides a register bus without hardware. Each chip gets
// a 64 KiB register file; every transaction is logged. It lets SigmaStudio
// and the HTTP API be exercised on a development machine.
package memory

import (
	"fmt"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/ZaparooProject/go-sigmatcp/internal/hexutil"
	"github.com/ZaparooProject/go-sigmatcp/internal/syncutil"
	"github.com/rs/zerolog"
)

// DefaultMaxTransfer matches the SPI backend so chunking looks the same.
const DefaultMaxTransfer = 4093

// Option configures a Bus
type Option func(*Bus) error

// WithFill sets the value every register holds before its first write.
func WithFill(b byte) Option {
	return func(m *Bus) error {
		m.fill = b
		return nil
	}
}

// WithMaxTransfer sets the transaction size limit.
func WithMaxTransfer(n int) Option {
	return func(m *Bus) error {
		if n < 1 {
			return fmt.Errorf("max transfer must be at least 1, got %d", n)
		}
		m.maxTransfer = n
		return nil
	}
}

// WithLogger sets the logger transactions are reported to.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Bus) error {
		m.logger = l
		return nil
	}
}

// Bus is an in-memory sigmatcp.Bus.
type Bus struct {
	regs        map[uint8][]byte
	logger      zerolog.Logger
	maxTransfer int
	mu          syncutil.RWMutex
	fill        byte
	closed      bool
}

// New creates an empty register bus.
func New(opts ...Option) (*Bus, error) {
	m := &Bus{
		regs:        make(map[uint8][]byte),
		maxTransfer: DefaultMaxTransfer,
		logger:      sigmatcp.Logger().With().Str("component", "memory-bus").Logger(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("failed to apply memory bus option: %w", err)
		}
	}
	return m, nil
}

// file returns the chip's register file. Callers hold m.mu for writing.
func (m *Bus) file(chip uint8) []byte {
	f, ok := m.regs[chip]
	if !ok {
		f = make([]byte, frame.AddressSpace)
		if m.fill != 0 {
			for i := range f {
				f[i] = m.fill
			}
		}
		m.regs[chip] = f
	}
	return f
}

func (m *Bus) check(register uint16, n int) error {
	if n > m.maxTransfer {
		return fmt.Errorf("%w: %d bytes, limit %d", sigmatcp.ErrTransferTooLarge, n, m.maxTransfer)
	}
	if int(register)+n > frame.AddressSpace {
		return sigmatcp.ErrAddressOverflow
	}
	return nil
}

// Write implements sigmatcp.Bus
func (m *Bus) Write(chip uint8, register uint16, data []byte) error {
	if err := m.check(register, len(data)); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return sigmatcp.ErrBusClosed
	}
	copy(m.file(chip)[register:], data)

	m.logger.Info().
		Uint8("chip", chip).
		Str("reg", hexutil.Addr(register)).
		Int("len", len(data)).
		Str("data", hexutil.Format(data)).
		Msg("write")
	return nil
}

// Read implements sigmatcp.Bus
func (m *Bus) Read(chip uint8, register uint16, n int) ([]byte, error) {
	if err := m.check(register, n); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, sigmatcp.ErrBusClosed
	}
	out := make([]byte, n)
	copy(out, m.file(chip)[register:])

	m.logger.Info().
		Uint8("chip", chip).
		Str("reg", hexutil.Addr(register)).
		Int("len", n).
		Msg("read")
	return out, nil
}

// Snapshot returns a copy of n registers without logging. Chips never
// written read as the fill value.
func (m *Bus) Snapshot(chip uint8, register uint16, n int) []byte {
	out := make([]byte, n)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.regs[chip]; ok {
		copy(out, f[register:])
		return out
	}
	for i := range out {
		out[i] = m.fill
	}
	return out
}

// Chips returns the chips that have been addressed so far.
func (m *Bus) Chips() []uint8 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uint8, 0, len(m.regs))
	for chip := range m.regs {
		out = append(out, chip)
	}
	return out
}

// MaxTransferSize implements sigmatcp.Bus
func (m *Bus) MaxTransferSize() int {
	return m.maxTransfer
}

// Type implements sigmatcp.Bus
func (*Bus) Type() sigmatcp.BusType {
	return sigmatcp.BusMemory
}

// Close implements sigmatcp.Bus
func (m *Bus) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ sigmatcp.Bus = (*Bus)(nil)
