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

// Package spi implements the SigmaDSP register bus over Linux spidev.
//
// A SigmaDSP SPI transaction is one chip-select cycle: a header byte
// carrying the chip address and the read bit, the 16-bit register
// address, then data clocked out (write) or in (read).
package spi

import (
	"errors"
	"fmt"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/ZaparooProject/go-sigmatcp/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// DefaultSpeed is conservative for long ribbon cables.
	DefaultSpeed = 2 * physic.MegaHertz

	// DefaultMaxTransfer fits the default spidev buffer of 4096 bytes
	// with the three header bytes.
	DefaultMaxTransfer = 4096 - headerSize

	headerSize = 3
	readBit    = 0x01
	traceSize  = 4
)

// Option configures a Bus
type Option func(*Bus) error

// WithSpeed sets the SPI clock.
func WithSpeed(f physic.Frequency) Option {
	return func(b *Bus) error {
		if f <= 0 {
			return fmt.Errorf("invalid spi speed %s", f)
		}
		b.speed = f
		return nil
	}
}

// WithMaxTransfer sets the largest data block moved per chip-select cycle.
func WithMaxTransfer(n int) Option {
	return func(b *Bus) error {
		if n < 1 || n > frame.DefaultMaxPayload {
			return fmt.Errorf("spi max transfer must be between 1 and %d, got %d", frame.DefaultMaxPayload, n)
		}
		b.maxTransfer = n
		return nil
	}
}

// Bus is a sigmatcp.Bus on an SPI port.
type Bus struct {
	conn        spi.Conn
	closer      interface{ Close() error }
	name        string
	speed       physic.Frequency
	maxTransfer int
	mu          syncutil.Mutex
	closed      bool
}

// Open initializes the host drivers, opens the named port and connects in
// mode 3 with 8-bit words, as SigmaDSP parts require.
func Open(name string, opts ...Option) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", name, err)
	}

	b := newBus(name)
	if err := b.apply(opts); err != nil {
		_ = port.Close()
		return nil, err
	}

	conn, err := port.Connect(b.speed, spi.Mode3, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI port %q: %w", name, err)
	}
	b.conn = conn
	b.closer = port
	b.logReady()
	return b, nil
}

// New wraps an already connected periph SPI connection.
func New(conn spi.Conn, name string, opts ...Option) (*Bus, error) {
	if conn == nil {
		return nil, errors.New("spi connection is nil")
	}
	b := newBus(name)
	if err := b.apply(opts); err != nil {
		return nil, err
	}
	b.conn = conn
	b.logReady()
	return b, nil
}

func newBus(name string) *Bus {
	return &Bus{
		name:        name,
		speed:       DefaultSpeed,
		maxTransfer: DefaultMaxTransfer,
	}
}

func (b *Bus) apply(opts []Option) error {
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return fmt.Errorf("failed to apply spi option: %w", err)
		}
	}
	return nil
}

func (b *Bus) logReady() {
	sigmatcp.Logger().Debug().
		Str("port", b.conn.String()).
		Stringer("speed", b.speed).
		Int("max_transfer", b.maxTransfer).
		Msg("spi bus ready")
}

// header builds the three bytes that open every transaction.
func header(chip uint8, register uint16, read bool) [headerSize]byte {
	first := chip << 1
	if read {
		first |= readBit
	}
	return [headerSize]byte{first, byte(register >> 8), byte(register)}
}

// Write writes data to consecutive registers starting at register.
func (b *Bus) Write(chip uint8, register uint16, data []byte) error {
	if err := b.check(register, len(data)); err != nil {
		return err
	}

	hdr := header(chip, register, false)
	w := frame.GetBuffer(headerSize + len(data))
	defer frame.PutBuffer(w)
	copy(w, hdr[:])
	copy(w[headerSize:], data)

	trace := sigmatcp.NewTraceBuffer(string(sigmatcp.BusSPI), b.name, traceSize)
	trace.RecordTX(w, "")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return sigmatcp.ErrBusClosed
	}
	if err := b.conn.Tx(w, nil); err != nil {
		return trace.WrapError(err)
	}
	return nil
}

// Read reads n bytes from consecutive registers starting at register. The
// bus is full duplex, so the data arrives after the header bytes.
func (b *Bus) Read(chip uint8, register uint16, n int) ([]byte, error) {
	if err := b.check(register, n); err != nil {
		return nil, err
	}

	hdr := header(chip, register, true)
	w := frame.GetBuffer(headerSize + n)
	defer frame.PutBuffer(w)
	r := frame.GetBuffer(headerSize + n)
	defer frame.PutBuffer(r)
	copy(w, hdr[:])

	trace := sigmatcp.NewTraceBuffer(string(sigmatcp.BusSPI), b.name, traceSize)
	trace.RecordTX(hdr[:], "")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, sigmatcp.ErrBusClosed
	}
	if err := b.conn.Tx(w, r); err != nil {
		return nil, trace.WrapError(err)
	}

	out := make([]byte, n)
	copy(out, r[headerSize:])
	return out, nil
}

func (b *Bus) check(register uint16, n int) error {
	if n > b.maxTransfer {
		return fmt.Errorf("%w: %d bytes, limit %d", sigmatcp.ErrTransferTooLarge, n, b.maxTransfer)
	}
	if int(register)+n > frame.AddressSpace {
		return sigmatcp.ErrAddressOverflow
	}
	return nil
}

// MaxTransferSize implements sigmatcp.Bus
func (b *Bus) MaxTransferSize() int {
	return b.maxTransfer
}

// Type implements sigmatcp.Bus
func (*Bus) Type() sigmatcp.BusType {
	return sigmatcp.BusSPI
}

// Close releases the port. Later transactions fail with
// sigmatcp.ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.closer != nil {
		if err := b.closer.Close(); err != nil {
			return fmt.Errorf("failed to close SPI port: %w", err)
		}
	}
	return nil
}

var _ sigmatcp.Bus = (*Bus)(nil)
