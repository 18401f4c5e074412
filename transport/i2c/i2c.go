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

// Package i2c implements the SigmaDSP register bus over Linux i2c-dev.
//
// Every transaction starts with the 16-bit register address, most
// significant byte first. Writes append the data to the same message;
// reads send the address and read back with a repeated start.
package i2c

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/ZaparooProject/go-sigmatcp/internal/syncutil"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultSpeed is fast mode; every SigmaDSP part supports it.
	DefaultSpeed = 400 * physic.KiloHertz

	// DefaultMaxTransfer keeps messages within what most i2c-dev adapters
	// accept in one transfer.
	DefaultMaxTransfer = 256

	// maxMessage is the i2c-dev per-message limit, including the address.
	maxMessage = 8192

	addrSize  = 2
	traceSize = 4
)

// Option configures a Bus
type Option func(*Bus) error

// WithSpeed sets the bus clock. Adapters that cannot change speed keep
// their default.
func WithSpeed(f physic.Frequency) Option {
	return func(b *Bus) error {
		if f <= 0 {
			return fmt.Errorf("invalid i2c speed %s", f)
		}
		b.speed = f
		return nil
	}
}

// WithMaxTransfer sets the largest data block moved per transaction.
func WithMaxTransfer(n int) Option {
	return func(b *Bus) error {
		if n < 1 || n > maxMessage-addrSize {
			return fmt.Errorf("i2c max transfer must be between 1 and %d, got %d", maxMessage-addrSize, n)
		}
		b.maxTransfer = n
		return nil
	}
}

// Bus is a sigmatcp.Bus on an I2C adapter.
type Bus struct {
	conn        i2c.Bus
	closer      interface{ Close() error }
	name        string
	speed       physic.Frequency
	maxTransfer int
	mu          syncutil.Mutex
	closed      bool
}

// parseBusName strips an address suffix from a detection path.
// Accepts "/dev/i2c-1:0x3b" or "/dev/i2c-1"; "" opens the first bus.
func parseBusName(name string) string {
	bus, _, _ := strings.Cut(name, ":")
	return bus
}

// Open initializes the host drivers and opens the named I2C bus.
func Open(name string, opts ...Option) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bc, err := i2creg.Open(parseBusName(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", name, err)
	}

	b, err := New(bc, name, opts...)
	if err != nil {
		_ = bc.Close()
		return nil, err
	}
	b.closer = bc
	return b, nil
}

// New wraps an already open periph bus. The caller keeps ownership of conn
// unless it also implements io.Closer, in which case Close closes it.
func New(conn i2c.Bus, name string, opts ...Option) (*Bus, error) {
	if conn == nil {
		return nil, errors.New("i2c bus is nil")
	}
	b := &Bus{
		conn:        conn,
		name:        name,
		speed:       DefaultSpeed,
		maxTransfer: DefaultMaxTransfer,
	}
	if c, ok := conn.(interface{ Close() error }); ok {
		b.closer = c
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, fmt.Errorf("failed to apply i2c option: %w", err)
		}
	}

	// Ignore error, some adapters have a fixed clock
	_ = conn.SetSpeed(b.speed)

	sigmatcp.Logger().Debug().
		Str("bus", conn.String()).
		Stringer("speed", b.speed).
		Int("max_transfer", b.maxTransfer).
		Msg("i2c bus ready")
	return b, nil
}

// Write writes data to consecutive registers starting at register.
func (b *Bus) Write(chip uint8, register uint16, data []byte) error {
	if err := b.check(register, len(data)); err != nil {
		return err
	}

	msg := frame.GetBuffer(addrSize + len(data))
	defer frame.PutBuffer(msg)
	msg[0], msg[1] = byte(register>>8), byte(register)
	copy(msg[addrSize:], data)

	trace := sigmatcp.NewTraceBuffer(string(sigmatcp.BusI2C), b.name, traceSize)
	trace.RecordTX(msg, fmt.Sprintf("addr 0x%02x", chip))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return sigmatcp.ErrBusClosed
	}
	if err := b.conn.Tx(uint16(chip), msg, nil); err != nil {
		return trace.WrapError(classify(err))
	}
	return nil
}

// Read reads n bytes from consecutive registers starting at register.
func (b *Bus) Read(chip uint8, register uint16, n int) ([]byte, error) {
	if err := b.check(register, n); err != nil {
		return nil, err
	}

	addr := []byte{byte(register >> 8), byte(register)}
	out := make([]byte, n)

	trace := sigmatcp.NewTraceBuffer(string(sigmatcp.BusI2C), b.name, traceSize)
	trace.RecordTX(addr, fmt.Sprintf("addr 0x%02x", chip))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, sigmatcp.ErrBusClosed
	}
	if err := b.conn.Tx(uint16(chip), addr, out); err != nil {
		return nil, trace.WrapError(classify(err))
	}
	trace.RecordRX(out, "")
	return out, nil
}

// Probe reports whether a device acknowledges addr. It reads one byte at
// register 0, which every SigmaDSP part allows.
func (b *Bus) Probe(addr uint8) bool {
	_, err := b.Read(addr, 0, 1)
	return err == nil
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
	return sigmatcp.BusI2C
}

// Name returns the bus name it was opened with
func (b *Bus) Name() string {
	return b.name
}

// Close releases the bus file descriptor. Later transactions fail with
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
			return fmt.Errorf("failed to close I2C bus: %w", err)
		}
	}
	return nil
}

// classify maps adapter errors onto the package sentinels. A missing
// acknowledge surfaces as ENXIO or EREMOTEIO from i2c-dev, but periph
// formats it into the message, so the text is checked too.
func classify(err error) error {
	switch {
	case errors.Is(err, syscall.ENXIO):
		return fmt.Errorf("%w: %w", sigmatcp.ErrNoDevice, err)
	case errors.Is(err, syscall.ETIMEDOUT):
		return fmt.Errorf("%w: %w", sigmatcp.ErrBusTimeout, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "remote I/O error"), strings.Contains(msg, "no such device or address"):
		return fmt.Errorf("%w: %w", sigmatcp.ErrNoDevice, err)
	case strings.Contains(msg, "timed out"):
		return fmt.Errorf("%w: %w", sigmatcp.ErrBusTimeout, err)
	default:
		return err
	}
}

var _ sigmatcp.Bus = (*Bus)(nil)
