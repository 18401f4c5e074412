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

package sigmatcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/ZaparooProject/go-sigmatcp/internal/syncutil"
	"github.com/rs/zerolog"
)

// Dispatcher executes commands against a Bus. One Dispatcher is shared by
// every connection: it holds a lock for the whole of each command, so the
// transactions of two commands never interleave on the bus.
type Dispatcher struct {
	bus       Bus
	chips     map[uint8]uint8
	logger    zerolog.Logger
	chunkSize int
	maxRead   int
	mu        syncutil.Mutex
}

// Option configures a Dispatcher
type Option func(*Dispatcher) error

// WithChunkSize lowers the per-transaction size below the bus maximum.
func WithChunkSize(n int) Option {
	return func(d *Dispatcher) error {
		if n < 1 {
			return fmt.Errorf("chunk size must be at least 1, got %d", n)
		}
		d.chunkSize = min(d.chunkSize, n)
		return nil
	}
}

// WithChipMap translates SigmaStudio IC numbers to bus addresses. Chips
// without an entry are passed through unchanged.
func WithChipMap(chips map[uint8]uint8) Option {
	return func(d *Dispatcher) error {
		for ic, addr := range chips {
			if addr > frame.MaxChipAddress {
				return fmt.Errorf("chip map entry %d: address 0x%02x: %w", ic, addr, ErrChipAddress)
			}
		}
		d.chips = make(map[uint8]uint8, len(chips))
		for ic, addr := range chips {
			d.chips[ic] = addr
		}
		return nil
	}
}

// WithMaxReadLength caps the length of a single read command.
func WithMaxReadLength(n int) Option {
	return func(d *Dispatcher) error {
		if n < 1 {
			return fmt.Errorf("max read length must be at least 1, got %d", n)
		}
		d.maxRead = n
		return nil
	}
}

// WithDispatchLogger sets the dispatcher's logger
func WithDispatchLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) error {
		d.logger = l
		return nil
	}
}

// NewDispatcher creates a dispatcher owning bus.
func NewDispatcher(bus Bus, opts ...Option) (*Dispatcher, error) {
	if bus == nil {
		return nil, errors.New("dispatcher requires a bus")
	}
	maxTransfer := bus.MaxTransferSize()
	if maxTransfer < 1 {
		return nil, fmt.Errorf("bus %s reports max transfer %d", bus.Type(), maxTransfer)
	}

	d := &Dispatcher{
		bus:       bus,
		chunkSize: maxTransfer,
		maxRead:   frame.DefaultMaxPayload,
		logger:    Logger().With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("failed to apply dispatcher option: %w", err)
		}
	}

	RegisterMetrics()
	return d, nil
}

// ChunkSize returns the maximum bytes per bus transaction
func (d *Dispatcher) ChunkSize() int {
	return d.chunkSize
}

// BusType returns the type of the underlying bus
func (d *Dispatcher) BusType() BusType {
	return d.bus.Type()
}

// Dispatch executes cmd and returns its response. A bus error stops the
// command at the failing transaction; nothing is retried.
func (d *Dispatcher) Dispatch(cmd Command) Response {
	return syncutil.WithLock(&d.mu, func() Response {
		start := time.Now()
		resp := d.execute(cmd)
		status := StatusSuccess
		if !resp.Succeeded() {
			status = StatusFailure
		}
		recordCommand(cmd.Kind(), status, time.Since(start))
		d.logResult(cmd, resp, time.Since(start))
		return resp
	})
}

func (d *Dispatcher) execute(cmd Command) Response {
	switch c := cmd.(type) {
	case WriteCommand:
		return d.write(c)
	case ReadCommand:
		return d.read(c)
	default:
		panic(fmt.Sprintf("sigmatcp: unhandled command type %T", cmd))
	}
}

func (d *Dispatcher) write(c WriteCommand) Ack {
	ack := Ack{Chip: c.Chip, Register: c.Register, Length: len(c.Data), Status: StatusSuccess}
	if err := d.validate(c.Chip, c.Register, len(c.Data)); err != nil {
		ack.Status, ack.Err = StatusFailure, err
		return ack
	}

	chip := d.busAddress(c.Chip)
	for off := 0; off < len(c.Data); off += d.chunkSize {
		end := min(off+d.chunkSize, len(c.Data))
		tx := Transaction{
			Chip:     chip,
			Register: c.Register + uint16(off), //nolint:gosec // validated against the address space
			Length:   end - off,
			Dir:      DirWrite,
		}
		err := d.bus.Write(tx.Chip, tx.Register, c.Data[off:end])
		recordTransaction(d.bus.Type(), tx, err)
		if err != nil {
			ack.Status, ack.Err = StatusFailure, NewBusError(d.bus.Type(), tx, err)
			return ack
		}
	}
	return ack
}

func (d *Dispatcher) read(c ReadCommand) ReadResult {
	res := ReadResult{Chip: c.Chip, Register: c.Register, Status: StatusSuccess}
	if err := d.validate(c.Chip, c.Register, c.Length); err != nil {
		res.Status, res.Err = StatusFailure, err
		return res
	}
	if c.Length > d.maxRead {
		res.Status, res.Err = StatusFailure, &ValidationError{
			Err: ErrReadTooLarge, Chip: c.Chip, Register: c.Register, Length: c.Length,
		}
		return res
	}

	chip := d.busAddress(c.Chip)
	data := make([]byte, 0, c.Length)
	for off := 0; off < c.Length; off += d.chunkSize {
		tx := Transaction{
			Chip:     chip,
			Register: c.Register + uint16(off), //nolint:gosec // validated against the address space
			Length:   min(d.chunkSize, c.Length-off),
			Dir:      DirRead,
		}
		chunk, err := d.bus.Read(tx.Chip, tx.Register, tx.Length)
		if err == nil && len(chunk) != tx.Length {
			err = fmt.Errorf("%w: got %d of %d bytes", ErrShortTransfer, len(chunk), tx.Length)
		}
		recordTransaction(d.bus.Type(), tx, err)
		if err != nil {
			res.Status, res.Err = StatusFailure, NewBusError(d.bus.Type(), tx, err)
			return res
		}
		data = append(data, chunk...)
	}
	res.Data = data
	return res
}

// validate rejects commands whose register range leaves the 16-bit space.
func (*Dispatcher) validate(chip uint8, register uint16, length int) error {
	if length < 0 || int(register)+length > frame.AddressSpace {
		return &ValidationError{Err: ErrAddressOverflow, Chip: chip, Register: register, Length: length}
	}
	return nil
}

func (d *Dispatcher) busAddress(chip uint8) uint8 {
	if addr, ok := d.chips[chip]; ok {
		return addr
	}
	return chip
}

func (d *Dispatcher) logResult(cmd Command, resp Response, elapsed time.Duration) {
	chip, register := cmd.Target()
	if resp.Succeeded() {
		d.logger.Debug().
			Stringer("kind", cmd.Kind()).
			Uint8("chip", chip).
			Uint16("reg", register).
			Dur("elapsed", elapsed).
			Msg("command complete")
		return
	}

	event := d.logger.Warn()
	if IsDeviceGone(resp.Cause()) {
		event = d.logger.Error()
	}
	if trace := GetTrace(resp.Cause()); trace != nil {
		event = event.Str("trace", trace.FormatTrace())
	}
	event.
		Err(resp.Cause()).
		Stringer("kind", cmd.Kind()).
		Uint8("chip", chip).
		Uint16("reg", register).
		Str("class", GetErrorType(resp.Cause()).String()).
		Msg("command failed")
}

// Close closes the bus once no command is running.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.bus.Close(); err != nil {
		return fmt.Errorf("failed to close %s bus: %w", d.bus.Type(), err)
	}
	return nil
}
