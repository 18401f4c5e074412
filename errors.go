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
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-sigmatcp/internal/hexutil"
)

// Error categories
var (
	// Decode errors - the connection is closed
	ErrUnknownCommand = errors.New("unknown command")
	ErrLengthMismatch = errors.New("declared length does not match payload length")
	ErrFrameTooLarge  = errors.New("frame exceeds maximum size")
	ErrChipAddress    = errors.New("chip address out of 7-bit range")

	// Validation errors - a failure response is sent, the connection stays open
	ErrAddressOverflow = errors.New("register range exceeds 16-bit address space")
	ErrReadTooLarge    = errors.New("read length exceeds maximum")

	// Bus errors - a failure response is sent, nothing is retried
	ErrBusClosed        = errors.New("bus is closed")
	ErrBusTimeout       = errors.New("bus timeout")
	ErrNoDevice         = errors.New("no device acknowledged")
	ErrShortTransfer    = errors.New("short bus transfer")
	ErrTransferTooLarge = errors.New("transfer exceeds bus maximum")

	// Transport errors - the connection is closed
	ErrConnectionClosed = errors.New("connection closed")
	ErrServerClosed     = errors.New("server closed")
)

// ErrorType classifies an error by the effect it has on a connection
type ErrorType int

const (
	// ErrorTypeUnknown is any error not produced by this package
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeDecode is a malformed frame; the connection is closed
	ErrorTypeDecode
	// ErrorTypeValidation is a well-formed but unacceptable command
	ErrorTypeValidation
	// ErrorTypeBus is a failed bus transaction
	ErrorTypeBus
	// ErrorTypeTransport is a socket read or write failure
	ErrorTypeTransport
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeDecode:
		return "decode"
	case ErrorTypeValidation:
		return "validation"
	case ErrorTypeBus:
		return "bus"
	case ErrorTypeTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// DecodeError reports a frame that could not be turned into a command.
type DecodeError struct {
	Err       error  // Underlying sentinel
	Declared  uint32 // Declared total length, 0 if unknown
	Discarded int    // Bytes dropped from the decode buffer
	Kind      byte   // Control byte of the offending frame
}

func (e *DecodeError) Error() string {
	if e.Declared > 0 {
		return fmt.Sprintf("decode frame 0x%02x (declared %d bytes): %v", e.Kind, e.Declared, e.Err)
	}
	return fmt.Sprintf("decode frame 0x%02x: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError reports a decoded command rejected before reaching the bus.
type ValidationError struct {
	Err      error
	Length   int
	Register uint16
	Chip     uint8
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("reject chip 0x%02x reg 0x%04x len %d: %v", e.Chip, e.Register, e.Length, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BusError wraps a failed bus transaction with its address context.
type BusError struct {
	Err      error     // Underlying error
	Op       Direction // Transaction direction
	Bus      BusType   // Bus that failed
	Length   int       // Transaction length
	Register uint16    // First register of the failed transaction
	Chip     uint8     // Chip address
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%s %s chip 0x%02x reg 0x%04x len %d: %v",
		e.Bus, e.Op, e.Chip, e.Register, e.Length, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// TransportError wraps a socket-level failure on one connection
type TransportError struct {
	Err    error  // Underlying error
	Op     string // Operation that failed
	Remote string // Peer address
}

func (e *TransportError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Remote, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// GetErrorType classifies err
func GetErrorType(err error) ErrorType {
	var (
		de *DecodeError
		ve *ValidationError
		be *BusError
		te *TransportError
	)
	switch {
	case err == nil:
		return ErrorTypeUnknown
	case errors.As(err, &de):
		return ErrorTypeDecode
	case errors.As(err, &ve):
		return ErrorTypeValidation
	case errors.As(err, &be):
		return ErrorTypeBus
	case errors.As(err, &te):
		return ErrorTypeTransport
	default:
		return ErrorTypeUnknown
	}
}

// IsConnectionFatal reports whether err ends the connection it occurred on.
// Validation and bus errors become failure responses instead.
func IsConnectionFatal(err error) bool {
	switch GetErrorType(err) {
	case ErrorTypeDecode, ErrorTypeTransport:
		return true
	case ErrorTypeValidation, ErrorTypeBus:
		return false
	default:
		return err != nil
	}
}

// IsRetryable reports whether an operation outside the command path may be
// retried: accepting connections, dialing a server, or waiting for a chip
// to appear. Bus transactions issued for a command are never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	switch {
	case errors.Is(err, ErrNoDevice),
		errors.Is(err, ErrBusTimeout),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EMFILE),
		errors.Is(err, syscall.ENFILE):
		return true
	default:
		return false
	}
}

// IsDeviceGone reports whether err indicates the bus device disappeared
// (adapter unplugged, driver unbound).
func IsDeviceGone(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrBusClosed) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
			return true
		}
	}
	return false
}

// isClosedConn reports whether err is the normal end of a connection:
// the peer closed it, or it was closed locally. Resets are failures.
func isClosedConn(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// Error constructors for consistent error creation

// NewDecodeError creates a decode error for a frame with the given control byte
func NewDecodeError(kind byte, declared uint32, discarded int, err error) *DecodeError {
	return &DecodeError{Kind: kind, Declared: declared, Discarded: discarded, Err: err}
}

// NewBusError creates a bus error for a failed transaction
func NewBusError(bus BusType, tx Transaction, err error) *BusError {
	return &BusError{
		Err:      err,
		Op:       tx.Dir,
		Bus:      bus,
		Length:   tx.Length,
		Register: tx.Register,
		Chip:     tx.Chip,
	}
}

// NewTransportError creates a transport error for a connection
func NewTransportError(op, remote string, err error) *TransportError {
	return &TransportError{Op: op, Remote: remote, Err: err}
}

// =============================================================================
// Wire Trace Logging
// =============================================================================
// TraceableError embeds bus-level trace data in errors, so a failed
// transaction carries the bytes that were on the wire.

// TraceDirection indicates the direction of wire data
type TraceDirection string

const (
	// TraceTX indicates data sent to the chip or peer
	TraceTX TraceDirection = "TX"
	// TraceRX indicates data received from the chip or peer
	TraceRX TraceDirection = "RX"
)

// TraceEntry represents a single wire-level operation
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	hexData := hexutil.Format(e.Data)
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData, e.Note)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData)
}

// TraceableError wraps an error with wire-level trace data for debugging.
//
//	var te *sigmatcp.TraceableError
//	if errors.As(err, &te) {
//	    log.Printf("Wire trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err    error
	Bus    string
	Device string
	Trace  []TraceEntry
}

// Error implements the error interface
func (e *TraceableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As compatibility
func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace returns a human-readable formatted trace log
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Bus, e.Device)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Bus, e.Device, len(e.Trace))
	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, "  %s %s (%s)\n", direction, hexutil.Format(entry.Data), entry.Note)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s %s\n", direction, hexutil.Format(entry.Data))
		}
	}
	return sb.String()
}

// TraceBuffer collects trace entries during one command. It keeps at most
// maxSize entries, evicting the oldest.
type TraceBuffer struct {
	bus     string
	device  string
	entries []TraceEntry
	maxSize int
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(bus, device string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &TraceBuffer{
		entries: make([]TraceEntry, 0, maxSize),
		maxSize: maxSize,
		bus:     bus,
		device:  device,
	}
}

// RecordTX records bytes sent
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records bytes received
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	entry := TraceEntry{
		Direction: dir,
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
		Note:      note,
	}

	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
	} else {
		tb.entries = append(tb.entries, entry)
	}
}

// Entries returns a copy of the recorded entries
func (tb *TraceBuffer) Entries() []TraceEntry {
	out := make([]TraceEntry, len(tb.entries))
	copy(out, tb.entries)
	return out
}

// WrapError wraps an error with the collected trace data.
// Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:    err,
		Trace:  tb.Entries(),
		Bus:    tb.bus,
		Device: tb.device,
	}
}

// Clear resets the trace buffer
func (tb *TraceBuffer) Clear() {
	tb.entries = tb.entries[:0]
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
