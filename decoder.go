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
	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
)

// Decoder turns a byte stream into commands. It buffers partial frames, so
// the result does not depend on how the stream was split across reads.
//
// A Decoder belongs to one connection and is not safe for concurrent use.
type Decoder struct {
	buf        []byte
	maxPayload int
}

// NewDecoder creates a decoder that rejects write payloads larger than
// maxPayload bytes. Zero or negative selects frame.DefaultMaxPayload.
func NewDecoder(maxPayload int) *Decoder {
	if maxPayload <= 0 {
		maxPayload = frame.DefaultMaxPayload
	}
	return &Decoder{maxPayload: maxPayload}
}

// MaxPayload returns the largest accepted write payload
func (d *Decoder) MaxPayload() int {
	return d.maxPayload
}

// Pending returns the number of buffered bytes not yet part of a command
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset drops any buffered bytes and releases the buffer
func (d *Decoder) Reset() {
	d.buf = nil
}

// Feed appends p to the pending bytes and returns every command completed
// by it, in stream order. A frame is only decoded once its declared total
// length is buffered.
//
// On a malformed frame Feed returns the commands decoded before it together
// with a *DecodeError. The bad frame is dropped when its length is known and
// fully buffered; otherwise the whole buffer is dropped. The stream cannot
// be resynchronized after an error and the connection should be closed.
func (d *Decoder) Feed(p []byte) ([]Command, error) {
	d.buf = append(d.buf, p...)

	var cmds []Command
	off := 0
	defer func() { d.compact(off) }()

	for off < len(d.buf) {
		pending := d.buf[off:]
		kind := pending[0]

		if kind != frame.KindRead && kind != frame.KindWrite {
			// No length field can be trusted, drop everything
			discarded := len(pending)
			off = len(d.buf)
			return cmds, NewDecodeError(kind, 0, discarded, ErrUnknownCommand)
		}

		total, ok := frame.PeekTotalLength(pending)
		if !ok {
			break
		}
		if err := d.checkTotal(kind, total); err != nil {
			discarded := len(pending)
			off = len(d.buf)
			return cmds, NewDecodeError(kind, total, discarded, err)
		}
		if uint64(len(pending)) < uint64(total) {
			break
		}

		raw := pending[:total]
		off += int(total)

		cmd, err := d.decode(raw)
		if err != nil {
			return cmds, NewDecodeError(kind, total, len(raw), err)
		}
		cmds = append(cmds, cmd)
	}

	return cmds, nil
}

// checkTotal validates a declared total length before waiting for the rest
// of the frame, so an absurd length cannot make the decoder buffer forever.
func (d *Decoder) checkTotal(kind byte, total uint32) error {
	switch kind {
	case frame.KindRead:
		if total < frame.ReadHeaderSize {
			return ErrLengthMismatch
		}
		if total > frame.ReadHeaderSize+uint32(d.maxPayload) { //nolint:gosec // maxPayload is positive
			return ErrFrameTooLarge
		}
	case frame.KindWrite:
		if total < frame.WriteHeaderSize {
			return ErrLengthMismatch
		}
		if total > frame.WriteHeaderSize+uint32(d.maxPayload) { //nolint:gosec // maxPayload is positive
			return ErrFrameTooLarge
		}
	}
	return nil
}

// decode builds a command from one complete frame.
func (d *Decoder) decode(raw []byte) (Command, error) {
	hdr, ok := frame.ParseHeader(raw)
	if !ok {
		return nil, ErrLengthMismatch
	}
	if hdr.Chip > frame.MaxChipAddress {
		return nil, ErrChipAddress
	}

	if hdr.Kind == frame.KindRead {
		// Bytes between the header and the declared total are padding.
		// Lengths past the address space are rejected by the dispatcher, so
		// clamping keeps int conversion safe on 32-bit targets.
		length := min(hdr.DataLen, frame.AddressSpace+1)
		return ReadCommand{
			Chip:     hdr.Chip,
			Register: hdr.Register,
			Length:   int(length),
		}, nil
	}

	if uint64(hdr.TotalLen) != frame.WriteHeaderSize+uint64(hdr.DataLen) {
		return nil, ErrLengthMismatch
	}
	data := make([]byte, hdr.DataLen)
	copy(data, raw[frame.WriteHeaderSize:])
	return WriteCommand{
		Chip:     hdr.Chip,
		Register: hdr.Register,
		Safeload: hdr.Safeload != 0,
		Channel:  hdr.Channel,
		Data:     data,
	}, nil
}

// compact moves unconsumed bytes to the front of the buffer.
func (d *Decoder) compact(off int) {
	if off == 0 {
		return
	}
	n := copy(d.buf, d.buf[off:])
	d.buf = d.buf[:n]
	if n == 0 && cap(d.buf) > frame.MediumBufferSize {
		// Drop a buffer grown by a program download
		d.buf = nil
	}
}
