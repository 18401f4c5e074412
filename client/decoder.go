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

package client

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
)

// ErrUnexpectedFrame is returned when the server sends something other
// than a response frame.
var ErrUnexpectedFrame = errors.New("unexpected frame from server")

// Response is one decoded response frame.
type Response struct {
	Data    []byte
	DataLen uint32
	Address uint16
	Chip    uint8
	Status  byte
}

// OK reports whether the server marked the request successful
func (r Response) OK() bool {
	return r.Status == frame.StatusSuccess
}

// Decoder reassembles response frames from a byte stream. Like the
// server-side decoder it carries partial frames across Feed calls.
type Decoder struct {
	buf        []byte
	maxPayload int
}

// NewDecoder creates a response decoder. maxPayload bounds the data a
// single response may carry; zero uses the protocol default.
func NewDecoder(maxPayload int) *Decoder {
	if maxPayload <= 0 {
		maxPayload = frame.DefaultMaxPayload
	}
	return &Decoder{maxPayload: maxPayload}
}

// Feed appends p and returns every complete response now buffered. A
// frame that cannot be a response discards the buffer and returns an
// error together with the responses decoded before it.
func (d *Decoder) Feed(p []byte) ([]Response, error) {
	d.buf = append(d.buf, p...)

	var out []Response
	consumed := 0
	for {
		rest := d.buf[consumed:]
		if len(rest) == 0 {
			break
		}
		if rest[0] != frame.KindResponse {
			kind := rest[0]
			d.Reset()
			return out, fmt.Errorf("%w: control byte 0x%02x", ErrUnexpectedFrame, kind)
		}

		total, ok := frame.PeekTotalLength(rest)
		if !ok {
			break
		}
		if total < frame.ResponseHeaderSize || int(total)-frame.ResponseHeaderSize > d.maxPayload {
			d.Reset()
			return out, fmt.Errorf("%w: bad response length %d", ErrUnexpectedFrame, total)
		}
		if len(rest) < int(total) {
			break
		}

		hdr, _ := frame.ParseHeader(rest)
		data := make([]byte, int(total)-frame.ResponseHeaderSize)
		copy(data, rest[frame.ResponseHeaderSize:total])
		out = append(out, Response{
			Chip:    hdr.Chip,
			Address: hdr.Register,
			DataLen: hdr.DataLen,
			Status:  hdr.Status,
			Data:    data,
		})
		consumed += int(total)
	}

	d.buf = append(d.buf[:0], d.buf[consumed:]...)
	return out, nil
}

// Buffered returns the number of bytes held for an incomplete frame
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
