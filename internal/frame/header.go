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

package frame

import "encoding/binary"

// Header is a decoded frame header. Fields absent from a layout stay zero.
type Header struct {
	TotalLen uint32
	DataLen  uint32
	Register uint16
	Kind     byte
	Safeload byte
	Channel  byte
	Chip     byte
	Status   byte
}

// HeaderSize returns the fixed header length for a control byte, or 0 when
// the byte does not start a known frame.
func HeaderSize(kind byte) int {
	switch kind {
	case KindRead:
		return ReadHeaderSize
	case KindWrite:
		return WriteHeaderSize
	case KindResponse:
		return ResponseHeaderSize
	default:
		return 0
	}
}

// totalOffset is where the 4-byte total length field starts for a kind.
func totalOffset(kind byte) int {
	if kind == KindWrite {
		return 3
	}
	return 1
}

// PeekTotalLength reads the declared total length without requiring the
// whole header. ok is false when too few bytes are buffered or the control
// byte is unknown.
func PeekTotalLength(buf []byte) (total uint32, ok bool) {
	if len(buf) == 0 || HeaderSize(buf[0]) == 0 {
		return 0, false
	}
	off := totalOffset(buf[0])
	if len(buf) < off+4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(buf[off : off+4]), true
}

// ParseHeader decodes the header at the start of buf. ok is false when the
// control byte is unknown or the header is not fully buffered.
func ParseHeader(buf []byte) (hdr Header, ok bool) {
	if len(buf) == 0 {
		return Header{}, false
	}
	size := HeaderSize(buf[0])
	if size == 0 || len(buf) < size {
		return Header{}, false
	}

	hdr.Kind = buf[0]
	off := 1
	if hdr.Kind == KindWrite {
		hdr.Safeload = buf[1]
		hdr.Channel = buf[2]
		off = 3
	}
	hdr.TotalLen = binary.BigEndian.Uint32(buf[off:])
	hdr.Chip = buf[off+4]
	hdr.DataLen = binary.BigEndian.Uint32(buf[off+5:])
	hdr.Register = binary.BigEndian.Uint16(buf[off+9:])
	if hdr.Kind == KindResponse {
		hdr.Status = buf[off+11]
	}
	return hdr, true
}

// AppendReadRequest appends a read request as SigmaStudio sends it,
// including the two padding bytes.
func AppendReadRequest(dst []byte, chip uint8, register uint16, length uint32) []byte {
	dst = append(dst, KindRead)
	dst = binary.BigEndian.AppendUint32(dst, ReadRequestSize)
	dst = append(dst, chip)
	dst = binary.BigEndian.AppendUint32(dst, length)
	dst = binary.BigEndian.AppendUint16(dst, register)
	return append(dst, 0x00, 0x00)
}

// AppendWriteRequest appends a write request carrying data.
func AppendWriteRequest(dst []byte, safeload, channel, chip uint8, register uint16, data []byte) []byte {
	dst = append(dst, KindWrite, safeload, channel)
	dst = binary.BigEndian.AppendUint32(dst, uint32(WriteHeaderSize+len(data))) //nolint:gosec // bounded by caller
	dst = append(dst, chip)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data))) //nolint:gosec // bounded by caller
	dst = binary.BigEndian.AppendUint16(dst, register)
	return append(dst, data...)
}

// AppendResponse appends a response frame. dataLen is written as given so
// acknowledgements can report a byte count without carrying the bytes.
func AppendResponse(dst []byte, chip uint8, register uint16, status byte, dataLen uint32, data []byte) []byte {
	dst = append(dst, KindResponse)
	dst = binary.BigEndian.AppendUint32(dst, uint32(ResponseHeaderSize+len(data))) //nolint:gosec // bounded by caller
	dst = append(dst, chip)
	dst = binary.BigEndian.AppendUint32(dst, dataLen)
	dst = binary.BigEndian.AppendUint16(dst, register)
	dst = append(dst, status, 0x00)
	return append(dst, data...)
}
