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

// Package frame holds the SigmaStudio TCPIP wire layout: control bytes,
// header sizes and big-endian field offsets shared by the server and client.
package frame

// Control bytes - the first byte of every frame selects its layout
const (
	KindWrite    = 0x09 // Host writes registers
	KindRead     = 0x0a // Host requests a register read
	KindResponse = 0x0b // Device answers a request
)

// Header sizes, in bytes, before any payload
const (
	ReadHeaderSize     = 12 // ctl total(4) chip datalen(4) addr(2)
	WriteHeaderSize    = 14 // ctl safeload channel total(4) chip datalen(4) addr(2)
	ResponseHeaderSize = 14 // ctl total(4) chip datalen(4) addr(2) status reserved

	// ReadRequestSize is the total length SigmaStudio declares for a read
	// request; the two bytes after the header are padding.
	ReadRequestSize = 14

	// MinHeaderProbe is the number of bytes needed before any header's
	// total length field can be located.
	MinHeaderProbe = 7
)

// Response status byte
const (
	StatusSuccess = 0x00
	StatusFailure = 0x01
)

// Addressing limits
const (
	MaxChipAddress = 0x7F    // 7-bit bus address
	AddressSpace   = 0x10000 // 16-bit register space
)

// Size limits
const (
	// DefaultMaxPayload matches the largest program image SigmaStudio pushes
	// to an ADAU1452 in one frame (20480 words of 4 bytes).
	DefaultMaxPayload = 20480 * 4

	// DefaultMaxFrameSize is DefaultMaxPayload plus the write header.
	DefaultMaxFrameSize = DefaultMaxPayload + WriteHeaderSize

	// DefaultPort is the TCP port SigmaStudio connects to.
	DefaultPort = 8086
)
