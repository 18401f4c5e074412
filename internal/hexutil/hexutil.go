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

// Package hexutil parses and formats the numbers and byte strings used by
// the HTTP API, the command-line tools and wire traces.
package hexutil

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrOddLength is returned when a hex byte string has a dangling nibble.
var ErrOddLength = errors.New("hex data has odd length")

// maxFormatted is the number of bytes Format prints before truncating.
const maxFormatted = 32

// ParseUint parses a decimal number or a 0x-prefixed hex number that fits
// in bitSize bits.
func ParseUint(s string, bitSize int) (uint64, error) {
	s = strings.TrimSpace(s)
	base := 10
	if rest, ok := cutHexPrefix(s); ok {
		s = rest
		base = 16
	}
	v, err := strconv.ParseUint(s, base, bitSize)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return v, nil
}

// ParseBytes parses a hex byte string. An optional 0x prefix and separators
// (spaces, commas, colons) are ignored, so "0x0102", "01 02" and "01:02"
// all yield {0x01, 0x02}.
func ParseBytes(s string) ([]byte, error) {
	s, _ = cutHexPrefix(strings.TrimSpace(s))
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', ',', ':', '\t':
			return -1
		}
		return r
	}, s)
	if len(clean)%2 != 0 {
		return nil, ErrOddLength
	}
	out, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("parse hex data: %w", err)
	}
	return out, nil
}

func cutHexPrefix(s string) (string, bool) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:], true
	}
	return s, false
}

// Format renders data as space-separated upper-case hex, truncated after
// 32 bytes for log lines.
func Format(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	if len(data) > maxFormatted {
		return Dump(data[:maxFormatted]) + fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return Dump(data)
}

// Dump renders every byte of data as space-separated upper-case hex.
func Dump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(data) * 3)
	for i, b := range data {
		if i > 0 {
			_ = sb.WriteByte(' ')
		}
		_, _ = fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// List renders data as "[0x01, 0x02]".
func List(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("0x%02x", b)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Addr renders a register address as "0x003b".
func Addr(register uint16) string {
	return fmt.Sprintf("0x%04x", register)
}
