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

// Package paramfmt converts SigmaDSP parameter words to and from numbers.
//
// Parameters live in 4-byte big-endian words. Coefficients such as gains
// are 8.24 signed fixed point; counters and integer parameters are 28.0
// or 32.0 two's complement integers.
package paramfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WordSize is the size of one parameter word in bytes
const WordSize = 4

const fracScale = 1 << 24

// Errors
var (
	ErrUnknownFormat = errors.New("unknown parameter format")
	ErrUnknownUnit   = errors.New("unknown unit")
	ErrOutOfRange    = errors.New("value out of range for format")
	ErrWordSize      = errors.New("parameter word must be 4 bytes")
)

// Format is a parameter number format
type Format int

const (
	// Fixed824 is signed 8.24 fixed point, range [-128, 128)
	Fixed824 Format = iota
	// Int28 is a signed 28-bit integer in a 32-bit word
	Int28
	// Int32 is a signed 32-bit integer
	Int32
)

// String returns the SigmaStudio name of the format
func (f Format) String() string {
	switch f {
	case Fixed824:
		return "8.24"
	case Int28:
		return "28.0"
	case Int32:
		return "32.0"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat accepts "8.24", "28.0" or "32.0", optionally prefixed with
// "int" as SigmaStudio writes them.
func ParseFormat(s string) (Format, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "int")
	name = strings.ReplaceAll(name, "_", ".")
	switch name {
	case "8.24":
		return Fixed824, nil
	case "28.0", "28":
		return Int28, nil
	case "32.0", "32":
		return Int32, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Range returns the smallest and largest encodable values
func (f Format) Range() (lo, hi float64) {
	switch f {
	case Fixed824:
		return math.MinInt32 / fracScale, float64(math.MaxInt32) / fracScale
	case Int28:
		return -(1 << 27), 1<<27 - 1
	default:
		return math.MinInt32, math.MaxInt32
	}
}

// Encode converts v to a parameter word. Fractions beyond the format's
// resolution are truncated toward zero.
func Encode(f Format, v float64) ([]byte, error) {
	return AppendEncode(make([]byte, 0, WordSize), f, v)
}

// AppendEncode appends the parameter word for v to dst.
func AppendEncode(dst []byte, f Format, v float64) ([]byte, error) {
	if f < Fixed824 || f > Int32 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
	if math.IsNaN(v) {
		return nil, fmt.Errorf("%w: NaN", ErrOutOfRange)
	}
	lo, hi := f.Range()
	if v < lo || v > hi {
		return nil, fmt.Errorf("%w: %g not in [%g, %g] for %s", ErrOutOfRange, v, lo, hi, f)
	}

	scaled := v
	if f == Fixed824 {
		scaled = v * fracScale
	}
	word := int32(math.Trunc(scaled))
	return binary.BigEndian.AppendUint32(dst, uint32(word)), nil //nolint:gosec // two's complement reinterpretation
}

// Decode converts a 4-byte parameter word to a number.
func Decode(f Format, word []byte) (float64, error) {
	if len(word) != WordSize {
		return 0, fmt.Errorf("%w: got %d", ErrWordSize, len(word))
	}
	raw := int32(binary.BigEndian.Uint32(word)) //nolint:gosec // two's complement reinterpretation
	switch f {
	case Fixed824:
		return float64(raw) / fracScale, nil
	case Int28, Int32:
		return float64(raw), nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownFormat, f)
	}
}

// Unit is how a value is presented to a user
type Unit int

const (
	// Linear values are used as-is
	Linear Unit = iota
	// Decibel values are amplitude ratios in dB
	Decibel
)

// String returns the unit suffix
func (u Unit) String() string {
	if u == Decibel {
		return "dB"
	}
	return ""
}

// ParseUnit accepts "", "linear", "none" or "db".
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear", "none":
		return Linear, nil
	case "db":
		return Decibel, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
}

// ToRaw converts a value in unit u to the linear value stored in the DSP.
func (u Unit) ToRaw(v float64) float64 {
	if u == Decibel {
		return DBToLinear(v)
	}
	return v
}

// FromRaw converts a stored linear value to unit u.
func (u Unit) FromRaw(v float64) float64 {
	if u == Decibel {
		return LinearToDB(v)
	}
	return v
}

// DBToLinear converts an amplitude in dB to a linear gain
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// LinearToDB converts a linear gain to dB. Silence maps to -Inf and the
// sign of a negative gain is ignored.
func LinearToDB(v float64) float64 {
	return 20 * math.Log10(math.Abs(v))
}

// FormatValue renders v with at most three decimals and no trailing zeros.
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "-0" {
		return "0"
	}
	return s
}
