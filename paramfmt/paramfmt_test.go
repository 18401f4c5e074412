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

package paramfmt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Fixed824(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want  []byte
		value float64
	}{
		{value: -128.0, want: []byte{0x80, 0x00, 0x00, 0x00}},
		{value: -32.0, want: []byte{0xE0, 0x00, 0x00, 0x00}},
		{value: -1.0, want: []byte{0xFF, 0x00, 0x00, 0x00}},
		{value: -0.5, want: []byte{0xFF, 0x80, 0x00, 0x00}},
		{value: 0.0, want: []byte{0x00, 0x00, 0x00, 0x00}},
		{value: 0.25, want: []byte{0x00, 0x40, 0x00, 0x00}},
		{value: 0.5, want: []byte{0x00, 0x80, 0x00, 0x00}},
		{value: 1.0, want: []byte{0x01, 0x00, 0x00, 0x00}},
		{value: 2.0, want: []byte{0x02, 0x00, 0x00, 0x00}},
	}
	for _, tt := range tests {
		got, err := Encode(Fixed824, tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "value %g", tt.value)

		back, err := Decode(Fixed824, got)
		require.NoError(t, err)
		assert.InDelta(t, tt.value, back, 1.0/fracScale)
	}
}

func TestEncode_Integers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want   []byte
		value  float64
		format Format
	}{
		{format: Int32, value: -2147483648, want: []byte{0x80, 0x00, 0x00, 0x00}},
		{format: Int32, value: -2147483647, want: []byte{0x80, 0x00, 0x00, 0x01}},
		{format: Int32, value: -1073741824, want: []byte{0xC0, 0x00, 0x00, 0x00}},
		{format: Int32, value: -4, want: []byte{0xFF, 0xFF, 0xFF, 0xFC}},
		{format: Int32, value: -1, want: []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{format: Int32, value: 3, want: []byte{0x00, 0x00, 0x00, 0x03}},
		{format: Int32, value: 2147483647, want: []byte{0x7F, 0xFF, 0xFF, 0xFF}},
		{format: Int28, value: 268435455 / 2, want: []byte{0x07, 0xFF, 0xFF, 0xFF}},
		{format: Int28, value: -134217728, want: []byte{0xF8, 0x00, 0x00, 0x00}},
		{format: Int28, value: 2.9, want: []byte{0x00, 0x00, 0x00, 0x02}},
	}
	for _, tt := range tests {
		got, err := Encode(tt.format, tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %g", tt.format, tt.value)
	}
}

func TestEncode_OutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		value  float64
		format Format
	}{
		{name: "8.24 at 128", format: Fixed824, value: 128},
		{name: "8.24 below -128", format: Fixed824, value: -128.001},
		{name: "28.0 above 2^27", format: Int28, value: 1 << 27},
		{name: "32.0 above max", format: Int32, value: math.MaxInt32 + 1},
		{name: "NaN", format: Int32, value: math.NaN()},
		{name: "infinity", format: Fixed824, value: math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Encode(tt.format, tt.value)
			require.ErrorIs(t, err, ErrOutOfRange)
		})
	}

	_, err := Encode(Format(9), 1)
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	v, err := Decode(Fixed824, []byte{0x00, 0x80, 0x00, 0x00})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-9)

	v, err = Decode(Int32, []byte{0xFF, 0xFF, 0xFF, 0xFE})
	require.NoError(t, err)
	assert.InDelta(t, -2.0, v, 0)

	_, err = Decode(Int28, []byte{0x00, 0x01})
	require.ErrorIs(t, err, ErrWordSize)

	_, err = Decode(Format(-1), []byte{0, 0, 0, 0})
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestAppendEncode(t *testing.T) {
	t.Parallel()

	buf := []byte{0xAA}
	buf, err := AppendEncode(buf, Fixed824, 1)
	require.NoError(t, err)
	buf, err = AppendEncode(buf, Int32, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x01, 0, 0, 0, 0, 0, 0, 0x01}, buf)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{in: "8.24", want: Fixed824},
		{in: "Int8.24", want: Fixed824},
		{in: "int8_24", want: Fixed824},
		{in: "28.0", want: Int28},
		{in: "28", want: Int28},
		{in: " Int32.0 ", want: Int32},
		{in: "5.23", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.err {
			require.ErrorIs(t, err, ErrUnknownFormat, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	assert.Equal(t, "8.24", Fixed824.String())
	assert.Equal(t, "28.0", Int28.String())
	assert.Equal(t, "32.0", Int32.String())
	assert.Equal(t, "Format(7)", Format(7).String())
}

func TestUnits(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, DBToLinear(0), 1e-12)
	assert.InDelta(t, 0.1, DBToLinear(-20), 1e-12)
	assert.InDelta(t, -6.0206, LinearToDB(0.5), 1e-4)
	assert.True(t, math.IsInf(LinearToDB(0), -1))

	for _, db := range []float64{-80, -12.5, 0, 6} {
		assert.InDelta(t, db, Decibel.FromRaw(Decibel.ToRaw(db)), 1e-9)
	}
	assert.InDelta(t, 0.3, Linear.ToRaw(0.3), 0)

	u, err := ParseUnit("dB")
	require.NoError(t, err)
	assert.Equal(t, Decibel, u)
	u, err = ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, Linear, u)
	_, err = ParseUnit("volts")
	require.ErrorIs(t, err, ErrUnknownUnit)
	assert.Equal(t, "dB", Decibel.String())
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.5", FormatValue(1.5))
	assert.Equal(t, "2", FormatValue(2.0))
	assert.Equal(t, "-6.021", FormatValue(-6.0206))
	assert.Equal(t, "0", FormatValue(-0.0001))
	assert.Equal(t, "100", FormatValue(100))
}

func FuzzFixed824(f *testing.F) {
	f.Add([]byte{0x00, 0x80, 0x00, 0x00})
	f.Add([]byte{0x80, 0x00, 0x00, 0x00})
	f.Add([]byte{0x7F, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, word []byte) {
		if len(word) != WordSize {
			return
		}
		v, err := Decode(Fixed824, word)
		require.NoError(t, err)
		back, err := Encode(Fixed824, v)
		require.NoError(t, err)
		assert.Equal(t, word, back)
	})
}
