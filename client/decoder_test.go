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
	"bytes"
	"testing"

	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/ZaparooProject/go-sigmatcp/internal/wiretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoder_Fragmented(t *testing.T) {
	t.Parallel()

	stream := wiretest.Concat(
		frame.AppendResponse(nil, 1, 0x0010, frame.StatusSuccess, 4, []byte{1, 2, 3, 4}),
		frame.AppendResponse(nil, 1, 0x0020, frame.StatusFailure, 0, nil),
		frame.AppendResponse(nil, 1, 0x0030, frame.StatusSuccess, 8, nil),
	)

	for seed := uint64(1); seed <= 20; seed++ {
		d := NewDecoder(0)
		var got []Response
		for _, part := range wiretest.Split(stream, seed) {
			resps, err := d.Feed(part)
			require.NoError(t, err)
			got = append(got, resps...)
		}

		require.Len(t, got, 3, "seed %d", seed)
		assert.Equal(t, []byte{1, 2, 3, 4}, got[0].Data)
		assert.True(t, got[0].OK())
		assert.Equal(t, uint16(0x0020), got[1].Address)
		assert.False(t, got[1].OK())
		assert.Empty(t, got[1].Data)
		assert.Equal(t, uint32(8), got[2].DataLen, "ack reports bytes written")
		assert.Empty(t, got[2].Data)
		assert.Zero(t, d.Buffered())
	}
}

func TestDecoder_PartialHeldAcrossFeeds(t *testing.T) {
	t.Parallel()

	resp := frame.AppendResponse(nil, 2, 0x0100, frame.StatusSuccess, 2, []byte{0xAA, 0xBB})
	d := NewDecoder(0)

	got, err := d.Feed(resp[:5])
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 5, d.Buffered())

	got, err = d.Feed(resp[5:])
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint8(2), got[0].Chip)
}

func TestDecoder_Errors(t *testing.T) {
	t.Parallel()

	tooLarge := frame.AppendResponse(nil, 1, 0, frame.StatusSuccess, 0, nil)
	tooLarge[4] = 0xFF // total = 0x000000FF, payload 241 > 16

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "request frame", input: wiretest.ReadRequest(1, 0, 2)},
		{name: "garbage", input: []byte{0x55}},
		{name: "total below header", input: []byte{frame.KindResponse, 0, 0, 0, 3, 0, 0}},
		{name: "payload over limit", input: tooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := NewDecoder(16)
			_, err := d.Feed(tt.input)
			require.ErrorIs(t, err, ErrUnexpectedFrame)
			assert.Zero(t, d.Buffered())
		})
	}
}

func TestDecoder_ReturnsResponsesBeforeError(t *testing.T) {
	t.Parallel()

	good := frame.AppendResponse(nil, 1, 0, frame.StatusSuccess, 1, []byte{9})
	d := NewDecoder(0)
	got, err := d.Feed(append(bytes.Clone(good), 0x0a))
	require.ErrorIs(t, err, ErrUnexpectedFrame)
	require.Len(t, got, 1)
	assert.Equal(t, []byte{9}, got[0].Data)
}
