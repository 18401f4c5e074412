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
	"testing"

	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		resp Response
		name string
		want []byte
	}{
		{
			name: "successful read",
			resp: ReadResult{Chip: 1, Register: 0xF6FB, Status: StatusSuccess, Data: []byte{0x12, 0x34}},
			want: []byte{
				0x0b, 0x00, 0x00, 0x00, 0x10, 0x01, 0x00, 0x00, 0x00, 0x02, 0xf6, 0xfb, 0x00, 0x00,
				0x12, 0x34,
			},
		},
		{
			name: "failed read carries no data",
			resp: ReadResult{Chip: 1, Register: 0x0010, Status: StatusFailure},
			want: []byte{0x0b, 0x00, 0x00, 0x00, 0x0e, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x01, 0x00},
		},
		{
			name: "ack reports bytes written",
			resp: Ack{Chip: 0x34, Register: 0x0004, Length: 4, Status: StatusSuccess},
			want: []byte{0x0b, 0x00, 0x00, 0x00, 0x0e, 0x34, 0x00, 0x00, 0x00, 0x04, 0x00, 0x04, 0x00, 0x00},
		},
		{
			name: "failed ack",
			resp: Ack{Chip: 0x34, Register: 0x0004, Length: 4, Status: StatusFailure},
			want: []byte{0x0b, 0x00, 0x00, 0x00, 0x0e, 0x34, 0x00, 0x00, 0x00, 0x04, 0x00, 0x04, 0x01, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Encode(tt.resp))
		})
	}
}

func TestEncode_TotalCoversFrame(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 4, 4093, frame.DefaultMaxPayload} {
		out := Encode(ReadResult{Chip: 1, Data: make([]byte, n)})

		hdr, ok := frame.ParseHeader(out)
		require.True(t, ok)
		assert.Equal(t, frame.KindResponse, int(hdr.Kind))
		assert.Equal(t, uint32(len(out)), hdr.TotalLen, "n=%d", n)
		assert.Equal(t, uint32(n), hdr.DataLen, "n=%d", n)
	}
}

func TestAppendResponse_ReusesBuffer(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 0, 64)
	out := AppendResponse(buf, Ack{Chip: 1, Length: 2})
	assert.Len(t, out, frame.ResponseHeaderSize)
	assert.Equal(t, &buf[:1][0], &out[0], "no reallocation when capacity suffices")
}

func TestEncode_PanicsOnForeignResponse(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { Encode(nil) })
}
