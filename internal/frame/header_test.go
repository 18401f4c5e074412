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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind byte
		want int
	}{
		{name: "read", kind: KindRead, want: 12},
		{name: "write", kind: KindWrite, want: 14},
		{name: "response", kind: KindResponse, want: 14},
		{name: "unknown", kind: 0x7F, want: 0},
		{name: "zero", kind: 0x00, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HeaderSize(tt.kind))
		})
	}
}

func TestParseHeader_Read(t *testing.T) {
	t.Parallel()

	// Captured from SigmaStudio 4.7 reading 4 bytes at 0x001a from IC 1
	buf := []byte{0x0a, 0x00, 0x00, 0x00, 0x0e, 0x01, 0x00, 0x00, 0x00, 0x04, 0x00, 0x1a, 0x00, 0x00}

	hdr, ok := ParseHeader(buf)
	require.True(t, ok)
	assert.Equal(t, byte(KindRead), hdr.Kind)
	assert.Equal(t, uint32(14), hdr.TotalLen)
	assert.Equal(t, byte(0x01), hdr.Chip)
	assert.Equal(t, uint32(4), hdr.DataLen)
	assert.Equal(t, uint16(0x001a), hdr.Register)
}

func TestParseHeader_Write(t *testing.T) {
	t.Parallel()

	buf := []byte{
		0x09, 0x01, 0x02,
		0x00, 0x00, 0x00, 0x10,
		0x34,
		0x00, 0x00, 0x00, 0x02,
		0x12, 0x34,
		0xaa, 0xbb,
	}

	hdr, ok := ParseHeader(buf)
	require.True(t, ok)
	assert.Equal(t, byte(KindWrite), hdr.Kind)
	assert.Equal(t, byte(0x01), hdr.Safeload)
	assert.Equal(t, byte(0x02), hdr.Channel)
	assert.Equal(t, uint32(16), hdr.TotalLen)
	assert.Equal(t, byte(0x34), hdr.Chip)
	assert.Equal(t, uint32(2), hdr.DataLen)
	assert.Equal(t, uint16(0x1234), hdr.Register)
}

func TestParseHeader_Incomplete(t *testing.T) {
	t.Parallel()

	full := AppendWriteRequest(nil, 0, 0, 0x34, 0x0010, []byte{1, 2, 3})
	for n := range WriteHeaderSize {
		_, ok := ParseHeader(full[:n])
		assert.False(t, ok, "prefix of %d bytes", n)
	}
	_, ok := ParseHeader(full[:WriteHeaderSize])
	assert.True(t, ok)
}

func TestPeekTotalLength(t *testing.T) {
	t.Parallel()

	read := AppendReadRequest(nil, 1, 0x0020, 8)
	write := AppendWriteRequest(nil, 0, 0, 1, 0x0020, make([]byte, 40))

	total, ok := PeekTotalLength(read[:4])
	assert.False(t, ok)
	assert.Zero(t, total)

	total, ok = PeekTotalLength(read[:5])
	require.True(t, ok)
	assert.Equal(t, uint32(ReadRequestSize), total)

	_, ok = PeekTotalLength(write[:6])
	assert.False(t, ok)

	total, ok = PeekTotalLength(write[:7])
	require.True(t, ok)
	assert.Equal(t, uint32(54), total)

	_, ok = PeekTotalLength([]byte{0xff, 0, 0, 0, 20})
	assert.False(t, ok, "unknown control byte")
}

func TestAppendReadRequest(t *testing.T) {
	t.Parallel()

	got := AppendReadRequest(nil, 0x01, 0x001a, 4)
	want := []byte{0x0a, 0x00, 0x00, 0x00, 0x0e, 0x01, 0x00, 0x00, 0x00, 0x04, 0x00, 0x1a, 0x00, 0x00}
	assert.Equal(t, want, got)
}

func TestAppendResponse(t *testing.T) {
	t.Parallel()

	got := AppendResponse(nil, 0x01, 0x001a, StatusSuccess, 4, []byte{0xde, 0xad, 0xbe, 0xef})
	want := []byte{
		0x0b,
		0x00, 0x00, 0x00, 0x12,
		0x01,
		0x00, 0x00, 0x00, 0x04,
		0x00, 0x1a,
		0x00, 0x00,
		0xde, 0xad, 0xbe, 0xef,
	}
	assert.Equal(t, want, got)

	hdr, ok := ParseHeader(got)
	require.True(t, ok)
	assert.Equal(t, byte(StatusSuccess), hdr.Status)
	assert.Equal(t, uint32(len(got)), hdr.TotalLen)
}

func TestAppendResponse_AckCarriesCountOnly(t *testing.T) {
	t.Parallel()

	got := AppendResponse([]byte{0xff}, 0x34, 0x0100, StatusFailure, 512, nil)
	require.Len(t, got, 1+ResponseHeaderSize)
	assert.Equal(t, byte(0xff), got[0], "existing prefix kept")

	hdr, ok := ParseHeader(got[1:])
	require.True(t, ok)
	assert.Equal(t, uint32(ResponseHeaderSize), hdr.TotalLen)
	assert.Equal(t, uint32(512), hdr.DataLen)
	assert.Equal(t, byte(StatusFailure), hdr.Status)
}

func TestBufferPool_SizeClasses(t *testing.T) {
	t.Parallel()

	pool := NewBufferPool()
	for _, size := range []int{0, 1, SmallBufferSize, SmallBufferSize + 1, MediumBufferSize, LargeBufferSize} {
		buf := pool.GetBuffer(size)
		assert.Len(t, buf, size)
		pool.PutBuffer(buf)
	}

	oversized := pool.GetBuffer(LargeBufferSize + 1)
	assert.Len(t, oversized, LargeBufferSize+1)
	pool.PutBuffer(oversized)
}

func TestBufferPool_ReturnsZeroed(t *testing.T) {
	t.Parallel()

	pool := NewBufferPool()
	buf := pool.GetBuffer(MediumBufferSize)
	for i := range buf {
		buf[i] = 0xAA
	}
	pool.PutBuffer(buf)

	again := pool.GetBuffer(MediumBufferSize)
	for _, b := range again {
		if b != 0 {
			t.Fatalf("buffer not cleared: found 0x%02X", b)
		}
	}
}
