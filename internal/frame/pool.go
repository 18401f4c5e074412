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

import "sync"

// BufferPool hands out reusable byte slices for socket reads and response
// encoding, sized for SigmaStudio traffic.
type BufferPool struct {
	// Headers and short reads
	smallPool sync.Pool
	// Typical parameter writes and single-transfer chunks
	mediumPool sync.Pool
	// Whole program images
	largePool sync.Pool
}

// Size thresholds for buffer categories
const (
	SmallBufferSize  = 64
	MediumBufferSize = 4096
	LargeBufferSize  = DefaultMaxFrameSize
)

var defaultPool = NewBufferPool()

// NewBufferPool creates a pool with one sync.Pool per size class.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		smallPool:  sync.Pool{New: newSized(SmallBufferSize)},
		mediumPool: sync.Pool{New: newSized(MediumBufferSize)},
		largePool:  sync.Pool{New: newSized(LargeBufferSize)},
	}
}

func newSized(size int) func() any {
	return func() any {
		buf := make([]byte, size)
		return &buf
	}
}

// GetBuffer returns a slice of exactly size bytes. Slices up to
// LargeBufferSize come from the pool and should go back via PutBuffer.
func (p *BufferPool) GetBuffer(size int) []byte {
	var pool *sync.Pool
	switch {
	case size <= SmallBufferSize:
		pool = &p.smallPool
	case size <= MediumBufferSize:
		pool = &p.mediumPool
	case size <= LargeBufferSize:
		pool = &p.largePool
	default:
		// Oversized requests bypass the pool
		return make([]byte, size)
	}

	bufPtr, ok := pool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// PutBuffer returns a slice obtained from GetBuffer. The slice is zeroed and
// must not be used afterwards.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	clear(full)

	switch cap(buf) {
	case SmallBufferSize:
		p.smallPool.Put(&full)
	case MediumBufferSize:
		p.mediumPool.Put(&full)
	case LargeBufferSize:
		p.largePool.Put(&full)
	default:
		// Not ours, let GC handle it
		return
	}
}

// GetBuffer acquires a buffer from the default pool
func GetBuffer(size int) []byte {
	return defaultPool.GetBuffer(size)
}

// PutBuffer returns a buffer to the default pool
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}
