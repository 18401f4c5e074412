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

// Package wiretest provides stream helpers for exercising frame decoding
// under realistic delivery: jittered, fragmented reads and prebuilt
// SigmaStudio request frames.
package wiretest

import (
	"io"
	"math/rand/v2"
	"time"
)

// JitterConfig configures a JitteryConn.
type JitterConfig struct {
	MaxLatency time.Duration
	// MinFragment is the smallest read returned while fragmenting.
	MinFragment int
	// Boundary, when non-zero, never lets a read cross a multiple of
	// Boundary bytes, like a USB bulk endpoint or a small socket buffer.
	Boundary int
	// StallAfter stalls once for StallDuration after this many bytes.
	StallAfter    int
	StallDuration time.Duration
	Seed          uint64
	Fragment      bool
}

// DefaultJitterConfig fragments every read with a little latency.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:  2 * time.Millisecond,
		Fragment:    true,
		MinFragment: 1,
	}
}

// JitteryConn wraps a stream and hands reads back in random fragments
// without losing data. Writes pass through unchanged.
type JitteryConn struct {
	backend io.ReadWriteCloser
	rng     *rand.Rand
	pending []byte
	config  JitterConfig
	total   int
	stalled bool
}

// NewJitteryConn wraps backend. A zero Seed picks a random one.
func NewJitteryConn(backend io.ReadWriteCloser, config JitterConfig) *JitteryConn {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // test helper
	}
	if config.MinFragment < 1 {
		config.MinFragment = 1
	}
	return &JitteryConn{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0x5167_5ad0)), //nolint:gosec // test helper
		pending: make([]byte, 0, 1024),
	}
}

// Write implements io.Writer
func (j *JitteryConn) Write(p []byte) (int, error) {
	return j.backend.Write(p) //nolint:wrapcheck // pass-through
}

// Close implements io.Closer
func (j *JitteryConn) Close() error {
	return j.backend.Close() //nolint:wrapcheck // pass-through
}

// Read returns some prefix of the buffered stream, refilling from the
// backend only when nothing is buffered.
func (j *JitteryConn) Read(p []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		if d := time.Duration(j.rng.Int64N(int64(j.config.MaxLatency) + 1)); d > 0 {
			time.Sleep(d)
		}
	}

	if len(j.pending) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if n == 0 {
			return 0, err //nolint:wrapcheck // pass-through
		}
		j.pending = append(j.pending, tmp[:n]...)
	}

	n := min(len(j.pending), len(p))
	n = j.limit(n)

	copy(p, j.pending[:n])
	j.pending = j.pending[n:]
	j.total += n
	return n, nil
}

func (j *JitteryConn) limit(n int) int {
	if j.config.StallAfter > 0 && !j.stalled {
		if j.total >= j.config.StallAfter {
			j.stalled = true
			time.Sleep(j.config.StallDuration)
		} else {
			n = min(n, j.config.StallAfter-j.total)
		}
	}
	if b := j.config.Boundary; b > 0 {
		n = min(n, b-j.total%b)
	}
	if j.config.Fragment && n > j.config.MinFragment {
		n = j.config.MinFragment + j.rng.IntN(n-j.config.MinFragment+1)
	}
	return n
}

// Delivered returns the number of bytes handed to readers so far
func (j *JitteryConn) Delivered() int {
	return j.total
}

// Split cuts b into random consecutive pieces of at least one byte, for
// feeding a decoder directly.
func Split(b []byte, seed uint64) [][]byte {
	rng := rand.New(rand.NewPCG(seed, seed^0x5167_5ad0)) //nolint:gosec // test helper
	var parts [][]byte
	for len(b) > 0 {
		n := 1 + rng.IntN(len(b))
		parts = append(parts, b[:n])
		b = b[n:]
	}
	return parts
}
