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
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, maxTransfer int, opts ...sigmatcp.ServerOption) (*sigmatcp.Server, *sigmatcp.MockBus) {
	t.Helper()
	bus := sigmatcp.NewMockBus(maxTransfer)
	d, err := sigmatcp.NewDispatcher(bus, sigmatcp.WithDispatchLogger(zerolog.Nop()))
	require.NoError(t, err)
	opts = append([]sigmatcp.ServerOption{sigmatcp.WithLogger(zerolog.Nop())}, opts...)
	s, err := sigmatcp.NewServer(d, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, bus
}

// pipeClient connects a client to s over an in-memory pipe.
func pipeClient(t *testing.T, s *sigmatcp.Server, opts ...Option) *Client {
	t.Helper()
	server, conn := net.Pipe()
	go func() { _ = s.ServeConn(context.Background(), server, "pipe") }()

	opts = append([]Option{WithClientLogger(zerolog.Nop())}, opts...)
	c, err := New(conn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_WriteThenRead(t *testing.T) {
	t.Parallel()

	s, bus := newServer(t, 4)
	c := pipeClient(t, s)
	ctx := context.Background()

	payload := []byte{0x00, 0x80, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05}
	require.NoError(t, c.WriteRegisters(ctx, 1, 0x0010, payload))

	got, err := c.ReadRegisters(ctx, 1, 0x0010, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Chunked through a 4-byte bus: 3 write + 3 read transactions
	assert.Len(t, bus.Transactions(), 6)
}

func TestClient_ReadFailure(t *testing.T) {
	t.Parallel()

	s, bus := newServer(t, 16)
	bus.FailAt(1, sigmatcp.ErrNoDevice)
	c := pipeClient(t, s)

	_, err := c.ReadRegisters(context.Background(), 1, 0x0000, 4)
	require.ErrorIs(t, err, ErrReadFailed)

	// The connection survives a bus failure
	bus.FailAt(0, nil)
	_, err = c.ReadRegisters(context.Background(), 1, 0x0000, 4)
	require.NoError(t, err)
}

func TestClient_WriteFailure(t *testing.T) {
	t.Parallel()

	s, bus := newServer(t, 16)
	bus.FailAt(1, nil)
	c := pipeClient(t, s)

	err := c.WriteRegisters(context.Background(), 1, 0x0000, []byte{1, 2})
	require.ErrorIs(t, err, ErrWriteFailed)
}

func TestClient_WithoutAcks(t *testing.T) {
	t.Parallel()

	s, bus := newServer(t, 16, sigmatcp.WithWriteAcks(false))
	c := pipeClient(t, s, WithAcks(false))
	ctx := context.Background()

	require.NoError(t, c.WriteRegisters(ctx, 1, 0x0200, []byte{0xAB}))
	got, err := c.ReadRegisters(ctx, 1, 0x0200, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, got)
	assert.Equal(t, []byte{0xAB}, bus.Peek(1, 0x0200, 1))
}

func TestClient_ContextDeadline(t *testing.T) {
	t.Parallel()

	// Nothing answers on the far end
	conn, peer := net.Pipe()
	defer func() { _ = peer.Close() }()
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()

	c, err := New(conn, WithClientLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ReadRegisters(ctx, 1, 0, 4)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Closed(t *testing.T) {
	t.Parallel()

	s, _ := newServer(t, 16)
	c := pipeClient(t, s)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err := c.ReadRegisters(context.Background(), 1, 0, 1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	s, _ := newServer(t, 16)
	c := pipeClient(t, s)
	_, err = c.ReadRegisters(context.Background(), 1, 0, -1)
	require.Error(t, err)

	_, err = New(&net.TCPConn{}, WithTimeout(0))
	require.Error(t, err)
}

func TestDial_TCP(t *testing.T) {
	t.Parallel()

	s, bus := newServer(t, 16)
	bus.Poke(1, 0x0040, []byte{0x12, 0x34})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx, ln) }()

	c, err := Dial(ctx, ln.Addr().String(), nil, WithClientLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	got, err := c.ReadRegisters(ctx, 1, 0x0040, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, got)
}

func TestDial_RetriesRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	retry := &sigmatcp.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        time.Millisecond,
		BackoffMultiplier: 1,
	}
	start := time.Now()
	_, err = Dial(context.Background(), addr, retry)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.ECONNREFUSED), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
