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

package uart

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/ZaparooProject/go-sigmatcp/internal/wiretest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*sigmatcp.Server, *sigmatcp.MockBus) {
	t.Helper()
	bus := sigmatcp.NewMockBus(16)
	d, err := sigmatcp.NewDispatcher(bus, sigmatcp.WithDispatchLogger(zerolog.Nop()))
	require.NoError(t, err)
	s, err := sigmatcp.NewServer(d, sigmatcp.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return s, bus
}

// pipeOpener hands out the device side of a fresh pipe on every open and
// sends the host side to the test.
func pipeOpener(hosts chan<- net.Conn, opens *atomic.Int32) Opener {
	return func(string, int) (io.ReadWriteCloser, error) {
		opens.Add(1)
		device, host := net.Pipe()
		hosts <- host
		return device, nil
	}
}

func TestEndpoint_ServesFrames(t *testing.T) {
	t.Parallel()

	s, bus := newServer(t)
	bus.Poke(1, 0x20, []byte{0xCA, 0xFE})

	hosts := make(chan net.Conn, 4)
	var opens atomic.Int32
	ep, err := NewEndpoint(s, "/dev/ttyUSB0", DefaultBaud, pipeOpener(hosts, &opens))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ep.Serve(ctx) }()

	host := <-hosts
	_, err = host.Write(wiretest.ReadRequest(1, 0x20, 2))
	require.NoError(t, err)

	resp := make([]byte, frame.ResponseHeaderSize+2)
	_, err = io.ReadFull(host, resp)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE}, resp[frame.ResponseHeaderSize:])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint did not stop")
	}
}

func TestEndpoint_ReopensAfterMalformedFrame(t *testing.T) {
	t.Parallel()

	s, _ := newServer(t)
	hosts := make(chan net.Conn, 4)
	var opens atomic.Int32
	ep, err := NewEndpoint(s, "/dev/ttyUSB0", DefaultBaud, pipeOpener(hosts, &opens))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ep.Serve(ctx) }()

	first := <-hosts
	_, _ = first.Write([]byte{0x55, 0x55})

	select {
	case second := <-hosts:
		_ = second.Close()
	case <-time.After(3 * time.Second):
		t.Fatal("port was not reopened")
	}
	assert.GreaterOrEqual(t, opens.Load(), int32(2))
}

func TestEndpoint_StopsOnServerShutdown(t *testing.T) {
	t.Parallel()

	s, _ := newServer(t)
	require.NoError(t, s.Close())

	hosts := make(chan net.Conn, 4)
	var opens atomic.Int32
	ep, err := NewEndpoint(s, "COM3", 0, pipeOpener(hosts, &opens))
	require.NoError(t, err)

	err = ep.Serve(context.Background())
	require.ErrorIs(t, err, sigmatcp.ErrServerClosed)
}

func TestEndpoint_RetriesOpen(t *testing.T) {
	t.Parallel()

	s, _ := newServer(t)
	var calls atomic.Int32
	failing := func(string, int) (io.ReadWriteCloser, error) {
		calls.Add(1)
		return nil, errors.New("no such port")
	}
	ep, err := NewEndpoint(s, "/dev/ttyACM0", DefaultBaud, failing)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()
	require.NoError(t, ep.Serve(ctx))
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestNewEndpoint_Validation(t *testing.T) {
	t.Parallel()

	s, _ := newServer(t)
	_, err := NewEndpoint(nil, "/dev/ttyUSB0", 0, nil)
	require.Error(t, err)
	_, err = NewEndpoint(s, "", 0, nil)
	require.Error(t, err)
}

func TestPortInfo_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/dev/ttyS0", PortInfo{Name: "/dev/ttyS0"}.String())
	assert.Equal(t, "/dev/ttyUSB0 (1a86:7523 USB Serial)",
		PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", Product: "USB Serial"}.String())
}
