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
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/ZaparooProject/go-sigmatcp/internal/hexutil"
	"github.com/ZaparooProject/go-sigmatcp/internal/syncutil"
	"github.com/rs/zerolog"
)

// ServerOption configures a Server
type ServerOption func(*serverConfig) error

type serverConfig struct {
	logger      zerolog.Logger
	capture     *Capture
	maxPayload  int
	readSize    int
	userTimeout time.Duration
	writeAcks   bool
}

// WithLogger sets the server's logger
func WithLogger(l zerolog.Logger) ServerOption {
	return func(c *serverConfig) error {
		c.logger = l
		return nil
	}
}

// WithMaxPayload sets the largest write payload accepted in one frame.
func WithMaxPayload(n int) ServerOption {
	return func(c *serverConfig) error {
		if n < 1 {
			return fmt.Errorf("max payload must be at least 1, got %d", n)
		}
		c.maxPayload = n
		return nil
	}
}

// WithWriteAcks controls whether write commands are answered on the wire.
// SigmaStudio's reference server sends no reply to writes; clients that
// expect one need this enabled, which is the default.
func WithWriteAcks(enabled bool) ServerOption {
	return func(c *serverConfig) error {
		c.writeAcks = enabled
		return nil
	}
}

// WithCapture records all connection traffic to c.
func WithCapture(capture *Capture) ServerOption {
	return func(c *serverConfig) error {
		c.capture = capture
		return nil
	}
}

// WithTCPUserTimeout sets how long unacknowledged data may sit on an
// accepted socket before the kernel drops the connection. Zero disables it.
func WithTCPUserTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) error {
		if d < 0 {
			return fmt.Errorf("tcp user timeout must not be negative, got %v", d)
		}
		c.userTimeout = d
		return nil
	}
}

// WithReadSize sets the size of each connection read.
func WithReadSize(n int) ServerOption {
	return func(c *serverConfig) error {
		if n < 1 {
			return fmt.Errorf("read size must be at least 1, got %d", n)
		}
		c.readSize = n
		return nil
	}
}

// Server accepts SigmaStudio connections and serves each one with a
// decode, dispatch, encode loop. Commands on one connection run strictly
// in order; connections share the Dispatcher and its bus lock.
type Server struct {
	dispatcher *Dispatcher
	listeners  map[*net.Listener]struct{}
	conns      map[*serverConn]struct{}
	cfg        serverConfig
	wg         sync.WaitGroup
	nextID     atomic.Uint64
	mu         syncutil.Mutex
	inShutdown atomic.Bool
}

// serverConn is the state of one served connection.
type serverConn struct {
	ctx    context.Context //nolint:containedctx // ends the read loop on cancel
	rwc    io.ReadWriteCloser
	logger zerolog.Logger
	remote string
	id     uint64
	seq    uint64
}

// NewServer creates a server executing commands on d.
func NewServer(d *Dispatcher, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("server requires a dispatcher")
	}

	cfg := serverConfig{
		logger:     Logger().With().Str("component", "server").Logger(),
		maxPayload: frame.DefaultMaxPayload,
		readSize:   frame.MediumBufferSize,
		writeAcks:  true,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("failed to apply server option: %w", err)
		}
	}

	RegisterMetrics()
	return &Server{
		dispatcher: d,
		cfg:        cfg,
		listeners:  make(map[*net.Listener]struct{}),
		conns:      make(map[*serverConn]struct{}),
	}, nil
}

// ListenAndServe listens on the TCP address addr and calls Serve.
// An empty addr listens on the SigmaStudio default port.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if s.inShutdown.Load() {
		return ErrServerClosed
	}
	if addr == "" {
		addr = fmt.Sprintf(":%d", frame.DefaultPort)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or the server is
// shut down, serving each on its own goroutine. It always returns a
// non-nil error; after Shutdown or Close it is ErrServerClosed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(&ln, true) {
		return ErrServerClosed
	}
	defer s.trackListener(&ln, false)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.cfg.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	backoff := newAcceptBackoff()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.inShutdown.Load() || ctx.Err() != nil {
				return ErrServerClosed
			}
			if IsRetryable(err) {
				delay := backoff.next()
				s.cfg.logger.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ErrServerClosed
				case <-timer.C:
				}
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff.reset()

		if err := tuneConn(conn, s.cfg.userTimeout); err != nil {
			s.cfg.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("socket tuning failed")
		}

		if !s.addWorker() {
			_ = conn.Close()
			return ErrServerClosed
		}
		go func() {
			defer s.wg.Done()
			_ = s.serve(ctx, conn, conn.RemoteAddr().String())
		}()
	}
}

// ServeConn serves a single connection on the calling goroutine until the
// peer closes it, a fatal error occurs or ctx is cancelled. Any
// io.ReadWriteCloser works, so a serial link can be served the same way
// as a socket. A clean close by the peer returns nil.
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser, remote string) error {
	if !s.addWorker() {
		_ = rwc.Close()
		return ErrServerClosed
	}
	defer s.wg.Done()
	return s.serve(ctx, rwc, remote)
}

// addWorker counts a connection goroutine unless shutdown has begun.
// Holding mu orders the Add before closeAll, and so before Shutdown waits.
func (s *Server) addWorker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inShutdown.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) serve(ctx context.Context, rwc io.ReadWriteCloser, remote string) error {
	sc := &serverConn{
		ctx:    ctx,
		rwc:    rwc,
		remote: remote,
		id:     s.nextID.Add(1),
	}
	sc.logger = s.cfg.logger.With().Uint64("conn", sc.id).Str("remote", remote).Logger()

	if !s.trackConn(sc, true) {
		_ = rwc.Close()
		return ErrServerClosed
	}
	defer s.trackConn(sc, false)

	stop := context.AfterFunc(ctx, func() { _ = rwc.Close() })
	defer stop()

	connectionsTotal.Inc()
	connectionsActive.Inc()
	defer connectionsActive.Dec()

	sc.logger.Info().Msg("client connected")
	s.cfg.capture.Note(sc.id, "open %s", remote)

	err := s.loop(sc)
	_ = rwc.Close()

	s.cfg.capture.Note(sc.id, "close after %d commands", sc.seq)
	switch {
	case !IsConnectionFatal(err):
		sc.logger.Info().Uint64("commands", sc.seq).Msg("client disconnected")
	case GetErrorType(err) == ErrorTypeDecode:
		sc.logger.Warn().Err(err).Uint64("commands", sc.seq).Msg("closing connection on malformed frame")
	default:
		sc.logger.Warn().Err(err).Uint64("commands", sc.seq).Msg("connection failed")
	}
	return err
}

// loop runs read, decode, dispatch, encode until the connection ends.
func (s *Server) loop(sc *serverConn) error {
	dec := NewDecoder(s.cfg.maxPayload)
	defer dec.Reset()

	buf := frame.GetBuffer(s.cfg.readSize)
	defer frame.PutBuffer(buf)

	out := make([]byte, 0, frame.SmallBufferSize)
	for {
		n, readErr := sc.rwc.Read(buf)
		if n > 0 {
			s.cfg.capture.Record(sc.id, TraceRX, buf[:n])
			sc.logger.Trace().Str("rx", hexutil.Format(buf[:n])).Msg("read")

			cmds, decodeErr := dec.Feed(buf[:n])
			for _, cmd := range cmds {
				var err error
				out, err = s.handle(sc, cmd, out)
				if err != nil {
					return err
				}
			}
			if decodeErr != nil {
				recordDecodeError(decodeErr)
				return decodeErr
			}
		}

		if readErr != nil {
			if isClosedConn(readErr) || s.inShutdown.Load() || sc.ctx.Err() != nil {
				if dec.Pending() > 0 {
					sc.logger.Debug().Int("pending", dec.Pending()).Msg("discarding partial frame")
				}
				return nil
			}
			return NewTransportError("read", sc.remote, readErr)
		}
	}
}

// handle dispatches one command and writes its response, reusing out.
func (s *Server) handle(sc *serverConn, cmd Command, out []byte) ([]byte, error) {
	sc.seq++
	sc.logger.Debug().Uint64("seq", sc.seq).Stringer("cmd", cmd).Msg("dispatch")

	resp := s.dispatcher.Dispatch(cmd)
	if _, isAck := resp.(Ack); isAck && !s.cfg.writeAcks {
		return out, nil
	}

	out = AppendResponse(out[:0], resp)
	s.cfg.capture.Record(sc.id, TraceTX, out)
	if _, err := sc.rwc.Write(out); err != nil {
		return out, NewTransportError("write", sc.remote, err)
	}
	return out, nil
}

func (s *Server) trackListener(ln *net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.inShutdown.Load() {
			return false
		}
		s.listeners[ln] = struct{}{}
		return true
	}
	delete(s.listeners, ln)
	return true
}

func (s *Server) trackConn(sc *serverConn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.inShutdown.Load() {
			return false
		}
		s.conns[sc] = struct{}{}
		return true
	}
	delete(s.conns, sc)
	return true
}

// Shutdown stops accepting, closes every connection and waits for their
// goroutines to finish. A command already holding the bus lock runs to
// completion first; only its response write fails.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// Close stops accepting and closes every connection without waiting.
func (s *Server) Close() error {
	s.closeAll()
	return nil
}

func (s *Server) closeAll() {
	s.inShutdown.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	for ln := range s.listeners {
		_ = (*ln).Close()
	}
	for sc := range s.conns {
		_ = sc.rwc.Close()
	}
}

// ActiveConnections returns the number of connections being served
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
