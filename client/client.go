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

// Package client talks to a SigmaTCP server the way SigmaStudio does. It
// is used by sigmactl and by tests that exercise the server end to end.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/internal/frame"
	"github.com/ZaparooProject/go-sigmatcp/internal/syncutil"
	"github.com/rs/zerolog"
)

// Request errors
var (
	ErrReadFailed  = errors.New("server reported read failure")
	ErrWriteFailed = errors.New("server reported write failure")
	ErrClosed      = errors.New("client closed")
)

// DefaultTimeout bounds one request when the context has no deadline.
const DefaultTimeout = 5 * time.Second

// Option configures a Client
type Option func(*Client) error

// WithAcks sets whether the server answers writes. SigmaStudio's own
// server does not, in which case WriteRegisters returns once the frame is
// sent.
func WithAcks(enabled bool) Option {
	return func(c *Client) error {
		c.acks = enabled
		return nil
	}
}

// WithTimeout sets the per-request timeout used when the context has no
// deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithSafeload marks writes as safeload writes.
func WithSafeload(enabled bool) Option {
	return func(c *Client) error {
		c.safeload = enabled
		return nil
	}
}

// WithClientLogger sets the client logger
func WithClientLogger(l zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// Client sends requests over one connection. Requests are serialized:
// the protocol carries no request IDs, so responses match requests by
// order.
type Client struct {
	conn     io.ReadWriteCloser
	decoder  *Decoder
	pending  []Response
	logger   zerolog.Logger
	buf      []byte
	out      []byte
	timeout  time.Duration
	mu       syncutil.Mutex
	acks     bool
	safeload bool
	closed   bool
}

// New wraps an established connection.
func New(conn io.ReadWriteCloser, opts ...Option) (*Client, error) {
	if conn == nil {
		return nil, errors.New("client requires a connection")
	}
	c := &Client{
		conn:    conn,
		decoder: NewDecoder(0),
		logger:  sigmatcp.Logger().With().Str("component", "client").Logger(),
		buf:     make([]byte, frame.MediumBufferSize),
		timeout: DefaultTimeout,
		acks:    true,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply client option: %w", err)
		}
	}
	return c, nil
}

// Dial connects to addr, retrying refused connections per retry. A nil
// retry uses sigmatcp.DefaultRetryConfig.
func Dial(ctx context.Context, addr string, retry *sigmatcp.RetryConfig, opts ...Option) (*Client, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(frame.DefaultPort))
	}

	var conn net.Conn
	var dialer net.Dialer
	attempt := 0
	err := sigmatcp.RetryWithConfig(ctx, retry, func() error {
		attempt++
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			sigmatcp.Logger().Debug().Err(err).Int("attempt", attempt).Str("addr", addr).Msg("dial failed")
		}
		return err //nolint:wrapcheck // wrapped below
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c, err := New(conn, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// ReadRegisters reads n bytes starting at register address addr.
func (c *Client) ReadRegisters(ctx context.Context, chip uint8, addr uint16, n int) ([]byte, error) {
	if n < 0 || n > frame.DefaultMaxPayload {
		return nil, fmt.Errorf("read length %d out of range", n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.out = frame.AppendReadRequest(c.out[:0], chip, addr, uint32(n)) //nolint:gosec // checked above
	resp, err := c.roundTrip(ctx, true)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: chip %d addr 0x%04x len %d", ErrReadFailed, chip, addr, n)
	}
	if len(resp.Data) != n {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", sigmatcp.ErrShortTransfer, len(resp.Data), n)
	}
	return resp.Data, nil
}

// WriteRegisters writes data starting at register address addr.
func (c *Client) WriteRegisters(ctx context.Context, chip uint8, addr uint16, data []byte) error {
	if len(data) > frame.DefaultMaxPayload {
		return fmt.Errorf("write of %d bytes: %w", len(data), sigmatcp.ErrFrameTooLarge)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var safeload uint8
	if c.safeload {
		safeload = 1
	}
	c.out = frame.AppendWriteRequest(c.out[:0], safeload, 0, chip, addr, data)
	resp, err := c.roundTrip(ctx, c.acks)
	if err != nil {
		return err
	}
	if c.acks && !resp.OK() {
		return fmt.Errorf("%w: chip %d addr 0x%04x len %d", ErrWriteFailed, chip, addr, len(data))
	}
	return nil
}

// roundTrip sends c.out and, when wait is set, returns the next response.
func (c *Client) roundTrip(ctx context.Context, wait bool) (Response, error) {
	if c.closed {
		return Response{}, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if dc, ok := c.conn.(interface{ SetDeadline(time.Time) error }); ok {
		_ = dc.SetDeadline(deadline)
		stop := context.AfterFunc(ctx, func() { _ = dc.SetDeadline(time.Unix(1, 0)) })
		defer stop()
	}

	if _, err := c.conn.Write(c.out); err != nil {
		return Response{}, c.fail(ctx, "write", err)
	}
	if !wait {
		return Response{}, nil
	}

	for len(c.pending) == 0 {
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			resps, decErr := c.decoder.Feed(c.buf[:n])
			c.pending = append(c.pending, resps...)
			if decErr != nil {
				return Response{}, decErr
			}
		}
		if err != nil && len(c.pending) == 0 {
			return Response{}, c.fail(ctx, "read", err)
		}
	}

	resp := c.pending[0]
	c.pending = c.pending[1:]
	c.logger.Debug().
		Uint8("chip", resp.Chip).
		Uint16("addr", resp.Address).
		Uint8("status", resp.Status).
		Int("len", len(resp.Data)).
		Msg("response")
	return resp, nil
}

func (*Client) fail(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w", op, sigmatcp.ErrConnectionClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close client connection: %w", err)
	}
	return nil
}
