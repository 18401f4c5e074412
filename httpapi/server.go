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

// Package httpapi exposes the register bus over HTTP for browser tools:
// raw register reads and writes, typed parameter access and Prometheus
// metrics. Every request goes through the same Dispatcher as the TCP
// server, so HTTP and SigmaStudio traffic never interleave on the bus.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/internal/hexutil"
	"github.com/ZaparooProject/go-sigmatcp/paramfmt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// DefaultChip is the IC number used when a request names none.
const DefaultChip = 1

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Option configures a Server
type Option func(*Server) error

// WithLogger sets the request logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) error {
		s.logger = l
		return nil
	}
}

// WithDefaultChip sets the chip used when a request has no chip parameter.
func WithDefaultChip(chip uint8) Option {
	return func(s *Server) error {
		s.chip = chip
		return nil
	}
}

// WithCORSOrigins restricts cross-origin requests. With no origins every
// origin is allowed, as the embedded web UI is often served from a
// different host than the bridge.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) error {
		s.origins = append([]string(nil), origins...)
		return nil
	}
}

// Server serves the HTTP API.
type Server struct {
	dispatcher *sigmatcp.Dispatcher
	router     *gin.Engine
	logger     zerolog.Logger
	origins    []string
	chip       uint8
}

// New builds the router. The dispatcher is shared, not owned.
func New(d *sigmatcp.Dispatcher, opts ...Option) (*Server, error) {
	if d == nil {
		return nil, errors.New("http api requires a dispatcher")
	}
	s := &Server{
		dispatcher: d,
		logger:     sigmatcp.Logger().With().Str("component", "http").Logger(),
		chip:       DefaultChip,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply http option: %w", err)
		}
	}

	RegisterMetrics()
	sigmatcp.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(requestMetrics())
	r.Use(cors.New(s.corsConfig()))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	s.router = r
	s.routes()
	return s, nil
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(s.origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.origins
	}
	return cfg
}

func (s *Server) routes() {
	s.router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"bus":    string(s.dispatcher.BusType()),
			"chunk":  s.dispatcher.ChunkSize(),
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/read", s.handleRead)
	s.router.GET("/write", s.handleWrite)
	s.router.POST("/write", s.handleWrite)
	s.router.GET("/param", s.handleParam)
	s.router.GET("/param/set", s.handleParamSet)
	s.router.POST("/param", s.handleParamSet)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http api shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http api: %w", err)
	}
	return nil
}

// param looks up key in the query string, then in a POST form body.
func param(c *gin.Context, key string) (string, bool) {
	if v, ok := c.GetQuery(key); ok {
		return v, true
	}
	return c.GetPostForm(key)
}

type target struct {
	chip     uint8
	register uint16
}

func (s *Server) parseTarget(c *gin.Context) (target, error) {
	raw, ok := param(c, "addr")
	if !ok {
		return target{}, errors.New("missing addr parameter")
	}
	register, err := hexutil.ParseUint(raw, 16)
	if err != nil {
		return target{}, fmt.Errorf("invalid addr parameter: %w", err)
	}

	t := target{chip: s.chip, register: uint16(register)}
	if raw, ok := param(c, "chip"); ok {
		chip, err := hexutil.ParseUint(raw, 7)
		if err != nil {
			return target{}, fmt.Errorf("invalid chip parameter: %w", err)
		}
		t.chip = uint8(chip)
	}
	return t, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// busFailure reports a failed command. Validation failures are the
// caller's fault; everything else is the bus.
func busFailure(c *gin.Context, op string, err error) {
	status := http.StatusBadGateway
	if sigmatcp.GetErrorType(err) == sigmatcp.ErrorTypeValidation {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": fmt.Sprintf("failed to %s: %v", op, err)})
}

func (s *Server) read(t target, n int) sigmatcp.ReadResult {
	resp := s.dispatcher.Dispatch(sigmatcp.ReadCommand{Chip: t.chip, Register: t.register, Length: n})
	result, _ := resp.(sigmatcp.ReadResult)
	return result
}

func (s *Server) write(t target, data []byte) sigmatcp.Ack {
	resp := s.dispatcher.Dispatch(sigmatcp.WriteCommand{Chip: t.chip, Register: t.register, Data: data})
	ack, _ := resp.(sigmatcp.Ack)
	return ack
}

// handleRead answers GET /read?addr=&len=[&chip=]
func (s *Server) handleRead(c *gin.Context) {
	t, err := s.parseTarget(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	raw, ok := param(c, "len")
	if !ok {
		badRequest(c, errors.New("missing len parameter"))
		return
	}
	n, err := hexutil.ParseUint(raw, 32)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid len parameter: %w", err))
		return
	}

	result := s.read(t, int(n))
	if !result.Succeeded() {
		busFailure(c, "read", result.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"addr": hexutil.Addr(t.register),
		"len":  len(result.Data),
		"data": hexutil.List(result.Data),
	})
}

// handleWrite answers /write?addr=&data=<hex>[&chip=]
func (s *Server) handleWrite(c *gin.Context) {
	t, err := s.parseTarget(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	raw, ok := param(c, "data")
	if !ok {
		badRequest(c, errors.New("missing data parameter"))
		return
	}
	data, err := hexutil.ParseBytes(raw)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid data parameter: %w", err))
		return
	}
	if len(data) == 0 {
		badRequest(c, errors.New("empty data parameter"))
		return
	}

	ack := s.write(t, data)
	if !ack.Succeeded() {
		busFailure(c, "write", ack.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"addr":         hexutil.Addr(t.register),
		"data_written": hexutil.List(data),
		"length":       len(data),
	})
}

func parseFormatUnit(c *gin.Context) (paramfmt.Format, paramfmt.Unit, error) {
	format := paramfmt.Fixed824
	if raw, ok := param(c, "format"); ok {
		f, err := paramfmt.ParseFormat(raw)
		if err != nil {
			return 0, 0, err //nolint:wrapcheck // names the bad value
		}
		format = f
	}
	unit, err := paramfmt.ParseUnit(c.DefaultQuery("unit", c.PostForm("unit")))
	if err != nil {
		return 0, 0, err //nolint:wrapcheck // names the bad value
	}
	return format, unit, nil
}

// handleParam answers GET /param?addr=[&format=][&unit=][&chip=]
func (s *Server) handleParam(c *gin.Context) {
	t, err := s.parseTarget(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	format, unit, err := parseFormatUnit(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	result := s.read(t, paramfmt.WordSize)
	if !result.Succeeded() {
		busFailure(c, "read", result.Err)
		return
	}
	raw, err := paramfmt.Decode(format, result.Data)
	if err != nil {
		busFailure(c, "decode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"addr":   hexutil.Addr(t.register),
		"format": format.String(),
		"unit":   unit.String(),
		"raw":    hexutil.List(result.Data),
		"value":  paramfmt.FormatValue(unit.FromRaw(raw)),
	})
}

// handleParamSet answers /param/set?addr=&value=[&format=][&unit=][&chip=]
func (s *Server) handleParamSet(c *gin.Context) {
	t, err := s.parseTarget(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	format, unit, err := parseFormatUnit(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rawValue, ok := param(c, "value")
	if !ok {
		badRequest(c, errors.New("missing value parameter"))
		return
	}
	value, err := strconv.ParseFloat(rawValue, 64)
	if err != nil {
		badRequest(c, fmt.Errorf("invalid value parameter: %w", err))
		return
	}
	word, err := paramfmt.Encode(format, unit.ToRaw(value))
	if err != nil {
		badRequest(c, err)
		return
	}

	ack := s.write(t, word)
	if !ack.Succeeded() {
		busFailure(c, "write", ack.Err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"addr":         hexutil.Addr(t.register),
		"format":       format.String(),
		"value":        paramfmt.FormatValue(value),
		"data_written": hexutil.List(word),
	})
}
