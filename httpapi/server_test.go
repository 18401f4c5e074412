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

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestAPI(t *testing.T, opts ...Option) (*Server, *sigmatcp.MockBus) {
	t.Helper()
	bus := sigmatcp.NewMockBus(16)
	d, err := sigmatcp.NewDispatcher(bus, sigmatcp.WithDispatchLogger(zerolog.Nop()))
	require.NoError(t, err)
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	s, err := New(d, opts...)
	require.NoError(t, err)
	return s, bus
}

func do(t *testing.T, s *Server, method, target string, body url.Values) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(body.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestRoot(t *testing.T) {
	t.Parallel()

	s, _ := newTestAPI(t)
	rec, _ := do(t, s, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestAPI(t)
	rec, out := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mock", out["bus"])
	assert.InDelta(t, 16, out["chunk"], 0)
}

func TestRead(t *testing.T) {
	t.Parallel()

	s, bus := newTestAPI(t)
	bus.Poke(1, 0x003b, []byte{0x01, 0x02, 0x03, 0x04})

	rec, out := do(t, s, http.MethodGet, "/read?addr=0x3B&len=4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0x003b", out["addr"])
	assert.InDelta(t, 4, out["len"], 0)
	assert.Equal(t, "[0x01, 0x02, 0x03, 0x04]", out["data"])
}

func TestRead_ChipParameter(t *testing.T) {
	t.Parallel()

	s, bus := newTestAPI(t)
	bus.Poke(2, 0x0010, []byte{0xAA})

	_, out := do(t, s, http.MethodGet, "/read?addr=16&len=1&chip=2", nil)
	assert.Equal(t, "[0xaa]", out["data"])

	txs := bus.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, uint8(2), txs[0].Chip)
}

func TestDefaultChip(t *testing.T) {
	t.Parallel()

	s, bus := newTestAPI(t, WithDefaultChip(0x3b))
	rec, _ := do(t, s, http.MethodGet, "/read?addr=0&len=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint8(0x3b), bus.Transactions()[0].Chip)
}

func TestWrite(t *testing.T) {
	t.Parallel()

	s, bus := newTestAPI(t)
	rec, out := do(t, s, http.MethodGet, "/write?addr=0x3B&data=01020304", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "0x003b", out["addr"])
	assert.Equal(t, "[0x01, 0x02, 0x03, 0x04]", out["data_written"])
	assert.InDelta(t, 4, out["length"], 0)
	assert.Equal(t, []byte{1, 2, 3, 4}, bus.Peek(1, 0x3b, 4))
}

func TestWrite_PostForm(t *testing.T) {
	t.Parallel()

	s, bus := newTestAPI(t)
	rec, _ := do(t, s, http.MethodPost, "/write", url.Values{"addr": {"0x0100"}, "data": {"de:ad"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0xDE, 0xAD}, bus.Peek(1, 0x0100, 2))
}

func TestRequestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		want   string
		status int
	}{
		{name: "read without addr", target: "/read?len=4", status: http.StatusBadRequest, want: "missing addr"},
		{name: "read without len", target: "/read?addr=1", status: http.StatusBadRequest, want: "missing len"},
		{name: "bad addr", target: "/read?addr=zz&len=1", status: http.StatusBadRequest, want: "invalid addr"},
		{name: "addr too wide", target: "/read?addr=0x10000&len=1", status: http.StatusBadRequest, want: "invalid addr"},
		{name: "chip too wide", target: "/read?addr=1&len=1&chip=0x80", status: http.StatusBadRequest, want: "invalid chip"},
		{name: "range overflow", target: "/read?addr=0xFFFF&len=4", status: http.StatusBadRequest, want: "failed to read"},
		{name: "write without data", target: "/write?addr=1", status: http.StatusBadRequest, want: "missing data"},
		{name: "odd hex", target: "/write?addr=1&data=123", status: http.StatusBadRequest, want: "invalid data"},
		{name: "empty data", target: "/write?addr=1&data=", status: http.StatusBadRequest, want: "empty data"},
		{name: "bad format", target: "/param?addr=1&format=5.23", status: http.StatusBadRequest, want: "unknown parameter format"},
		{name: "bad unit", target: "/param?addr=1&unit=volts", status: http.StatusBadRequest, want: "unknown unit"},
		{name: "set without value", target: "/param/set?addr=1", status: http.StatusBadRequest, want: "missing value"},
		{name: "set bad value", target: "/param/set?addr=1&value=loud", status: http.StatusBadRequest, want: "invalid value"},
		{name: "set out of range", target: "/param/set?addr=1&value=200", status: http.StatusBadRequest, want: "out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestAPI(t)
			rec, out := do(t, s, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, out["error"], tt.want)
		})
	}
}

func TestBusFailure(t *testing.T) {
	t.Parallel()

	s, bus := newTestAPI(t)
	bus.FailAt(1, sigmatcp.ErrNoDevice)

	rec, out := do(t, s, http.MethodGet, "/read?addr=0x3b&len=4", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, out["error"], "failed to read")
	assert.Contains(t, out["error"], "no device acknowledged")

	rec, out = do(t, s, http.MethodGet, "/write?addr=0x3b&data=00", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, out["error"], "failed to write")
}

func TestParam(t *testing.T) {
	t.Parallel()

	s, bus := newTestAPI(t)
	bus.Poke(1, 0x0043, []byte{0x00, 0x80, 0x00, 0x00})

	rec, out := do(t, s, http.MethodGet, "/param?addr=0x43", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "8.24", out["format"])
	assert.Equal(t, "0.5", out["value"])
	assert.Equal(t, "[0x00, 0x80, 0x00, 0x00]", out["raw"])

	_, out = do(t, s, http.MethodGet, "/param?addr=0x43&unit=db", nil)
	assert.Equal(t, "-6.021", out["value"])
	assert.Equal(t, "dB", out["unit"])

	_, out = do(t, s, http.MethodGet, "/param?addr=0x43&format=int32.0", nil)
	assert.Equal(t, "8388608", out["value"])
}

func TestParam_Silence(t *testing.T) {
	t.Parallel()

	s, _ := newTestAPI(t)
	rec, out := do(t, s, http.MethodGet, "/param?addr=0x10&unit=db", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-Inf", out["value"])
}

func TestParamSet(t *testing.T) {
	t.Parallel()

	s, bus := newTestAPI(t)
	rec, out := do(t, s, http.MethodGet, "/param/set?addr=0x43&value=0.25", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[0x00, 0x40, 0x00, 0x00]", out["data_written"])
	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0x00}, bus.Peek(1, 0x43, 4))

	rec, _ = do(t, s, http.MethodGet, "/param/set?addr=0x43&value=-20&unit=dB", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// 0.1 in 8.24 is 0x0019999A truncated to 0x00199999
	assert.Equal(t, []byte{0x00, 0x19, 0x99, 0x99}, bus.Peek(1, 0x43, 4))

	rec, _ = do(t, s, http.MethodPost, "/param", url.Values{"addr": {"0x44"}, "value": {"7"}, "format": {"28.0"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte{0, 0, 0, 7}, bus.Peek(1, 0x44, 4))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	s, _ := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/read?addr=1&len=1", http.NoBody)
	req.Header.Set("Origin", "http://192.168.71.2")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	t.Parallel()

	s, _ := newTestAPI(t, WithCORSOrigins("http://dsp.local"))
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestAPI(t)
	do(t, s, http.MethodGet, "/", nil)
	rec, _ := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sigmatcp_http_requests_total")
}

func TestNew_RequiresDispatcher(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)
}

func TestListenAndServe_Shutdown(t *testing.T) {
	t.Parallel()

	s, _ := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("http api did not shut down")
	}
}
