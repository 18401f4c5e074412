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
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-sigmatcp/internal/hexutil"
	"github.com/ZaparooProject/go-sigmatcp/internal/syncutil"
)

// Capture writes every byte received and sent on served connections to a
// text log, one line per read or write:
//
//	15:04:05.000 #3 RX 0A 00 00 00 0E 01 00 00 00 04 00 1A 00 00
//
// Captures taken against SigmaStudio are the reference for wire
// compatibility.
type Capture struct {
	w    io.Writer
	file *os.File
	path string
	mu   syncutil.Mutex
}

// OpenCapture creates a capture file. An empty path picks
// sigmatcp_<timestamp>.cap in the current directory.
func OpenCapture(path string) (*Capture, error) {
	if path == "" {
		path = fmt.Sprintf("sigmatcp_%s.cap", time.Now().Format("20060102_150405"))
	}

	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to create capture: %w", err)
	}

	c := &Capture{w: f, file: f, path: path}
	writeCaptureHeader(f)
	return c, nil
}

// NewCapture writes capture lines to w. The caller owns w.
func NewCapture(w io.Writer) *Capture {
	return &Capture{w: w}
}

// Path returns the capture file path, or "" for writer-backed captures
func (c *Capture) Path() string {
	return c.path
}

// Record appends one line for data moving in dir on connection conn.
func (c *Capture) Record(conn uint64, dir TraceDirection, data []byte) {
	if c == nil || len(data) == 0 {
		return
	}
	line := fmt.Sprintf("%s #%d %s %s\n", time.Now().Format("15:04:05.000"), conn, dir, hexutil.Dump(data))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w != nil {
		_, _ = io.WriteString(c.w, line)
	}
}

// Note appends a free-form line, used for connection open and close.
func (c *Capture) Note(conn uint64, format string, args ...any) {
	if c == nil {
		return
	}
	line := fmt.Sprintf("%s #%d -- %s\n", time.Now().Format("15:04:05.000"), conn, fmt.Sprintf(format, args...))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w != nil {
		_, _ = io.WriteString(c.w, line)
	}
}

// Close writes a footer and closes the file, if the capture owns one.
func (c *Capture) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		c.w = nil
		return nil
	}

	_, _ = fmt.Fprintf(c.file, "\n%s === Capture ended ===\n", time.Now().Format("15:04:05.000"))
	err := c.file.Close()
	c.file = nil
	c.w = nil
	if err != nil {
		return fmt.Errorf("failed to close capture: %w", err)
	}
	return nil
}

func writeCaptureHeader(w io.Writer) {
	_, _ = fmt.Fprint(w, "=== SigmaTCP Wire Capture ===\n")
	_, _ = fmt.Fprintf(w, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(w, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(w, "=============================\n\n")
}
