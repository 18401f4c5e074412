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

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ZaparooProject/go-sigmatcp/client"
	"github.com/ZaparooProject/go-sigmatcp/internal/hexutil"
)

// StressResult holds the outcome of a stress run.
type StressResult struct {
	ReportFile string
	Passed     int
	Failed     int
	Duration   time.Duration
}

// FailureReport contains everything needed to debug a failed cycle.
type FailureReport struct {
	Timestamp    time.Time  `json:"timestamp"`
	Host         string     `json:"host"`
	Operation    string     `json:"operation"`
	Error        string     `json:"error"`
	TestSize     string     `json:"test_size"`
	ExpectedHex  string     `json:"expected_hex,omitempty"`
	ActualHex    string     `json:"actual_hex,omitempty"`
	RegisterDump []string   `json:"register_dump,omitempty"`
	OperationLog []LogEntry `json:"operation_log"`
	Register     uint16     `json:"register"`
	Chip         uint8      `json:"chip"`
	Round        int        `json:"round"`
}

// LogEntry represents a single operation in the log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	DataHex   string    `json:"data_hex,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

// testSize is one of the three payload sizes per cycle
type testSize int

const (
	testSizeTiny   testSize = iota // 1-4 bytes
	testSizeMedium                 // half the range
	testSizeFull                   // the whole range
)

func (s testSize) String() string {
	switch s {
	case testSizeTiny:
		return "tiny"
	case testSizeMedium:
		return "medium"
	case testSizeFull:
		return "full"
	default:
		return "unknown"
	}
}

type stressRun struct {
	client *client.Client
	g      *globals
	out    io.Writer
	log    []LogEntry
	dir    string
	reg    uint16
	span   int
}

func (r *stressRun) record(op string, data []byte, err error) {
	entry := LogEntry{Timestamp: time.Now(), Operation: op, Success: err == nil}
	if len(data) > 0 {
		entry.DataHex = hexutil.Dump(data)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.log = append(r.log, entry)
}

// runStress writes random payloads of three sizes to a scratch register
// range and checks each reads back unchanged. The range is overwritten.
func runStress(ctx context.Context, c *client.Client, g *globals, rf *registerFlags, out io.Writer) error {
	reg, err := rf.register()
	if err != nil {
		return err
	}
	span, err := rf.count()
	if err != nil {
		return err
	}
	if span < 1 || int(reg)+span > 0x10000 {
		return fmt.Errorf("stress: range %s+%d leaves the register space", hexutil.Addr(reg), span)
	}

	r := &stressRun{client: c, g: g, out: out, dir: rf.report, reg: reg, span: span}
	result := &StressResult{}
	start := time.Now()

	_, _ = fmt.Fprintf(out, "Stress testing %s..%s on chip %d, %d round(s)\n",
		hexutil.Addr(reg), hexutil.Addr(reg+uint16(span-1)), g.chip, rf.rounds) //nolint:gosec // range checked

	for round := 1; round <= rf.rounds; round++ {
		for _, size := range []testSize{testSizeTiny, testSizeMedium, testSizeFull} {
			if ctx.Err() != nil {
				return ctx.Err() //nolint:wrapcheck // cancellation
			}
			if err := r.cycle(ctx, round, size, result); err != nil {
				result.Failed++
				result.Duration = time.Since(start)
				printStressSummary(out, result)
				return err
			}
			result.Passed++
		}
	}

	result.Duration = time.Since(start)
	printStressSummary(out, result)
	return nil
}

func (r *stressRun) cycle(ctx context.Context, round int, size testSize, result *StressResult) error {
	want := randomBytes(payloadSize(size, r.span))

	err := r.client.WriteRegisters(ctx, r.g.chip, r.reg, want)
	r.record("write "+size.String(), want, err)
	if err != nil {
		return r.fail(ctx, round, size, "write", err, want, nil, result)
	}

	got, err := r.client.ReadRegisters(ctx, r.g.chip, r.reg, len(want))
	r.record("read "+size.String(), got, err)
	if err != nil {
		return r.fail(ctx, round, size, "read", err, want, nil, result)
	}
	if !bytes.Equal(want, got) {
		err := fmt.Errorf("read back %d bytes differ from written", len(want))
		return r.fail(ctx, round, size, "verify", err, want, got, result)
	}

	_, _ = fmt.Fprintf(r.out, "  round %d %-6s %5d bytes ok\n", round, size, len(want))
	return nil
}

func (r *stressRun) fail(
	ctx context.Context, round int, size testSize, op string, err error, want, got []byte, result *StressResult,
) error {
	_, _ = fmt.Fprintf(r.out, "\n  [!] FAILURE at round %d %s %s: %v\n", round, size, op, err)

	report := &FailureReport{
		Timestamp:    time.Now(),
		Host:         r.g.host,
		Chip:         r.g.chip,
		Register:     r.reg,
		Round:        round,
		Operation:    op,
		TestSize:     size.String(),
		Error:        err.Error(),
		OperationLog: r.log,
	}
	if len(want) > 0 {
		report.ExpectedHex = hexutil.Dump(want)
	}
	if len(got) > 0 {
		report.ActualHex = hexutil.Dump(got)
	}
	if dump, dumpErr := r.client.ReadRegisters(ctx, r.g.chip, r.reg, r.span); dumpErr == nil {
		report.RegisterDump = formatRegisterDump(r.reg, dump)
	}

	filename, writeErr := writeFailureReport(r.dir, report)
	if writeErr != nil {
		_, _ = fmt.Fprintf(r.out, "  [!] Failed to write report: %v\n", writeErr)
	} else {
		_, _ = fmt.Fprintf(r.out, "  Report written to %s\n", filename)
		result.ReportFile = filename
	}
	return fmt.Errorf("stress %s failed: %w", op, err)
}

func payloadSize(size testSize, span int) int {
	var n int
	switch size {
	case testSizeTiny:
		n = randomInt(1, min(4, span))
	case testSizeMedium:
		n = span / 2
	case testSizeFull:
		n = span
	}
	return max(1, min(n, span))
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

// randomInt returns a random int in [low, high] inclusive
func randomInt(low, high int) int {
	if low >= high {
		return low
	}
	var b [4]byte
	_, _ = rand.Read(b[:])
	n := int(b[0])<<16 | int(b[1])<<8 | int(b[2])
	return low + n%(high-low+1)
}

func writeFailureReport(dir string, report *FailureReport) (string, error) {
	timestamp := report.Timestamp.Format("20060102_150405")
	filename := filepath.Join(dir, fmt.Sprintf("stress_failure_%04x_%s.json", report.Register, timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return filename, nil
}

// formatRegisterDump renders data as one 4-byte parameter word per line.
func formatRegisterDump(start uint16, data []byte) []string {
	const wordSize = 4
	lines := make([]string, 0, (len(data)+wordSize-1)/wordSize)
	for i := 0; i < len(data); i += wordSize {
		end := min(i+wordSize, len(data))
		lines = append(lines, fmt.Sprintf("%s: %s",
			hexutil.Addr(start+uint16(i)), hexutil.Dump(data[i:end]))) //nolint:gosec // bounded by the dump length
	}
	return lines
}

func printStressSummary(out io.Writer, result *StressResult) {
	status := "PASS"
	if result.Failed > 0 {
		status = "FAIL"
	}
	_, _ = fmt.Fprintf(out, "\n[%s] %d passed, %d failed in %s\n",
		status, result.Passed, result.Failed, result.Duration.Round(time.Millisecond))
	if result.ReportFile != "" {
		_, _ = fmt.Fprintf(out, "Report: %s\n", result.ReportFile)
	}
}
