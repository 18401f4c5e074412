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

// Command sigmactl reads and writes SigmaDSP registers through a running
// bridge, speaking the same protocol as SigmaStudio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/client"
	"github.com/ZaparooProject/go-sigmatcp/internal/hexutil"
	"github.com/ZaparooProject/go-sigmatcp/paramfmt"
)

const usage = `usage: sigmactl [global flags] <command> [flags]

commands:
  read   -addr A -len N          read N bytes starting at register A
  write  -addr A -data HEX       write bytes starting at register A
  param  -addr A [-format F]     read one parameter word
  set    -addr A -value V        write one parameter word
  stress -addr A -len N          write random data and verify it reads back

global flags:
`

type globals struct {
	host    string
	chip    uint8
	timeout time.Duration
	noAcks  bool
	debug   bool
}

func parseGlobals(args []string, stderr io.Writer) (*globals, []string, error) {
	g := &globals{}
	var chip string
	fs := flag.NewFlagSet("sigmactl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&g.host, "host", "localhost:8086", "Bridge address")
	fs.StringVar(&chip, "chip", "1", "IC number")
	fs.DurationVar(&g.timeout, "timeout", client.DefaultTimeout, "Per-request timeout")
	fs.BoolVar(&g.noAcks, "no-acks", false, "Do not wait for write acknowledgements")
	fs.BoolVar(&g.debug, "debug", false, "Enable debug output")
	if err := fs.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("parse flags: %w", err)
	}
	c, err := hexutil.ParseUint(chip, 7)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid -chip: %w", err)
	}
	g.chip = uint8(c)
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, nil, errors.New("missing command")
	}
	return g, fs.Args(), nil
}

// registerFlags holds the per-command flags, parsed by name.
type registerFlags struct {
	addr   string
	length string
	data   string
	format string
	unit   string
	value  string
	report string
	rounds int
}

func parseCommand(name string, args []string, stderr io.Writer) (*registerFlags, error) {
	rf := &registerFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&rf.addr, "addr", "", "Register address, decimal or 0x hex")
	switch name {
	case "read":
		fs.StringVar(&rf.length, "len", "4", "Number of bytes")
	case "write":
		fs.StringVar(&rf.data, "data", "", "Hex bytes to write")
	case "param":
		fs.StringVar(&rf.format, "format", "8.24", "Number format: 8.24, 28.0 or 32.0")
		fs.StringVar(&rf.unit, "unit", "", "Unit: linear or db")
	case "set":
		fs.StringVar(&rf.format, "format", "8.24", "Number format: 8.24, 28.0 or 32.0")
		fs.StringVar(&rf.unit, "unit", "", "Unit: linear or db")
		fs.StringVar(&rf.value, "value", "", "Value to write")
	case "stress":
		fs.StringVar(&rf.length, "len", "256", "Size of the scratch register range")
		fs.IntVar(&rf.rounds, "rounds", 10, "Number of test cycles")
		fs.StringVar(&rf.report, "report-dir", ".", "Directory for failure reports")
	default:
		return nil, fmt.Errorf("unknown command %q", name)
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse %s flags: %w", name, err)
	}
	if rf.addr == "" {
		return nil, fmt.Errorf("%s: -addr is required", name)
	}
	return rf, nil
}

func (rf *registerFlags) register() (uint16, error) {
	v, err := hexutil.ParseUint(rf.addr, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid -addr: %w", err)
	}
	return uint16(v), nil
}

func (rf *registerFlags) count() (int, error) {
	v, err := hexutil.ParseUint(rf.length, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid -len: %w", err)
	}
	return int(v), nil
}

func (rf *registerFlags) formatUnit() (paramfmt.Format, paramfmt.Unit, error) {
	f, err := paramfmt.ParseFormat(rf.format)
	if err != nil {
		return 0, 0, err //nolint:wrapcheck // names the bad value
	}
	u, err := paramfmt.ParseUnit(rf.unit)
	if err != nil {
		return 0, 0, err //nolint:wrapcheck // names the bad value
	}
	return f, u, nil
}

func runRead(ctx context.Context, c *client.Client, g *globals, rf *registerFlags, out io.Writer) error {
	reg, err := rf.register()
	if err != nil {
		return err
	}
	n, err := rf.count()
	if err != nil {
		return err
	}
	data, err := c.ReadRegisters(ctx, g.chip, reg, n)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s: %s\n", hexutil.Addr(reg), hexutil.Dump(data))
	return nil
}

func runWrite(ctx context.Context, c *client.Client, g *globals, rf *registerFlags, out io.Writer) error {
	reg, err := rf.register()
	if err != nil {
		return err
	}
	data, err := hexutil.ParseBytes(rf.data)
	if err != nil {
		return fmt.Errorf("invalid -data: %w", err)
	}
	if len(data) == 0 {
		return errors.New("write: -data is required")
	}
	if err := c.WriteRegisters(ctx, g.chip, reg, data); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "wrote %d byte(s) at %s\n", len(data), hexutil.Addr(reg))
	return nil
}

func runParam(ctx context.Context, c *client.Client, g *globals, rf *registerFlags, out io.Writer) error {
	reg, err := rf.register()
	if err != nil {
		return err
	}
	format, unit, err := rf.formatUnit()
	if err != nil {
		return err
	}
	word, err := c.ReadRegisters(ctx, g.chip, reg, paramfmt.WordSize)
	if err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	raw, err := paramfmt.Decode(format, word)
	if err != nil {
		return err //nolint:wrapcheck // names the problem
	}
	_, _ = fmt.Fprintf(out, "%s [%s] = %s%s\n",
		hexutil.Addr(reg), hexutil.Dump(word), paramfmt.FormatValue(unit.FromRaw(raw)), unit)
	return nil
}

func runSet(ctx context.Context, c *client.Client, g *globals, rf *registerFlags, out io.Writer) error {
	reg, err := rf.register()
	if err != nil {
		return err
	}
	format, unit, err := rf.formatUnit()
	if err != nil {
		return err
	}
	value, err := strconv.ParseFloat(rf.value, 64)
	if err != nil {
		return fmt.Errorf("invalid -value: %w", err)
	}
	word, err := paramfmt.Encode(format, unit.ToRaw(value))
	if err != nil {
		return err //nolint:wrapcheck // names the bad value
	}
	if err := c.WriteRegisters(ctx, g.chip, reg, word); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s <- [%s] (%s%s as %s)\n",
		hexutil.Addr(reg), hexutil.Dump(word), paramfmt.FormatValue(value), unit, format)
	return nil
}

func run(ctx context.Context, args []string, out, stderr io.Writer) error {
	g, rest, err := parseGlobals(args, stderr)
	if err != nil {
		return err
	}
	if g.debug {
		sigmatcp.SetDebugEnabled(true)
	}
	name := rest[0]
	rf, err := parseCommand(name, rest[1:], stderr)
	if err != nil {
		return err
	}

	opts := []client.Option{client.WithTimeout(g.timeout), client.WithAcks(!g.noAcks)}
	c, err := client.Dial(ctx, g.host, nil, opts...)
	if err != nil {
		return err //nolint:wrapcheck // names the address
	}
	defer func() { _ = c.Close() }()

	switch name {
	case "read":
		return runRead(ctx, c, g, rf, out)
	case "write":
		return runWrite(ctx, c, g, rf, out)
	case "param":
		return runParam(ctx, c, g, rf, out)
	case "set":
		return runSet(ctx, c, g, rf, out)
	default:
		return runStress(ctx, c, g, rf, out)
	}
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, args, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
