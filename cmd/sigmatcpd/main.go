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

// Command sigmatcpd bridges SigmaStudio's TCP/IP channel to a SigmaDSP on
// an I2C or SPI bus, with an optional HTTP register API and serial
// endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/ZaparooProject/go-sigmatcp/config"
	"github.com/ZaparooProject/go-sigmatcp/detection"
	i2cdetect "github.com/ZaparooProject/go-sigmatcp/detection/i2c"
	_ "github.com/ZaparooProject/go-sigmatcp/detection/spi"
	_ "github.com/ZaparooProject/go-sigmatcp/detection/uart"
	"github.com/ZaparooProject/go-sigmatcp/httpapi"
	"github.com/ZaparooProject/go-sigmatcp/internal/hexutil"
	"github.com/ZaparooProject/go-sigmatcp/transport/i2c"
	"github.com/ZaparooProject/go-sigmatcp/transport/memory"
	"github.com/ZaparooProject/go-sigmatcp/transport/spi"
	"github.com/ZaparooProject/go-sigmatcp/transport/uart"
	"github.com/gin-gonic/gin"
	"periph.io/x/conn/v3/physic"
)

// shutdownTimeout bounds how long open connections get to finish.
const shutdownTimeout = 5 * time.Second

type options struct {
	configPath string
	listen     string
	http       string
	bus        string
	device     string
	capture    string
	uart       string
	debug      bool
	scan       bool
	listPorts  bool
}

func parseFlags(args []string) (*options, *flag.FlagSet, error) {
	o := &options{}
	fs := flag.NewFlagSet("sigmatcpd", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "TOML configuration file")
	fs.StringVar(&o.listen, "listen", "", "TCP listen address (default :8086)")
	fs.StringVar(&o.http, "http", "", "HTTP API listen address (disabled if empty)")
	fs.StringVar(&o.bus, "bus", "", "Bus type: i2c, spi or memory")
	fs.StringVar(&o.device, "device", "", "Bus device, e.g. /dev/i2c-1 or SPI0.0")
	fs.StringVar(&o.capture, "capture", "", "Write a hex capture of every frame to this file")
	fs.StringVar(&o.uart, "uart", "", "Also serve the protocol on this serial port")
	fs.BoolVar(&o.debug, "debug", false, "Enable debug output")
	fs.BoolVar(&o.scan, "scan", false, "Scan the I2C bus, print responding addresses and exit")
	fs.BoolVar(&o.listPorts, "list-ports", false, "List buses and serial ports and exit")
	if err := fs.Parse(args); err != nil {
		return nil, fs, fmt.Errorf("parse flags: %w", err)
	}
	return o, fs, nil
}

// loadConfig reads the file and environment, then applies flags that were
// set explicitly.
func loadConfig(o *options, fs *flag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err //nolint:wrapcheck // already names the file
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = o.listen
		case "http":
			cfg.HTTPListen = o.http
		case "bus":
			cfg.Bus.Type = o.bus
		case "device":
			cfg.Bus.Device = o.device
		case "capture":
			cfg.Capture = o.capture
		case "uart":
			cfg.UART.Port = o.uart
			if cfg.UART.Baud == 0 {
				cfg.UART.Baud = config.DefaultBaud
			}
		case "debug":
			if o.debug {
				cfg.LogLevel = "debug"
			}
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) {
	lvl, err := sigmatcp.ParseLevel(cfg.LogLevel)
	if err != nil {
		return
	}
	sigmatcp.SetLogger(sigmatcp.Logger().Level(lvl))
}

// openBus opens the configured bus backend.
func openBus(cfg config.Config) (sigmatcp.Bus, error) {
	switch cfg.Bus.Type {
	case config.BusI2C:
		var opts []i2c.Option
		if cfg.Bus.SpeedHz > 0 {
			opts = append(opts, i2c.WithSpeed(physic.Frequency(cfg.Bus.SpeedHz)*physic.Hertz))
		}
		if cfg.Bus.MaxTransfer > 0 {
			opts = append(opts, i2c.WithMaxTransfer(cfg.Bus.MaxTransfer))
		}
		return i2c.Open(cfg.Bus.Device, opts...) //nolint:wrapcheck // names the bus
	case config.BusSPI:
		var opts []spi.Option
		if cfg.Bus.SpeedHz > 0 {
			opts = append(opts, spi.WithSpeed(physic.Frequency(cfg.Bus.SpeedHz)*physic.Hertz))
		}
		if cfg.Bus.MaxTransfer > 0 {
			opts = append(opts, spi.WithMaxTransfer(cfg.Bus.MaxTransfer))
		}
		return spi.Open(cfg.Bus.Device, opts...) //nolint:wrapcheck // names the bus
	case config.BusMemory:
		var opts []memory.Option
		if cfg.Bus.MaxTransfer > 0 {
			opts = append(opts, memory.WithMaxTransfer(cfg.Bus.MaxTransfer))
		}
		return memory.New(opts...) //nolint:wrapcheck // options already validated
	default:
		return nil, fmt.Errorf("unsupported bus type: %s", cfg.Bus.Type)
	}
}

// allAddresses lists every non-reserved 7-bit address.
func allAddresses() []uint8 {
	addrs := make([]uint8, 0, i2cdetect.LastAddress-i2cdetect.FirstAddress+1)
	for a := uint8(i2cdetect.FirstAddress); a <= i2cdetect.LastAddress; a++ {
		addrs = append(addrs, a)
	}
	return addrs
}

// prepareBus runs the startup scan and device wait on buses that can probe.
func prepareBus(ctx context.Context, cfg config.Config, bus sigmatcp.Bus) error {
	prober, ok := bus.(i2cdetect.Prober)
	if !ok {
		return nil
	}
	logger := sigmatcp.Logger()

	if cfg.Bus.Scan {
		found := i2cdetect.Scan(ctx, prober)
		if len(found) == 0 {
			logger.Warn().Msg("no I2C devices found")
		}
		for _, addr := range found {
			logger.Info().Str("addr", fmt.Sprintf("0x%02x", addr)).Msg("found I2C device")
		}
	}

	if cfg.Bus.WaitForDevice > 0 {
		addrs := cfg.WaitAddresses()
		if len(addrs) == 0 {
			addrs = allAddresses()
		}
		retry := sigmatcp.DeviceWaitRetryConfig(cfg.Bus.WaitForDevice)
		addr, err := i2cdetect.WaitFor(ctx, prober, addrs, retry)
		if err != nil {
			return fmt.Errorf("no DSP answered within %v: %w", cfg.Bus.WaitForDevice, err)
		}
		logger.Info().Str("addr", fmt.Sprintf("0x%02x", addr)).Msg("DSP is ready")
	}
	return nil
}

func defaultChip(cfg config.Config) uint8 {
	if len(cfg.Bus.Chips) > 0 {
		return cfg.Bus.Chips[0].IC
	}
	return httpapi.DefaultChip
}

// runScan prints every responding I2C address.
func runScan(ctx context.Context, cfg config.Config, out io.Writer) error {
	bus, err := i2c.Open(cfg.Bus.Device)
	if err != nil {
		return err //nolint:wrapcheck // names the bus
	}
	defer func() { _ = bus.Close() }()

	found := i2cdetect.Scan(ctx, bus)
	_, _ = fmt.Fprintf(out, "%s: %d device(s)\n", bus.Name(), len(found))
	for _, addr := range found {
		_, _ = fmt.Fprintf(out, "  0x%02x\n", addr)
	}
	return nil
}

// runListPorts prints every detected bus and serial port.
func runListPorts(ctx context.Context, out io.Writer) error {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Probe
	opts.EnableCache = false

	devices, err := detection.DetectAll(ctx, &opts)
	if err != nil && !errors.Is(err, detection.ErrNoDevicesFound) {
		return fmt.Errorf("detection failed: %w", err)
	}
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(out, "No buses or serial ports found")
		return nil
	}
	for _, d := range devices {
		_, _ = fmt.Fprintf(out, "%-5s %-16s %s\n", d.Bus, d.Path, d.Name)
		if len(d.Addresses) > 0 {
			_, _ = fmt.Fprintf(out, "      chips: %s\n", hexutil.Format(d.Addresses))
		}
	}
	return nil
}

// serve runs every configured endpoint until ctx is cancelled or one of
// them fails.
func serve(ctx context.Context, cfg config.Config, bus sigmatcp.Bus) error {
	dispatcher, err := sigmatcp.NewDispatcher(bus, sigmatcp.WithChipMap(cfg.ChipMap()))
	if err != nil {
		_ = bus.Close()
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer func() { _ = dispatcher.Close() }()

	serverOpts := []sigmatcp.ServerOption{
		sigmatcp.WithMaxPayload(cfg.MaxPayload),
		sigmatcp.WithWriteAcks(cfg.WriteAcks),
	}
	if cfg.TCPUserTimeout > 0 {
		serverOpts = append(serverOpts, sigmatcp.WithTCPUserTimeout(cfg.TCPUserTimeout))
	}
	if cfg.Capture != "" {
		capture, err := sigmatcp.OpenCapture(cfg.Capture)
		if err != nil {
			return fmt.Errorf("failed to open capture file: %w", err)
		}
		defer func() { _ = capture.Close() }()
		serverOpts = append(serverOpts, sigmatcp.WithCapture(capture))
	}
	server, err := sigmatcp.NewServer(dispatcher, serverOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	start := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, sigmatcp.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	if cfg.Listen != "" {
		start("tcp", func() error { return server.ListenAndServe(ctx, cfg.Listen) })
	}
	if cfg.HTTPListen != "" {
		api, err := httpapi.New(dispatcher, httpapi.WithDefaultChip(defaultChip(cfg)))
		if err != nil {
			return fmt.Errorf("failed to create http api: %w", err)
		}
		start("http", func() error { return api.ListenAndServe(ctx, cfg.HTTPListen) })
	}
	if cfg.UART.Port != "" {
		endpoint, err := uart.NewEndpoint(server, cfg.UART.Port, cfg.UART.Baud, nil)
		if err != nil {
			return fmt.Errorf("failed to create uart endpoint: %w", err)
		}
		start("uart", func() error { return endpoint.Serve(ctx) })
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sigmatcp.Logger().Warn().Err(err).Msg("connections did not close in time")
	}
	wg.Wait()
	return runErr
}

func run(ctx context.Context, o *options, fs *flag.FlagSet, out io.Writer) error {
	cfg, err := loadConfig(o, fs)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	switch {
	case o.listPorts:
		return runListPorts(ctx, out)
	case o.scan:
		return runScan(ctx, cfg, out)
	}

	bus, err := openBus(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s bus: %w", cfg.Bus.Type, err)
	}
	if err := prepareBus(ctx, cfg, bus); err != nil {
		_ = bus.Close()
		return err
	}

	sigmatcp.Logger().Info().
		Str("bus", cfg.Bus.Type).
		Str("device", cfg.Bus.Device).
		Str("listen", cfg.Listen).
		Str("http", cfg.HTTPListen).
		Str("uart", cfg.UART.Port).
		Bool("write_acks", cfg.WriteAcks).
		Msg("starting bridge")
	return serve(ctx, cfg, bus)
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	o, fs, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o, fs, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
