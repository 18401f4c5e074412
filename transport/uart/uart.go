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

// Package uart serves the SigmaStudio protocol over a serial link, for
// hosts that reach the bridge through a USB serial adapter instead of
// TCP. Frames are identical to the TCP ones.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	sigmatcp "github.com/ZaparooProject/go-sigmatcp"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaud is the rate most USB serial adapters run reliably.
	DefaultBaud = 115200

	// reopenDelay is the pause before reopening a port after an error.
	reopenDelay = 500 * time.Millisecond
)

// Opener opens a named port at a baud rate
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

// OpenPort opens a serial port in 8N1 mode.
func OpenPort(name string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", name, err)
	}

	// Drop anything queued before we were listening
	_ = port.ResetInputBuffer()
	return port, nil
}

// Endpoint serves one serial port with a sigmatcp.Server.
type Endpoint struct {
	server *sigmatcp.Server
	open   Opener
	logger zerolog.Logger
	name   string
	baud   int
}

// NewEndpoint creates an endpoint for the named port. A nil open uses
// OpenPort.
func NewEndpoint(server *sigmatcp.Server, name string, baud int, open Opener) (*Endpoint, error) {
	if server == nil {
		return nil, errors.New("uart endpoint requires a server")
	}
	if name == "" {
		return nil, errors.New("uart endpoint requires a port name")
	}
	if open == nil {
		open = OpenPort
	}
	return &Endpoint{
		server: server,
		open:   open,
		name:   name,
		baud:   baud,
		logger: sigmatcp.Logger().With().Str("component", "uart").Str("port", name).Logger(),
	}, nil
}

// Serve serves the port until ctx is cancelled or the server shuts down.
// A serial link has no connection boundaries, so after a malformed frame
// or a vanished adapter the port is closed and reopened, which also
// discards the rest of the bad frame.
func (e *Endpoint) Serve(ctx context.Context) error {
	for {
		port, err := e.open(e.name, e.baud)
		if err != nil {
			e.logger.Warn().Err(err).Msg("open failed")
		} else {
			e.logger.Info().Int("baud", e.baud).Msg("serving serial port")
			err = e.server.ServeConn(ctx, port, "uart:"+e.name)
			switch {
			case errors.Is(err, sigmatcp.ErrServerClosed):
				return err
			case err != nil && ctx.Err() == nil:
				e.logger.Warn().Err(err).Msg("serial session ended, reopening")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reopenDelay):
		}
	}
}

// PortInfo describes a serial port on the host
type PortInfo struct {
	Name         string
	VID          string
	PID          string
	SerialNumber string
	Product      string
	IsUSB        bool
}

// String returns the port name with its USB identity, if any
func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	return fmt.Sprintf("%s (%s:%s %s)", p.Name, p.VID, p.PID, p.Product)
}

// ListPorts lists the serial ports on the host with USB details where the
// platform reports them.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		names, listErr := serial.GetPortsList()
		if listErr != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", errors.Join(err, listErr))
		}
		ports := make([]PortInfo, len(names))
		for i, name := range names {
			ports[i] = PortInfo{Name: name}
		}
		return ports, nil
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
