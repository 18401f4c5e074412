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
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigmatcp",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Commands dispatched, by kind and result.",
		},
		[]string{"kind", "status"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sigmatcp",
			Subsystem: "dispatch",
			Name:      "command_duration_seconds",
			Help:      "Time from taking the bus lock to the last transaction of a command.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)
	busTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigmatcp",
			Subsystem: "bus",
			Name:      "transactions_total",
			Help:      "Bus transactions issued, by bus type, direction and success.",
		},
		[]string{"bus", "direction", "success"},
	)
	busBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigmatcp",
			Subsystem: "bus",
			Name:      "bytes_total",
			Help:      "Register bytes moved by successful transactions.",
		},
		[]string{"bus", "direction"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sigmatcp",
			Subsystem: "server",
			Name:      "decode_errors_total",
			Help:      "Connections closed because of a malformed frame.",
		},
		[]string{"reason"},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sigmatcp",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Connections currently being served.",
		},
	)
	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sigmatcp",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Connections accepted since start.",
		},
	)
)

// RegisterMetrics registers the package collectors with the default
// Prometheus registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			commandsTotal, commandDuration,
			busTransactions, busBytes,
			decodeErrors, connectionsActive, connectionsTotal,
		)
	})
}

func recordCommand(kind CommandKind, status Status, duration time.Duration) {
	commandsTotal.WithLabelValues(kind.String(), status.String()).Inc()
	commandDuration.WithLabelValues(kind.String()).Observe(duration.Seconds())
}

func recordTransaction(bus BusType, tx Transaction, err error) {
	busTransactions.WithLabelValues(string(bus), tx.Dir.String(), strconv.FormatBool(err == nil)).Inc()
	if err == nil {
		busBytes.WithLabelValues(string(bus), tx.Dir.String()).Add(float64(tx.Length))
	}
}

func recordDecodeError(err error) {
	reason := "other"
	switch {
	case errors.Is(err, ErrUnknownCommand):
		reason = "unknown_command"
	case errors.Is(err, ErrLengthMismatch):
		reason = "length_mismatch"
	case errors.Is(err, ErrFrameTooLarge):
		reason = "frame_too_large"
	case errors.Is(err, ErrChipAddress):
		reason = "chip_address"
	}
	decodeErrors.WithLabelValues(reason).Inc()
}
