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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:paralleltest // Reads process-wide counters
func TestMetrics_Dispatch(t *testing.T) {
	d, bus := newTestDispatcher(t, 2)
	bus.Poke(1, 0, []byte{1, 2, 3})

	okBefore := testutil.ToFloat64(commandsTotal.WithLabelValues("read", "success"))
	failBefore := testutil.ToFloat64(commandsTotal.WithLabelValues("write", "failure"))
	bytesBefore := testutil.ToFloat64(busBytes.WithLabelValues("mock", "read"))
	txFailBefore := testutil.ToFloat64(busTransactions.WithLabelValues("mock", "write", "false"))

	d.Dispatch(ReadCommand{Chip: 1, Register: 0, Length: 3})
	bus.FailAt(3, nil)
	d.Dispatch(WriteCommand{Chip: 1, Register: 0, Data: []byte{9}})

	assert.InDelta(t, okBefore+1, testutil.ToFloat64(commandsTotal.WithLabelValues("read", "success")), 0)
	assert.InDelta(t, failBefore+1, testutil.ToFloat64(commandsTotal.WithLabelValues("write", "failure")), 0)
	assert.InDelta(t, bytesBefore+3, testutil.ToFloat64(busBytes.WithLabelValues("mock", "read")), 0)
	assert.InDelta(t, txFailBefore+1, testutil.ToFloat64(busTransactions.WithLabelValues("mock", "write", "false")), 0)
}

//nolint:paralleltest // Reads process-wide counters
func TestMetrics_DecodeErrorReasons(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{err: NewDecodeError(0x42, 0, 1, ErrUnknownCommand), reason: "unknown_command"},
		{err: NewDecodeError(0x09, 20, 20, ErrLengthMismatch), reason: "length_mismatch"},
		{err: NewDecodeError(0x09, 1<<30, 7, ErrFrameTooLarge), reason: "frame_too_large"},
		{err: NewDecodeError(0x0a, 14, 14, ErrChipAddress), reason: "chip_address"},
	}

	for _, tt := range tests {
		before := testutil.ToFloat64(decodeErrors.WithLabelValues(tt.reason))
		recordDecodeError(tt.err)
		assert.InDelta(t, before+1, testutil.ToFloat64(decodeErrors.WithLabelValues(tt.reason)), 0, tt.reason)
	}
}

func TestRegisterMetrics_Idempotent(t *testing.T) {
	t.Parallel()
	require.NotPanics(t, func() {
		RegisterMetrics()
		RegisterMetrics()
	})
}
