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
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{input: "debug", want: zerolog.DebugLevel},
		{input: " WARN ", want: zerolog.WarnLevel},
		{input: "trace", want: zerolog.TraceLevel},
		{input: "", wantErr: true},
		{input: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewConsoleLogger(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var buf bytes.Buffer
	l := NewConsoleLogger(&buf, "sigmatcpd")
	l.Info().Str("addr", ":8086").Msg("listening")

	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "listening")
	assert.Contains(t, out, "app=sigmatcpd")
	assert.Contains(t, out, "addr=:8086")
}

//nolint:paralleltest // Mutates the package logger
func TestSetDebugEnabled(t *testing.T) {
	saved := Logger()
	defer SetLogger(*saved)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	Logger().Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	SetDebugEnabled(true)
	Logger().Debug().Msg("shown")
	assert.Contains(t, buf.String(), "shown")

	SetDebugEnabled(false)
	buf.Reset()
	Logger().Debug().Msg("hidden again")
	assert.Empty(t, buf.String())
}

//nolint:paralleltest // Mutates the package logger
func TestLogger_ReturnsCopy(t *testing.T) {
	saved := Logger()
	defer SetLogger(*saved)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l := Logger()
	*l = l.Level(zerolog.Disabled)
	l.Info().Msg("dropped")
	Logger().Info().Msg("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

//nolint:paralleltest // Uses t.Setenv
func TestLevelFromEnv(t *testing.T) {
	t.Setenv(EnvDebug, "")
	t.Setenv("DEBUG", "")
	t.Setenv(EnvLogLevel, "error")
	assert.Equal(t, zerolog.ErrorLevel, levelFromEnv())

	t.Setenv(EnvLogLevel, "bogus")
	assert.Equal(t, zerolog.InfoLevel, levelFromEnv())

	t.Setenv(EnvDebug, "1")
	assert.Equal(t, zerolog.DebugLevel, levelFromEnv())
}
