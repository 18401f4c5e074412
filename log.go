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
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Environment variables read when the package logger is first used
const (
	EnvDebug    = "SIGMATCP_DEBUG"
	EnvLogLevel = "SIGMATCP_LOG_LEVEL"
)

var errEmptyLevel = errors.New("empty log level")

var (
	loggerMu sync.RWMutex
	logger   = NewConsoleLogger(os.Stderr, "sigmatcp")
)

func init() {
	logger = logger.Level(levelFromEnv())
}

// levelFromEnv picks the default level: debug when SIGMATCP_DEBUG or DEBUG
// is set, otherwise SIGMATCP_LOG_LEVEL, otherwise info.
func levelFromEnv() zerolog.Level {
	if os.Getenv(EnvDebug) != "" || os.Getenv("DEBUG") != "" {
		return zerolog.DebugLevel
	}
	if lvl, err := ParseLevel(os.Getenv(EnvLogLevel)); err == nil {
		return lvl
	}
	return zerolog.InfoLevel
}

// ParseLevel parses a level name; an empty string is an error.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zerolog.NoLevel, errEmptyLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, err //nolint:wrapcheck // zerolog error names the bad level
	}
	return lvl, nil
}

// NewConsoleLogger returns a human-readable logger tagged with app.
func NewConsoleLogger(w io.Writer, app string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
	return zerolog.New(output).With().Timestamp().Str("app", app).Logger()
}

// Logger returns a copy of the package logger used by components created
// without an explicit logger. Changes to the copy do not affect the package.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	return &l
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// SetDebugEnabled switches the package logger between debug and info level
func SetDebugEnabled(enabled bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if enabled {
		logger = logger.Level(zerolog.DebugLevel)
		return
	}
	logger = logger.Level(zerolog.InfoLevel)
}
