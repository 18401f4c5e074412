//go:build deadlock

// Package syncutil provides the locks guarding the shared register bus.
// This file is compiled when building with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockDetection reports whether go-deadlock is compiled in.
const DeadlockDetection = true

// A full ADAU1452 program download over 100 kHz I2C takes several seconds,
// so the default 30s detector timeout is kept but never shortened.
func init() {
	if deadlock.Opts.DeadlockTimeout < 30*time.Second {
		deadlock.Opts.DeadlockTimeout = 30 * time.Second
	}
}

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}
