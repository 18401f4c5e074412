//go:build !deadlock

// Package syncutil provides the locks guarding the shared register bus.
// Standard sync types are used by default. Build with -tags=deadlock to
// swap in github.com/sasha-s/go-deadlock, which reports lock-order
// inversions and locks held past its timeout.
package syncutil

import "sync"

// DeadlockDetection reports whether go-deadlock is compiled in.
const DeadlockDetection = false

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.RWMutex to expose its interface
type RWMutex struct {
	sync.RWMutex
}
