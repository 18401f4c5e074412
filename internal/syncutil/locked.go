package syncutil

import "sync"

// WithLock runs fn while holding l and returns its result. The lock is
// released on every exit path, including a panic inside fn.
func WithLock[T any](l sync.Locker, fn func() T) T {
	l.Lock()
	defer l.Unlock()
	return fn()
}
