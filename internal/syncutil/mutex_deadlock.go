//go:build deadlock

// Package syncutil holds the lock types used by the reader and the virtual
// chip. This variant is built with -tags=deadlock and reports lock-order
// inversions and locks held longer than the configured timeout.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Mutex is a deadlock-detecting mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock-detecting reader/writer mutex.
type RWMutex struct {
	deadlock.RWMutex
}

// DetectionEnabled reports whether lock checking is compiled in.
const DetectionEnabled = true

// SetLockTimeout sets how long a lock may be waited on before it is
// reported. Zero disables the timeout check.
func SetLockTimeout(timeout time.Duration) {
	deadlock.Opts.DeadlockTimeout = timeout
}
