//go:build !deadlock

// Package syncutil holds the lock types used by the reader and the virtual
// chip. The default build uses the sync package directly; build with
// -tags=deadlock to swap in github.com/sasha-s/go-deadlock.
package syncutil

import (
	"sync"
	"time"
)

// Mutex is a plain sync.Mutex in the default build.
//
//nolint:gocritic // embedded to expose Lock/Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex is a plain sync.RWMutex in the default build.
//
//nolint:gocritic // embedded to expose Lock/Unlock/RLock/RUnlock
type RWMutex struct {
	sync.RWMutex
}

// DetectionEnabled reports whether lock checking is compiled in.
const DetectionEnabled = false

// SetLockTimeout is a no-op without the deadlock build tag.
func SetLockTimeout(time.Duration) {}
