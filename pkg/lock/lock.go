// Package lock keeps two harvester runs from working at the same time, on one
// host through a lock file or across hosts through redis.
package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned when another holder owns the lock
var ErrLocked = errors.New("another run holds the lock")

// Locker is a single-holder lock with a bounded lifetime
type Locker interface {
	// Lock takes the lock or fails with ErrLocked. The lock is kept alive
	// until Unlock.
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Nop never blocks
type Nop struct{}

func (Nop) Lock(ctx context.Context) error   { return nil }
func (Nop) Unlock(ctx context.Context) error { return nil }
