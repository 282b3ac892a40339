package recovery

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// BackoffStrategy yields the delay before the next attempt
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
	Reset()
}

// Window is a uniformly random delay within [Min, Max]
type Window struct {
	Min time.Duration
	Max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewWindow creates a Window; swapped bounds are reordered
func NewWindow(min, max time.Duration) *Window {
	if max < min {
		min, max = max, min
	}
	return &Window{Min: min, Max: max}
}

// NewSeededWindow creates a Window with a deterministic random source
func NewSeededWindow(min, max time.Duration, seed int64) *Window {
	w := NewWindow(min, max)
	w.rng = rand.New(rand.NewSource(seed))
	return w
}

// NextDelay returns a random delay in the window; attempt is ignored
func (w *Window) NextDelay(attempt int) time.Duration {
	span := w.Max - w.Min
	if span <= 0 {
		return w.Min
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rng == nil {
		w.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return w.Min + time.Duration(w.rng.Int63n(int64(span)+1))
}

// Reset is a no-op; a window keeps no per-attempt state
func (w *Window) Reset() {}

// Sleeper waits for a duration or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
