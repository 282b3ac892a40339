// Package pacing spaces out acquisition attempts against the platform.
package pacing

import (
	"context"
	"sync"
	"time"

	"ttharvest/pkg/logger"
	"ttharvest/pkg/recovery"
)

// Pacer blocks before each acquisition attempt
type Pacer interface {
	Wait(ctx context.Context) error
}

// RandomPacer sleeps a uniformly random duration from its window before
// every attempt, the first one included.
type RandomPacer struct {
	window *recovery.Window
	sleep  recovery.Sleeper
	logger logger.Logger

	mu    sync.Mutex
	waits int
	total time.Duration
}

// NewRandomPacer creates a pacer over [min, max]
func NewRandomPacer(min, max time.Duration, log logger.Logger) *RandomPacer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &RandomPacer{
		window: recovery.NewWindow(min, max),
		sleep:  recovery.Wait,
		logger: log,
	}
}

// SetSleeper replaces the sleep function
func (p *RandomPacer) SetSleeper(s recovery.Sleeper) {
	p.sleep = s
}

// Wait sleeps one random delay
func (p *RandomPacer) Wait(ctx context.Context) error {
	delay := p.window.NextDelay(0)
	p.logger.DebugWithFields("Pacing before next request", map[string]interface{}{
		"delay": delay,
	})

	if err := p.sleep(ctx, delay); err != nil {
		return err
	}

	p.mu.Lock()
	p.waits++
	p.total += delay
	p.mu.Unlock()
	return nil
}

// Stats returns how many waits completed and their summed duration
func (p *RandomPacer) Stats() (waits int, total time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits, p.total
}
