package session

import (
	"context"
	"fmt"
	"time"

	"ttharvest/pkg/errors"
)

// Condition is polled by WaitFor until it reports true
type Condition func(ctx context.Context) (bool, error)

// WaitFor polls cond every interval until it holds, the timeout elapses or
// ctx is cancelled. A timeout yields ErrRefreshTimeout.
func WaitFor(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(waitCtx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s elapsed", errors.ErrRefreshTimeout, timeout)
		case <-ticker.C:
		}
	}
}
