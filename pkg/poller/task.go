package poller

import (
	"context"
	"time"
)

// RunPeriodic calls fn once right away and then on every tick of interval
// until ctx is done. A call that outlasts the interval delays the next one
// instead of overlapping it.
func RunPeriodic(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	if ctx.Err() != nil {
		return nil
	}
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
