package responder

import (
	"context"
	"time"
)

// Schedule calls run immediately and then once per interval until ctx is
// done. Runs never overlap: a slow run delays the next tick.
func Schedule(ctx context.Context, interval time.Duration, run func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			run(ctx)
		}
	}
}
