package cache

import (
	"context"
	"time"
)

// Sweep prunes expired entries every interval until ctx is cancelled.
// Failures are logged and never stop the loop.
func Sweep(ctx context.Context, b Backend, interval time.Duration) {
	if b == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Prune(); err != nil {
				log.Warn().Err(err).Msg("cache sweep failed")
			}
		}
	}
}
