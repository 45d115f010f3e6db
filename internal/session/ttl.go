package session

import (
	"context"
	"log/slog"
	"time"
)

// sweepInterval is how often the TTL worker scans for idle sessions.
const sweepInterval = 5 * time.Minute

// StartTTLWorker launches a background loop that destroys sessions whose
// connection went away without a clean teardown. It stops when ctx is done.
func StartTTLWorker(ctx context.Context, registry *Registry, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := registry.DeleteIdle(ttl); removed > 0 {
					slog.Info("TTL sweep complete", "sessions_removed", removed, "ttl", ttl)
				}
			}
		}
	}()
}
