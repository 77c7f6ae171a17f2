package conversation

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often the TTL worker looks for idle sessions.
const DefaultSweepInterval = 5 * time.Minute

// ExpireCallback is called with the ids removed by one sweep.
type ExpireCallback func(ctx context.Context, sessionIDs []string)

// StartTTLWorker runs a background goroutine that periodically removes
// sessions idle for longer than ttl. The returned channel is closed once the
// worker has stopped after ctx is cancelled.
func StartTTLWorker(ctx context.Context, store *Store, ttl, interval time.Duration, onExpire ExpireCallback) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Session TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, store, ttl, onExpire)
			case <-ctx.Done():
				slog.Info("Session TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, store *Store, ttl time.Duration, onExpire ExpireCallback) {
	expired := store.SweepIdle(ttl)
	if len(expired) == 0 {
		return
	}
	slog.Info("Session TTL worker expired sessions", "count", len(expired))
	if onExpire != nil {
		onExpire(ctx, expired)
	}
}
