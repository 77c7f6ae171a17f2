package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRetentionInterval is how often the retention worker prunes turns.
const DefaultRetentionInterval = time.Hour

// Cleaner deletes archived turns older than a retention period.
type Cleaner interface {
	CleanupOlderThan(ctx context.Context, ttl time.Duration) (int64, error)
}

// StartRetentionWorker prunes turns older than retention once at start and
// then every interval. The returned channel is closed once the worker has
// stopped after ctx is cancelled.
func StartRetentionWorker(ctx context.Context, repo Cleaner, retention, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("Archive retention worker started", "interval", interval, "retention", retention)

		prune(ctx, repo, retention)
		for {
			select {
			case <-ticker.C:
				prune(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Archive retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func prune(ctx context.Context, repo Cleaner, retention time.Duration) {
	n, err := repo.CleanupOlderThan(ctx, retention)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Failed to clean up archived turns", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Info("Archived turns cleaned up", "deleted", n)
	}
}
