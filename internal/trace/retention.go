package trace

import (
	"context"
	"log/slog"
	"time"

	"github.com/avesely/opsdeck/internal/store"
)

const sweepInterval = 1 * time.Hour

// StartRetentionSweeper runs a background goroutine that periodically deletes
// traces older than the retention window. It stops when ctx is cancelled.
func StartRetentionSweeper(ctx context.Context, repo store.Repository, retention time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Trace retention sweeper started", "interval", sweepInterval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				sweepOnce(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Trace retention sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOnce(ctx context.Context, repo store.Repository, retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	deleted, err := repo.DeleteTracesBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Trace retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Trace retention sweep completed", "deleted", deleted, "cutoff", cutoff)
	}
}
