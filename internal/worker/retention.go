package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/history"
)

// StartRetentionSweeper periodically deletes episode history older than
// the retention window. Interval 0 defaults to hourly.
func StartRetentionSweeper(ctx context.Context, repo history.Repository, retention, interval time.Duration, log *zap.Logger) {
	if retention <= 0 {
		retention = history.Retention
	}
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				n, err := repo.DeleteOlderThan(ctx, cutoff)
				if err != nil {
					log.Warn("history retention sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					log.Info("history retention sweep",
						zap.Int64("deleted", n),
						zap.Time("cutoff", cutoff))
				}
			}
		}
	}()
}
