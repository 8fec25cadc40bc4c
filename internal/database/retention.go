package database

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type roundPruner interface {
	PruneRounds(ctx context.Context, before time.Time) (int64, error)
}

// pruneOnce deletes archived rounds older than the retention window.
func pruneOnce(ctx context.Context, store roundPruner, retention time.Duration, now time.Time, logger *zap.Logger) {
	deleted, err := store.PruneRounds(ctx, now.Add(-retention))
	if err != nil {
		logger.Error("round archive cleanup failed", zap.Error(err))
		return
	}
	logger.Info("round archive cleanup finished", zap.Int64("rounds_deleted", deleted), zap.Duration("retention", retention))
}

// StartRetention schedules a daily cleanup of the round archive. The returned
// cron must be stopped on shutdown.
func StartRetention(store roundPruner, retention time.Duration, logger *zap.Logger) *cron.Cron {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("retention")

	c := cron.New()
	c.AddFunc("@daily", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		pruneOnce(ctx, store, retention, time.Now(), logger)
	})
	c.Start()
	return c
}
