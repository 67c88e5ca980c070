package runner

import (
	"context"
	"log/slog"
	"time"

	"crm_sync/internal/domain"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Run(ctx context.Context) (*domain.SyncStats, error)
}

// Runner executes the sync as a one-shot batch job, or on a fixed interval
// when one is configured. Every pass is bounded by the run timeout.
type Runner struct {
	syncer   Syncer
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func New(syncer Syncer, interval, timeout time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		syncer:   syncer,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start runs one sync pass, and keeps running on the interval if one is
// set. With no interval it returns after the first pass completes.
func (r *Runner) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return r.runOnce(ctx)
	}

	r.logger.Info("runner started", "interval", r.interval)

	if err := r.runOnce(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stats, err := r.syncer.Run(runCtx)
	if err != nil {
		r.logger.Error("sync run failed", "error", err)
		return err
	}

	r.logger.Info("sync run finished",
		"accounts", stats.Accounts,
		"actions", stats.TotalActions,
		"duration", stats.Duration,
	)
	return nil
}
