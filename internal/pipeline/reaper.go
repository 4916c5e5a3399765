package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PlaceholderStore deletes placeholder documents left behind by interrupted runs.
type PlaceholderStore interface {
	ReapPlaceholders(ctx context.Context, createdBefore time.Time) (int64, error)
}

// Reaper periodically deletes placeholders older than ttl. ttl must exceed the run timeout so that
// in-flight runs are never reaped. Runs that finished without saving their content mark the record
// degraded, so only runs that never finished leave placeholders behind.
type Reaper struct {
	store    PlaceholderStore
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewReaper returns a reaper. interval defaults to ttl/4 when not positive.
func NewReaper(store PlaceholderStore, ttl, interval time.Duration, logger *zap.Logger) *Reaper {
	if interval <= 0 {
		interval = ttl / 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{store: store, ttl: ttl, interval: interval, logger: logger, now: time.Now}
}

// ReapOnce deletes expired placeholders and returns how many were removed.
func (r *Reaper) ReapOnce(ctx context.Context) (int64, error) {
	n, err := r.store.ReapPlaceholders(ctx, r.now().Add(-r.ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("reaped orphan placeholders", zap.Int64("count", n))
	}
	return n, nil
}

// Run reaps on every tick until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	if r.ttl <= 0 || r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				r.logger.Warn("failed to reap placeholders", zap.Error(err))
			}
		}
	}
}
