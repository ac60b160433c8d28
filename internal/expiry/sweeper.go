// Package expiry keeps the stored expired flag of certificate records current.
package expiry

import (
	"context"
	"log/slog"
	"time"
)

// Refresher recomputes expired flags against now
type Refresher interface {
	RefreshExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically refreshes expired flags
type Sweeper struct {
	store    Refresher
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(store Refresher, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Sweep refreshes the flags once and returns the number of changed records
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	changed, err := s.store.RefreshExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		s.logger.Info("refreshed expired flags", "changed", changed)
	}
	return changed, nil
}

// Run sweeps immediately and then on every tick until ctx is done. A zero
// interval sweeps once.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("error refreshing expired flags", "error", err)
	}
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("error refreshing expired flags", "error", err)
			}
		}
	}
}
