package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/simaogato/bountyflow-backend/internal/logging"
)

// Scheduler runs Sweep on a fixed interval
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

// NewScheduler constructs a scheduler, defaulting the interval to 15 minutes
func NewScheduler(reconciler *Reconciler, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logging.OrDefault(logger),
	}
}

// Start sweeps every interval until the context is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.reconciler == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.reconciler.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}
