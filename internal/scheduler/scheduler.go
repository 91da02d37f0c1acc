// Package scheduler runs the periodic usage-window sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper calls Sweep on a cron schedule. Only expired windows are removed,
// so running it has no effect on admission.
type Sweeper struct {
	cron   *cron.Cron
	target Sweepable
	logger *zap.Logger
	now    func() time.Time
}

func NewSweeper(schedule string, target Sweepable, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		cron:   cron.New(),
		target: target,
		logger: logger,
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return nil, fmt.Errorf("scheduler: schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce() {
	start := time.Now()
	removed := s.target.Sweep(s.now())
	s.logger.Info("usage sweep finished",
		zap.Int("removed", removed),
		zap.Duration("took", time.Since(start)))
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
