package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the pruner on a cron schedule.
type Scheduler struct {
	pruner   *Pruner
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
	done     chan struct{} // closed by Stop
}

// NewScheduler creates a scheduler for pruner. schedule is a standard
// 5-field cron expression, e.g. "0 3 * * *" for daily at 3 AM.
func NewScheduler(pruner *Pruner, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pruner:   pruner,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "retention.scheduler"),
	}
}

// Start schedules pruning until ctx is cancelled or Stop is called.
// An empty schedule or disabled pruner leaves the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" || !s.pruner.Enabled() {
		s.logger.Info("report pruning disabled")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.done = make(chan struct{})
	done := s.done

	s.logger.Info("retention scheduler started",
		"schedule", s.schedule,
		"retention", s.pruner.retention.String(),
	)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	res, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	if res.Rows > 0 || res.Files > 0 {
		s.logger.Info("scheduled pruning completed", "rows", res.Rows, "files", res.Files)
	}
}

// Stop halts the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	close(s.done)
	s.running = false
	s.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether pruning is scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled prune, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
