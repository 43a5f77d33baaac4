package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs the daily cycle once a day at a fixed UTC time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cycle     *Cycle
	at        string
	fill      bool
	logger    *slog.Logger
}

// NewScheduler creates a scheduler that fires at at ("HH:MM", UTC).
func NewScheduler(cycle *Cycle, at string, fill bool, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{scheduler: s, cycle: cycle, at: at, fill: fill, logger: logger}
}

// Run schedules the job and blocks until ctx is cancelled. A cycle in
// progress at shutdown sees the cancelled context.
func (s *Scheduler) Run(ctx context.Context) error {
	job, err := s.scheduler.Every(1).Day().At(s.at).Do(func() {
		if _, err := s.cycle.RunDailyCycle(ctx, s.fill); err != nil {
			s.logger.Error("scheduled cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule daily cycle at %s: %w", s.at, err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "at_utc", s.at, "next_run", job.NextRun().UTC())

	<-ctx.Done()
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
	return nil
}
