package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/bhtree/internal/logger"
	"github.com/onnwee/bhtree/internal/metrics"
)

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

// Service runs a task on a schedule until stopped.
type Service struct {
	name     string
	schedule string
	task     Task
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewService creates a scheduler for task. The schedule is checked up front
// so a typo fails at startup.
func NewService(name, schedule string, task Task) (*Service, error) {
	if err := Validate(schedule); err != nil {
		return nil, err
	}
	return &Service{
		name:     name,
		schedule: schedule,
		task:     task,
		now:      time.Now,
		stop:     make(chan struct{}),
	}, nil
}

// Start runs the task at every scheduled time until ctx ends or Stop is
// called. A run that overlaps the next slot delays it.
func (s *Service) Start(ctx context.Context) {
	logger.Info("Starting scheduler", "job", s.name, "schedule", s.schedule)
	for {
		next, err := Next(s.schedule, s.now())
		if err != nil {
			logger.Error("Scheduler stopped", "job", s.name, "error", err)
			return
		}
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Scheduler stopped by context", "job", s.name)
			return
		case <-s.stop:
			timer.Stop()
			logger.Info("Scheduler stopped", "job", s.name)
			return
		case <-timer.C:
			_ = s.RunOnce(ctx)
		}
	}
}

// RunOnce runs the task now and records the outcome.
func (s *Service) RunOnce(ctx context.Context) error {
	start := time.Now()
	err := s.task(ctx)
	status := "success"
	if err != nil {
		status = "failed"
		logger.ErrorContext(ctx, "Scheduled job failed", "job", s.name, "error", err)
	} else {
		logger.DebugContext(ctx, "Scheduled job finished", "job", s.name, "duration_ms", time.Since(start).Milliseconds())
	}
	metrics.ScheduledJobRuns.WithLabelValues(s.name, status).Inc()
	return err
}

// Stop gracefully stops the scheduler. It is safe to call more than once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
