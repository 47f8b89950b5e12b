package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs named housekeeping tasks on cron expressions.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	tasks  map[string]cron.EntryID
}

// NewScheduler builds a scheduler in UTC. Expressions accept descriptors such as "@every 1h".
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger,
		tasks:  make(map[string]cron.EntryID),
	}
}

// Register adds a task. Panics inside fn are recovered and logged.
func (s *Scheduler) Register(name, spec string, fn func(context.Context) error) error {
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Sugar().Errorw("scheduled task panicked", "task", name, "panic", r)
			}
		}()
		start := time.Now()
		if err := fn(context.Background()); err != nil {
			s.logger.Sugar().Warnw("scheduled task failed", "task", name, "error", err)
			return
		}
		s.logger.Sugar().Debugw("scheduled task finished", "task", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("register task %s: %w", name, err)
	}
	s.tasks[name] = id
	return nil
}

// Start begins the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Sugar().Infow("scheduler started", "tasks", len(s.tasks))
}

// Stop halts scheduling and waits for running tasks or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Next returns the next activation time of a task.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.tasks[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}
