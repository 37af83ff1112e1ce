package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ethanmsmith/whisperbox/pkg/logger"
)

// DefaultSchedule sweeps every fifteen minutes.
const DefaultSchedule = "@every 15m"

// Task is a named cleanup job. It reports how many rows it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Cleaner periodically removes expired sessions and stale verification
// records. Expired verifications also take their unverified accounts with
// them, so an abandoned signup frees its email address without waiting for
// someone to click a dead link.
type Cleaner struct {
	schedule string
	timeout  time.Duration
	tasks    []Task
	cron     *cron.Cron
	entryID  cron.EntryID
}

// Option customises the cleaner.
type Option func(*Cleaner)

// WithSchedule overrides the cron schedule.
func WithSchedule(schedule string) Option {
	return func(c *Cleaner) {
		if schedule != "" {
			c.schedule = schedule
		}
	}
}

// WithTimeout bounds how long a single sweep may run.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Cleaner) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewCleaner builds a cleaner over the given tasks.
func NewCleaner(tasks []Task, opts ...Option) (*Cleaner, error) {
	if len(tasks) == 0 {
		return nil, errors.New("maintenance: at least one task is required")
	}
	for _, task := range tasks {
		if task.Name == "" || task.Run == nil {
			return nil, errors.New("maintenance: task needs a name and a run function")
		}
	}

	cleaner := &Cleaner{
		schedule: DefaultSchedule,
		timeout:  time.Minute,
		tasks:    tasks,
		cron:     cron.New(),
	}
	for _, opt := range opts {
		opt(cleaner)
	}

	return cleaner, nil
}

// Start schedules the periodic sweep.
func (c *Cleaner) Start() error {
	id, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			logger.Error("maintenance sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("maintenance: schedule sweep: %w", err)
	}

	c.entryID = id
	c.cron.Start()

	logger.Info("maintenance sweep scheduled", zap.String("schedule", c.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (c *Cleaner) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// RunOnce executes every task, collecting failures instead of stopping at
// the first one.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var errs error
	for _, task := range c.tasks {
		removed, err := task.Run(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", task.Name, err))
			continue
		}
		if removed > 0 {
			logger.Info("maintenance task removed rows",
				zap.String("task", task.Name),
				zap.Int64("removed", removed))
		}
	}

	return errs
}
