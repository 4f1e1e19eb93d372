/**
 * @description
 * Cron scheduler setup for the pledge reminder job.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/d9rick/GeoPledge/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a scheduler that evaluates cron expressions in the schedule zone.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	opts := []cron.Option{cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))}
	if cfg.ScheduleLocation != nil {
		opts = append(opts, cron.WithLocation(cfg.ScheduleLocation))
	}

	return &Scheduler{
		cron:   cron.New(opts...),
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. An empty reminder schedule
// disables the reminder job.
func (s *Scheduler) Start() error {
	if s.config.ReminderJobSchedule == "" {
		s.logger.Info("pledge reminder job disabled")
	} else if _, err := s.cron.AddFunc(s.config.ReminderJobSchedule, s.jobs.SendPledgeReminders); err != nil {
		s.logger.Error("failed to schedule pledge reminder job", "error", err)
		return err
	} else {
		s.logger.Info("scheduled pledge reminder job", "schedule", s.config.ReminderJobSchedule, "lead", s.config.ReminderLead())
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
