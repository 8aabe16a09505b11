/**
 * @description
 * Cron scheduler setup for the obligation generation jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedules holds the cron expressions of the generation jobs.
type Schedules struct {
	Monthly string
	Annual  string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules Schedules
}

// NewScheduler creates a new scheduler instance. Extra options such as
// cron.WithLocation are applied after the recovery chain.
func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules Schedules, opts ...cron.Option) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	options := append([]cron.Option{cron.WithChain(cron.Recover(cronLogger))}, opts...)

	return &Scheduler{
		cron:      cron.New(options...),
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the cron scheduler. A job with an invalid
// schedule is logged and skipped.
func (s *Scheduler) Start() int {
	registered := 0

	if _, err := s.cron.AddFunc(s.schedules.Monthly, s.jobs.GenerateMonthlyObligations); err != nil {
		s.logger.Error("failed to schedule monthly obligation job", "error", err)
	} else {
		registered++
		s.logger.Info("scheduled monthly obligation job", "schedule", s.schedules.Monthly)
	}

	if _, err := s.cron.AddFunc(s.schedules.Annual, s.jobs.GenerateAnnualObligations); err != nil {
		s.logger.Error("failed to schedule annual obligation job", "error", err)
	} else {
		registered++
		s.logger.Info("scheduled annual obligation job", "schedule", s.schedules.Annual)
	}

	s.cron.Start()
	return registered
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
