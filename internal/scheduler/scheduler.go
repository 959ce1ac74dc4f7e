package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"susu-ledger-backend/internal/jobs"
	"susu-ledger-backend/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner *jobs.JobRunner) *Scheduler {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	s.registerJobs()
	return s
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() {
	cfg := s.jobs.Config().Scheduler

	specs := []struct {
		name string
		spec string
	}{
		{jobs.JobActivateGroups, cfg.ActivateGroups},
		{jobs.JobMarkOverdue, cfg.MarkOverdue},
		{jobs.JobExpireSettlements, cfg.ExpireSettlements},
	}
	registered := 0
	for _, j := range specs {
		name := j.name
		_, err := s.cron.AddFunc(j.spec, func() {
			// errors are logged and counted by the runner
			_ = s.jobs.Run(context.Background(), name)
		})
		if err != nil {
			logger.Error("Failed to register job", "job", name, "spec", j.spec, "error", err)
			continue
		}
		registered++
	}

	logger.Info("Cron jobs registered", "count", registered)
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// JobCount returns the number of registered jobs
func (s *Scheduler) JobCount() int {
	return len(s.cron.Entries())
}
