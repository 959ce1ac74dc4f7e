package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/metrics"
	"susu-ledger-backend/internal/repository"
	"susu-ledger-backend/internal/service"
)

// Job names, shared by the scheduler and cmd/cronjob.
const (
	JobActivateGroups    = "activate-groups"
	JobMarkOverdue       = "mark-overdue"
	JobExpireSettlements = "expire-settlements"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	store   repository.Store
	groups  service.GroupService
	wallet  service.WalletService
	metrics *metrics.Metrics
	config  *config.Config
	clock   func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(store repository.Store, services *service.Services, m *metrics.Metrics, cfg *config.Config) *JobRunner {
	return &JobRunner{
		store:   store,
		groups:  services.Groups,
		wallet:  services.Wallet,
		metrics: m,
		config:  cfg,
		clock:   time.Now,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

func (jr *JobRunner) now() time.Time {
	return jr.clock().UTC()
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(ctx context.Context, jobName string, jobFunc func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
		jr.metrics.ObserveJob(jobName, err)
	}()

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	err = jobFunc(ctx)
	if err != nil {
		logger.Error("Job failed", "job", jobName, "error", err, "duration", time.Since(start))
		return err
	}
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
	return nil
}

// Run executes one job by name, or every job for "all".
func (jr *JobRunner) Run(ctx context.Context, name string) error {
	switch name {
	case JobActivateGroups:
		return jr.ActivateDueGroups(ctx)
	case JobMarkOverdue:
		return jr.MarkOverdueContributions(ctx)
	case JobExpireSettlements:
		return jr.ExpireStaleSettlements(ctx)
	case "all":
		return jr.RunAll(ctx)
	}
	return fmt.Errorf("unknown job %q", name)
}

// RunAll runs all jobs in dependency order (for manual execution)
func (jr *JobRunner) RunAll(ctx context.Context) error {
	return errors.Join(
		jr.ActivateDueGroups(ctx),
		jr.MarkOverdueContributions(ctx),
		jr.ExpireStaleSettlements(ctx),
	)
}

// sweep calls fn for every item with bounded concurrency. One item failing
// does not stop the others. Busy items are left for the next run.
func sweep[T any](ctx context.Context, limit int, jobName string, items []T, fn func(ctx context.Context, item T) error) error {
	if limit <= 0 {
		limit = 1
	}
	var failed, busy atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		g.Go(func() error {
			err := fn(gctx, item)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrBusy):
				busy.Add(1)
				logger.Warn("Job item busy, deferring", "job", jobName, "item", item)
			default:
				failed.Add(1)
				logger.Error("Job item failed", "job", jobName, "item", item, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Sweep finished", "job", jobName, "items", len(items), "failed", failed.Load(), "busy", busy.Load())
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d items failed", n, len(items))
	}
	return ctx.Err()
}
