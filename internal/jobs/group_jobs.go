package jobs

import (
	"context"
	"sync/atomic"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
)

// ActivateDueGroups moves forming groups whose start date has passed and
// that have enough members to active.
func (jr *JobRunner) ActivateDueGroups(ctx context.Context) error {
	return jr.runWithRecovery(ctx, JobActivateGroups, func(ctx context.Context) error {
		codes, err := jr.store.Repos().Groups.ListDueForActivation(ctx, jr.now(), jr.config.Engine.MinMembersToActivate)
		if err != nil {
			return err
		}

		var activated atomic.Int64
		err = sweep(ctx, jr.config.Engine.JobConcurrency, JobActivateGroups, codes, func(ctx context.Context, code domain.GroupCode) error {
			changed, err := jr.groups.ActivateIfDue(ctx, code)
			if changed {
				activated.Add(1)
				logger.Debug("Activated group", "groupID", code)
			}
			return err
		})
		logger.Info("Activated groups", "count", activated.Load(), "candidates", len(codes))
		return err
	})
}

// MarkOverdueContributions flags members who have not paid by the payout date.
func (jr *JobRunner) MarkOverdueContributions(ctx context.Context) error {
	return jr.runWithRecovery(ctx, JobMarkOverdue, func(ctx context.Context) error {
		codes, err := jr.store.Repos().Groups.ListWithOverdueMembers(ctx, jr.now())
		if err != nil {
			return err
		}

		var marked atomic.Int64
		err = sweep(ctx, jr.config.Engine.JobConcurrency, JobMarkOverdue, codes, func(ctx context.Context, code domain.GroupCode) error {
			n, err := jr.groups.MarkOverdue(ctx, code)
			marked.Add(int64(n))
			return err
		})
		logger.Info("Marked contributions as overdue", "count", marked.Load(), "groups", len(codes))
		return err
	})
}
