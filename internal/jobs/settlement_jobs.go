package jobs

import (
	"context"
	"sync/atomic"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
)

// staleBatchSize caps how many entries one run cancels.
const staleBatchSize = 500

// ExpireStaleSettlements cancels deposits and withdrawals the gateway never
// confirmed within the settlement TTL, releasing held funds.
func (jr *JobRunner) ExpireStaleSettlements(ctx context.Context) error {
	return jr.runWithRecovery(ctx, JobExpireSettlements, func(ctx context.Context) error {
		cutoff := jr.now().Add(-jr.config.Engine.SettlementTTL)
		stale, err := jr.store.Repos().Ledger.ListStalePending(ctx, cutoff, staleBatchSize)
		if err != nil {
			return err
		}

		var cancelled atomic.Int64
		err = sweep(ctx, jr.config.Engine.JobConcurrency, JobExpireSettlements, stale, func(ctx context.Context, tx domain.Transaction) error {
			changed, err := jr.wallet.CancelStale(ctx, tx.ID)
			if changed {
				cancelled.Add(1)
				logger.Debug("Cancelled stale settlement", "transactionID", tx.ID, "accountID", tx.AccountID, "kind", tx.Kind)
			}
			return err
		})
		logger.Info("Expired stale settlements", "count", cancelled.Load(), "cutoff", cutoff)
		return err
	})
}
