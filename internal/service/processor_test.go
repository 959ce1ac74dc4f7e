package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/lock"
)

// Three members, full collection, payout to the first in line, advance, and
// the first member can no longer draw.
func TestRotationScenario(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob", "carol", "dave")
	g := f.activeGroup(100, "alice", "bob", "carol")
	assert.Equal(t, uint32(3), g.TotalCycles)
	requireDenseOrder(t, g)

	f.contribute(g.ID, 100, "alice", "bob", "carol")

	receipt, err := f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(300), receipt.Transaction.Amount)
	assert.Equal(t, domain.TransactionGroupPayout, receipt.Transaction.Kind)
	assert.Equal(t, domain.TransactionCompleted, receipt.Transaction.Status)
	require.NotNil(t, receipt.Transaction.Cycle)
	assert.Equal(t, uint32(1), *receipt.Transaction.Cycle)

	advanced, err := f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), advanced.CurrentCycle)

	_, err = f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.svc.Groups.JoinGroup(f.ctx, g.ID, "dave")
	assert.ErrorIs(t, err, domain.ErrGroupFull)

	u, err := f.svc.Users.GetUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(300), u.Balance)
	f.requireConserved("alice", "bob", "carol")
}

func TestContributeValidationOrder(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob", "eve")
	forming := f.newGroup("alice", 3, 100)
	g := f.activeGroup(100, "alice", "bob")

	tests := []struct {
		name    string
		code    domain.GroupCode
		account domain.AccountID
		amount  domain.Amount
		method  domain.PaymentMethod
		want    error
	}{
		{"unknown group", "AAAAAAAA", "eve", 1, momo, domain.ErrNotFound},
		{"group not active beats non-member", forming.ID, "eve", 1, momo, domain.ErrGroupClosed},
		{"non-member beats wrong amount", g.ID, "eve", 1, momo, domain.ErrUnauthorized},
		{"wrong amount", g.ID, "bob", 99, momo, domain.ErrBadRequest},
		{"bad method", g.ID, "bob", 100, domain.PaymentMethod{Type: domain.PaymentMobileMoney}, domain.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Processor.Contribute(f.ctx, tt.code, tt.account, tt.amount, tt.method, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	page, err := f.svc.Users.GetUserTransactions(f.ctx, "bob", domain.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Transactions)
}

func TestContributeIdempotent(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob")
	g := f.activeGroup(100, "alice", "bob")
	ref := "momo-123"

	first, err := f.svc.Processor.Contribute(f.ctx, g.ID, "bob", 100, momo, &ref)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, domain.TransactionGroupContribution, first.Transaction.Kind)
	assert.Equal(t, domain.TransactionCompleted, first.Transaction.Status)

	second, err := f.svc.Processor.Contribute(f.ctx, g.ID, "bob", 100, momo, &ref)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	page, err := f.svc.Users.GetUserTransactions(f.ctx, "bob", domain.HistoryFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 1)

	// contributions never touch the personal pool
	u, err := f.svc.Users.GetUser(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), u.Balance)
}

func TestContributeConcurrentRetries(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob")
	g := f.activeGroup(100, "alice", "bob")

	const retries = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fresh    int
		ids      = map[string]bool{}
		failures []error
	)
	for i := 0; i < retries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.svc.Processor.Contribute(f.ctx, g.ID, "bob", 100, momo, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			if !r.Duplicate {
				fresh++
			}
			ids[r.Transaction.ID] = true
		}()
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 1, fresh)
	assert.Len(t, ids, 1)
}

func TestContributeAfterPoolDisbursed(t *testing.T) {
	f := newFixture(t, config.UnpaidSkip)
	f.register("alice", "bob", "carol")
	g := f.activeGroup(100, "alice", "bob", "carol")
	f.contribute(g.ID, 100, "bob")

	r, err := f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(100), r.Transaction.Amount)

	_, err = f.svc.Processor.Contribute(f.ctx, g.ID, "carol", 100, momo, nil)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestWithdrawPayout(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob", "eve")
	forming := f.newGroup("alice", 3, 100)
	g := f.activeGroup(100, "alice", "bob")

	_, err := f.svc.Processor.WithdrawPayout(f.ctx, "AAAAAAAA", "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Processor.WithdrawPayout(f.ctx, forming.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrGroupClosed)
	_, err = f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "eve")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// under block the pool must be complete
	f.contribute(g.ID, 100, "alice")
	_, err = f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	f.contribute(g.ID, 100, "bob")
	r, err := f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(200), r.Transaction.Amount)

	_, err = f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyPaidOut)

	// at most one completed payout for the cycle
	kind := domain.TransactionGroupPayout
	page, err := f.svc.Users.GetUserTransactions(f.ctx, "alice", domain.HistoryFilter{Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, page.Transactions, 1)

	// advancing does not pay alice twice
	_, err = f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	u, err := f.svc.Users.GetUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(200), u.Balance)
	f.requireConserved("alice", "bob")
}

func TestContributeBusyWhenGroupLocked(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob")
	g := f.activeGroup(100, "alice", "bob")

	f.eng.Locks = lock.NewManager(20*time.Millisecond, nil)
	release, err := f.eng.Locks.Acquire(f.ctx, lock.GroupKey(g.ID))
	require.NoError(t, err)

	_, err = f.svc.Processor.Contribute(f.ctx, g.ID, "bob", 100, momo, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBusy)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.True(t, de.Retryable())

	release()
	r, err := f.svc.Processor.Contribute(f.ctx, g.ID, "bob", 100, momo, nil)
	require.NoError(t, err)
	assert.False(t, r.Duplicate)
}
