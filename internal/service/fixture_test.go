package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/repository/sqlstore"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	// every reading moves forward so timestamps stay distinct
	c.now = c.now.Add(time.Microsecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *sqlstore.Store
	clock *testClock
	locks *lock.Manager
	svc   *Services
	eng   *engine
}

func newFixture(t *testing.T, policy config.UnpaidPolicy) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.OpenSQLite(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: t0}
	locks := lock.NewManager(10*time.Second, nil)
	d := Deps{
		Store: store,
		Locks: locks,
		Engine: config.EngineConfig{
			LockTimeout:          10 * time.Second,
			MinMembersToActivate: 2,
			UnpaidPolicy:         policy,
			RecentTransactions:   5,
			UpcomingActivities:   3,
			SettlementTTL:        24 * time.Hour,
		},
		Clock: clock.Now,
	}
	e := newEngine(d)
	return &fixture{
		t:     t,
		ctx:   ctx,
		store: store,
		clock: clock,
		locks: locks,
		eng:   e,
		svc: &Services{
			Users:         &userService{e},
			Groups:        &groupService{e},
			Processor:     &processorService{e},
			Wallet:        &walletService{e},
			Query:         &queryService{e},
			Notifications: &notificationService{e},
		},
	}
}

func (f *fixture) register(ids ...domain.AccountID) {
	f.t.Helper()
	for _, id := range ids {
		_, err := f.svc.Users.RegisterUser(f.ctx, id, domain.WalletKindPlug)
		require.NoError(f.t, err)
	}
}

// newGroup creates a group owned by admin that starts one hour from now.
func (f *fixture) newGroup(admin domain.AccountID, maxMembers uint32, amount domain.Amount) *domain.Group {
	f.t.Helper()
	g, err := f.svc.Groups.CreateGroup(f.ctx, admin, domain.CreateGroupSpec{
		Name:               "Market women",
		ContributionAmount: amount,
		Frequency:          domain.FrequencyWeekly,
		MaxMembers:         maxMembers,
		StartDate:          f.clock.Now().Add(time.Hour),
	})
	require.NoError(f.t, err)
	return g
}

func (f *fixture) join(code domain.GroupCode, ids ...domain.AccountID) {
	f.t.Helper()
	for _, id := range ids {
		_, err := f.svc.Groups.JoinGroup(f.ctx, code, id)
		require.NoError(f.t, err)
	}
}

// activeGroup builds a started group with admin first and the others in order.
func (f *fixture) activeGroup(amount domain.Amount, admin domain.AccountID, others ...domain.AccountID) *domain.Group {
	f.t.Helper()
	g := f.newGroup(admin, uint32(len(others)+1), amount)
	f.join(g.ID, others...)
	f.clock.Advance(time.Hour)
	changed, err := f.svc.Groups.ActivateIfDue(f.ctx, g.ID)
	require.NoError(f.t, err)
	require.True(f.t, changed)
	g, err = f.svc.Groups.GetGroup(f.ctx, g.ID)
	require.NoError(f.t, err)
	return g
}

var momo = domain.PaymentMethod{Type: domain.PaymentMobileMoney, Provider: domain.ProviderMTN}

func (f *fixture) contribute(code domain.GroupCode, amount domain.Amount, ids ...domain.AccountID) {
	f.t.Helper()
	for _, id := range ids {
		_, err := f.svc.Processor.Contribute(f.ctx, code, id, amount, momo, nil)
		require.NoError(f.t, err)
	}
}

// requireConserved checks the cached balance against the log and that it is
// never negative.
func (f *fixture) requireConserved(ids ...domain.AccountID) {
	f.t.Helper()
	repos := f.store.Repos()
	for _, id := range ids {
		u, err := repos.Users.GetByID(f.ctx, id)
		require.NoError(f.t, err)
		fromLog, err := repos.Ledger.BalanceOf(f.ctx, id)
		require.NoError(f.t, err)
		require.Equal(f.t, fromLog, u.Balance, "cached balance of %s drifted from the log", id)
		require.GreaterOrEqual(f.t, int64(u.Balance), int64(0))
	}
}

// requireDenseOrder checks payout orders are exactly 1..n.
func requireDenseOrder(t *testing.T, g *domain.Group) {
	t.Helper()
	seen := make(map[uint32]bool)
	for _, m := range g.Members {
		require.False(t, seen[m.PayoutOrder], "duplicate payout order %d", m.PayoutOrder)
		seen[m.PayoutOrder] = true
	}
	for i := 1; i <= len(g.Members); i++ {
		require.True(t, seen[uint32(i)], "payout order %d missing", i)
	}
}
