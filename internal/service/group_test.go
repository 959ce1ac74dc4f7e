package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
)

func TestCreateGroup(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice")

	g := f.newGroup("alice", 4, 100)
	assert.True(t, g.ID.Valid())
	assert.Equal(t, domain.GroupStatusForming, g.Status)
	assert.False(t, g.IsActive)
	assert.Equal(t, uint32(1), g.CurrentCycle)
	assert.Equal(t, uint32(4), g.TotalCycles)
	assert.True(t, g.NextPayoutDate.Equal(g.StartDate.AddDate(0, 0, 7)))
	require.Len(t, g.Members, 1)
	assert.Equal(t, domain.AccountID("alice"), g.Members[0].UserID)
	assert.Equal(t, uint32(1), g.Members[0].PayoutOrder)

	stored, err := f.svc.Groups.GetGroup(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Name, stored.Name)
	assert.True(t, g.StartDate.Equal(stored.StartDate))
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice")
	future := t0.Add(24 * time.Hour)

	tests := []struct {
		name string
		spec domain.CreateGroupSpec
	}{
		{"too few members", domain.CreateGroupSpec{Name: "g", ContributionAmount: 1, Frequency: domain.FrequencyDaily, MaxMembers: 1, StartDate: future}},
		{"too many members", domain.CreateGroupSpec{Name: "g", ContributionAmount: 1, Frequency: domain.FrequencyDaily, MaxMembers: 21, StartDate: future}},
		{"zero amount", domain.CreateGroupSpec{Name: "g", ContributionAmount: 0, Frequency: domain.FrequencyDaily, MaxMembers: 3, StartDate: future}},
		{"pool overflows", domain.CreateGroupSpec{Name: "g", ContributionAmount: domain.MaxContributionAmount + 1, Frequency: domain.FrequencyDaily, MaxMembers: 3, StartDate: future}},
		{"blank name", domain.CreateGroupSpec{Name: "  ", ContributionAmount: 1, Frequency: domain.FrequencyDaily, MaxMembers: 3, StartDate: future}},
		{"bad frequency", domain.CreateGroupSpec{Name: "g", ContributionAmount: 1, Frequency: "hourly", MaxMembers: 3, StartDate: future}},
		{"past start", domain.CreateGroupSpec{Name: "g", ContributionAmount: 1, Frequency: domain.FrequencyDaily, MaxMembers: 3, StartDate: t0.Add(-time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Groups.CreateGroup(f.ctx, "alice", tt.spec)
			assert.ErrorIs(t, err, domain.ErrBadRequest)
		})
	}

	_, err := f.svc.Groups.CreateGroup(f.ctx, "nobody", domain.CreateGroupSpec{
		Name: "g", ContributionAmount: 1, Frequency: domain.FrequencyDaily, MaxMembers: 3, StartDate: future,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateGroupRetriesCodeCollision(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob")
	first := f.newGroup("alice", 3, 100)

	codes := []domain.GroupCode{first.ID, first.ID, "ZZZZ2222"}
	f.eng.newCode = func() (domain.GroupCode, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	g := f.newGroup("bob", 3, 100)
	assert.Equal(t, domain.GroupCode("ZZZZ2222"), g.ID)
}

func TestRandomGroupCode(t *testing.T) {
	seen := make(map[domain.GroupCode]bool)
	for i := 0; i < 200; i++ {
		c, err := randomGroupCode()
		require.NoError(t, err)
		require.True(t, c.Valid(), "invalid code %q", c)
		seen[c] = true
	}
	assert.Greater(t, len(seen), 195)
}

func TestJoinGroup(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob", "carol", "dave")
	g := f.newGroup("alice", 3, 100)

	joined, err := f.svc.Groups.JoinGroup(f.ctx, domain.GroupCode(" "+string(g.ID)+" "), "bob")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), joined.Member("bob").PayoutOrder)
	assert.Equal(t, domain.ContributionPending, joined.Member("bob").ContributionStatus)
	assert.Equal(t, domain.GroupStatusForming, joined.Status)

	t.Run("already member", func(t *testing.T) {
		_, err := f.svc.Groups.JoinGroup(f.ctx, g.ID, "bob")
		assert.ErrorIs(t, err, domain.ErrAlreadyMember)
	})
	t.Run("unknown code", func(t *testing.T) {
		_, err := f.svc.Groups.JoinGroup(f.ctx, "AAAAAAAA", "carol")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	t.Run("unregistered user", func(t *testing.T) {
		_, err := f.svc.Groups.JoinGroup(f.ctx, g.ID, "mallory")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	f.join(g.ID, "carol")
	_, err = f.svc.Groups.JoinGroup(f.ctx, g.ID, "dave")
	assert.ErrorIs(t, err, domain.ErrGroupFull)

	final, err := f.svc.Groups.GetGroup(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, final.Members, 3)
	requireDenseOrder(t, final)

	notes, total, err := f.svc.Notifications.List(f.ctx, "alice", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, domain.NotificationMemberJoined, notes[0].Kind)
	assert.Equal(t, "carol", notes[0].Attributes["member"])
}

func TestJoinGroupConcurrentCapacity(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("admin")
	g := f.newGroup("admin", 5, 100)

	const callers = 12
	var ids []domain.AccountID
	for i := 0; i < callers; i++ {
		id := domain.AccountID(fmt.Sprintf("user-%02d", i))
		ids = append(ids, id)
	}
	f.register(ids...)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		errKind = map[domain.ErrorKind]int{}
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id domain.AccountID) {
			defer wg.Done()
			_, err := f.svc.Groups.JoinGroup(f.ctx, g.ID, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			errKind[domain.KindOf(err)]++
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 4, ok)
	assert.Equal(t, map[domain.ErrorKind]int{domain.KindGroupFull: callers - 4}, errKind)

	final, err := f.svc.Groups.GetGroup(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, final.Members, 5)
	requireDenseOrder(t, final)
}

func TestActivation(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob", "carol")

	t.Run("below floor stays forming", func(t *testing.T) {
		g := f.newGroup("alice", 3, 100)
		f.clock.Advance(2 * time.Hour)
		changed, err := f.svc.Groups.ActivateIfDue(f.ctx, g.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		// the first join after the start date brings it over the floor
		joined, err := f.svc.Groups.JoinGroup(f.ctx, g.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, domain.GroupStatusActive, joined.Status)
		assert.True(t, joined.IsActive)
		assert.Equal(t, uint32(2), joined.TotalCycles)

		// a late joiner extends the rotation
		joined, err = f.svc.Groups.JoinGroup(f.ctx, g.ID, "carol")
		require.NoError(t, err)
		assert.Equal(t, uint32(3), joined.TotalCycles)
		assert.Equal(t, uint32(3), joined.Member("carol").PayoutOrder)
	})

	t.Run("not before start date", func(t *testing.T) {
		g := f.newGroup("alice", 3, 100)
		f.join(g.ID, "bob")
		changed, err := f.svc.Groups.ActivateIfDue(f.ctx, g.ID)
		require.NoError(t, err)
		assert.False(t, changed)

		_, err = f.svc.Processor.Contribute(f.ctx, g.ID, "bob", 100, momo, nil)
		assert.ErrorIs(t, err, domain.ErrGroupClosed)

		f.clock.Advance(time.Hour)
		changed, err = f.svc.Groups.ActivateIfDue(f.ctx, g.ID)
		require.NoError(t, err)
		assert.True(t, changed)

		got, err := f.svc.Groups.GetGroup(f.ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.GroupStatusActive, got.Status)
		assert.Equal(t, uint32(2), got.TotalCycles)

		notes, _, err := f.svc.Notifications.List(f.ctx, "bob", 1, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.NotificationGroupActivated, notes[0].Kind)
	})
}

func TestJoinActiveGroupWaitsForOpenCycle(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob", "carol")
	g := f.newGroup("alice", 3, 100)
	f.join(g.ID, "bob")
	f.clock.Advance(time.Hour)
	changed, err := f.svc.Groups.ActivateIfDue(f.ctx, g.ID)
	require.NoError(t, err)
	require.True(t, changed)

	f.contribute(g.ID, 100, "alice", "bob")
	_, err = f.svc.Groups.JoinGroup(f.ctx, g.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrGroupClosed)

	_, err = f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	_, err = f.svc.Groups.JoinGroup(f.ctx, g.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrGroupClosed)

	// the refused join left the cycle closable
	next, err := f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), next.CurrentCycle)

	joined, err := f.svc.Groups.JoinGroup(f.ctx, g.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), joined.TotalCycles)
	assert.Equal(t, uint32(3), joined.Member("carol").PayoutOrder)

	f.contribute(g.ID, 100, "alice", "bob", "carol")
	next, err = f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(3), next.CurrentCycle)
	assert.True(t, next.Member("bob").HasReceivedPayout)

	bob, err := f.svc.Users.GetUser(f.ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(300), bob.Balance)
	f.requireConserved("alice", "bob", "carol")
}

func TestPayoutAtContributionCap(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob")
	amount := domain.MaxContributionAmount
	g := f.activeGroup(amount, "alice", "bob")
	f.contribute(g.ID, amount, "alice", "bob")

	r, err := f.svc.Processor.WithdrawPayout(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2*amount, r.Transaction.Amount)
	assert.Positive(t, int64(r.Transaction.Amount))
	f.requireConserved("alice", "bob")
}

func TestAdvanceGroupCycle(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob", "carol")
	g := f.activeGroup(100, "alice", "bob", "carol")

	t.Run("admin only", func(t *testing.T) {
		_, err := f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "bob")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
	t.Run("blocked until everyone paid", func(t *testing.T) {
		f.contribute(g.ID, 100, "alice", "bob")
		_, err := f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
		assert.ErrorIs(t, err, domain.ErrBadRequest)
	})

	f.contribute(g.ID, 100, "carol")
	advanced, err := f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), advanced.CurrentCycle)
	assert.True(t, advanced.NextPayoutDate.Equal(g.NextPayoutDate.AddDate(0, 0, 7)))
	for _, m := range advanced.Members {
		assert.Equal(t, domain.ContributionPending, m.ContributionStatus)
	}

	// alice never withdrew, so advancing paid her the pool
	alice := advanced.Member("alice")
	assert.True(t, alice.HasReceivedPayout)
	require.NotNil(t, alice.PayoutDate)
	u, err := f.svc.Users.GetUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(300), u.Balance)

	for cycle := 2; cycle <= 3; cycle++ {
		f.contribute(g.ID, 100, "alice", "bob", "carol")
		_, err := f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
		require.NoError(t, err)
	}

	done, err := f.svc.Groups.GetGroup(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GroupStatusCompleted, done.Status)
	assert.False(t, done.IsActive)
	assert.Equal(t, uint32(4), done.CurrentCycle)
	for _, m := range done.Members {
		assert.True(t, m.HasReceivedPayout, "%s was never paid", m.UserID)
	}
	f.requireConserved("alice", "bob", "carol")

	_, err = f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrGroupClosed)
	_, err = f.svc.Processor.Contribute(f.ctx, g.ID, "bob", 100, momo, nil)
	assert.ErrorIs(t, err, domain.ErrGroupClosed)
	_, err = f.svc.Groups.JoinGroup(f.ctx, g.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestAdvanceGroupCycleSkipPolicy(t *testing.T) {
	f := newFixture(t, config.UnpaidSkip)
	f.register("alice", "bob", "carol")
	g := f.activeGroup(100, "alice", "bob", "carol")

	f.contribute(g.ID, 100, "alice", "bob")
	advanced, err := f.svc.Groups.AdvanceGroupCycle(f.ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), advanced.CurrentCycle)
	assert.Equal(t, uint32(1), advanced.Member("carol").MissedCycles)
	assert.Equal(t, uint32(0), advanced.Member("bob").MissedCycles)

	// the recipient got what was collected
	u, err := f.svc.Users.GetUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(200), u.Balance)

	notes, _, err := f.svc.Notifications.List(f.ctx, "carol", 10, 0)
	require.NoError(t, err)
	var missed bool
	for _, n := range notes {
		if n.Kind == domain.NotificationContributionOverdue {
			missed = true
		}
	}
	assert.True(t, missed)
	f.requireConserved("alice", "bob", "carol")
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob")
	g := f.activeGroup(100, "alice", "bob")
	f.contribute(g.ID, 100, "alice")

	n, err := f.svc.Groups.MarkOverdue(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Advance(8 * 24 * time.Hour)
	n, err = f.svc.Groups.MarkOverdue(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Groups.GetGroup(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContributionOverdue, got.Member("bob").ContributionStatus)
	assert.Equal(t, domain.ContributionPaid, got.Member("alice").ContributionStatus)

	// an overdue member may still pay
	f.contribute(g.ID, 100, "bob")
	got, err = f.svc.Groups.GetGroup(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContributionPaid, got.Member("bob").ContributionStatus)
}

func TestListUserGroups(t *testing.T) {
	f := newFixture(t, config.UnpaidBlock)
	f.register("alice", "bob")
	a := f.newGroup("alice", 3, 100)
	b := f.newGroup("bob", 3, 50)
	f.join(b.ID, "alice")

	groups, err := f.svc.Groups.ListUserGroups(f.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, a.ID, groups[0].ID)
	assert.Equal(t, b.ID, groups[1].ID)
	assert.Len(t, groups[1].Members, 2)
}
