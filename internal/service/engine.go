package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/repository"
)

type engine struct {
	Deps
	newCode func() (domain.GroupCode, error)
}

func newEngine(d Deps) *engine {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Engine.LockTimeout == 0 {
		d.Engine.LockTimeout = 2 * time.Second
	}
	if d.Engine.MinMembersToActivate == 0 {
		d.Engine.MinMembersToActivate = domain.MinGroupMembers
	}
	if d.Engine.UnpaidPolicy == "" {
		d.Engine.UnpaidPolicy = config.UnpaidBlock
	}
	if d.Engine.RecentTransactions == 0 {
		d.Engine.RecentTransactions = 5
	}
	if d.Engine.UpcomingActivities == 0 {
		d.Engine.UpcomingActivities = 3
	}
	if d.Locks == nil {
		d.Locks = lock.NewManager(d.Engine.LockTimeout, d.Metrics.ObserveLockWait)
	}
	return &engine{Deps: d, newCode: randomGroupCode}
}

func (e *engine) now() time.Time {
	return e.Clock().UTC()
}

// operation names an engine call and the group and account it touches.
type operation struct {
	name    string
	group   domain.GroupCode
	account domain.AccountID
}

func op(name string, group domain.GroupCode, account domain.AccountID) operation {
	return operation{name: name, group: group, account: account}
}

// mutate takes keys, then runs fn as one database transaction. The locks are
// held until the transaction has committed or rolled back.
func (e *engine) mutate(ctx context.Context, op operation, keys []lock.Key, fn func(r repository.Repositories) error) (err error) {
	defer func() { e.finish(op, err) }()

	release, err := e.Locks.Acquire(ctx, keys...)
	if err != nil {
		return err
	}
	defer release()

	return e.Store.WithTx(ctx, fn)
}

// read runs fn against one consistent snapshot.
func (e *engine) read(ctx context.Context, op operation, fn func(r repository.Repositories) error) (err error) {
	defer func() { e.finish(op, err) }()
	return e.Store.ReadTx(ctx, fn)
}

func (e *engine) finish(op operation, err error) {
	e.Metrics.ObserveOperation(op.name, err)
	if err != nil && !errors.Is(err, domain.ErrDuplicate) && domain.KindOf(err) == domain.KindInternal {
		logger.WithOperation(op.name, string(op.group), string(op.account)).Error("Engine operation failed", "error", err)
	}
}

func (e *engine) notify(ctx context.Context, r repository.Repositories, user domain.AccountID, group *domain.GroupCode,
	kind domain.NotificationKind, title, message string, attrs map[string]string) error {
	n := &domain.Notification{
		UserID:     user,
		GroupID:    group,
		Kind:       kind,
		Title:      title,
		Message:    message,
		Attributes: attrs,
		CreatedAt:  e.now(),
	}
	return r.Notifications.Create(ctx, n)
}

// appendEntry writes tx and counts it.
func (e *engine) appendEntry(ctx context.Context, r repository.Repositories, tx *domain.Transaction) error {
	if err := r.Ledger.Append(ctx, tx); err != nil {
		return err
	}
	e.Metrics.ObserveLedgerEntry(tx.Kind, tx.Status)
	return nil
}

// activateIfDue applies the forming to active transition in place and
// persists it. It reports whether the group changed.
func (e *engine) activateIfDue(ctx context.Context, r repository.Repositories, g *domain.Group) (bool, error) {
	if g.Status != domain.GroupStatusForming {
		return false, nil
	}
	now := e.now()
	if now.Before(g.StartDate) || len(g.Members) < e.Engine.MinMembersToActivate {
		return false, nil
	}

	g.Status = domain.GroupStatusActive
	g.IsActive = true
	g.TotalCycles = uint32(len(g.Members))
	g.UpdatedAt = now
	if err := r.Groups.Update(ctx, g); err != nil {
		return false, err
	}

	logger.Info("Group activated", "groupID", g.ID, "members", len(g.Members), "totalCycles", g.TotalCycles)
	for _, m := range g.Members {
		msg := fmt.Sprintf("%s is now active. Your payout turn is cycle %d.", g.Name, m.PayoutOrder)
		if err := e.notify(ctx, r, m.UserID, &g.ID, domain.NotificationGroupActivated, "Group activated", msg, map[string]string{
			"payout_order": fmt.Sprint(m.PayoutOrder),
		}); err != nil {
			return false, err
		}
	}
	return true, nil
}

// randomGroupCode draws GroupCodeLength symbols uniformly from the alphabet.
func randomGroupCode() (domain.GroupCode, error) {
	const n = len(domain.GroupCodeAlphabet)
	// largest multiple of n that fits in a byte, to avoid modulo bias
	const limit = 256 - 256%n
	out := make([]byte, 0, domain.GroupCodeLength)
	buf := make([]byte, domain.GroupCodeLength*2)
	for len(out) < domain.GroupCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, domain.GroupCodeAlphabet[int(b)%n])
			if len(out) == domain.GroupCodeLength {
				break
			}
		}
	}
	return domain.GroupCode(out), nil
}
