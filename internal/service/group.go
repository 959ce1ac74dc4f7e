package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/repository"
)

const maxCodeAttempts = 10

type groupService struct {
	*engine
}

func validateGroupSpec(spec domain.CreateGroupSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return domain.BadRequest("group name is required")
	}
	if spec.MaxMembers < domain.MinGroupMembers {
		return domain.BadRequest("a group needs at least %d members", domain.MinGroupMembers)
	}
	if spec.MaxMembers > domain.MaxGroupMembers {
		return domain.BadRequest("a group allows at most %d members", domain.MaxGroupMembers)
	}
	if spec.ContributionAmount <= 0 {
		return domain.BadRequest("contribution amount must be positive")
	}
	if spec.ContributionAmount > domain.MaxContributionAmount {
		return domain.BadRequest("contribution amount may not exceed %d", domain.MaxContributionAmount)
	}
	if !spec.Frequency.Valid() {
		return domain.BadRequest("unknown frequency %q", spec.Frequency)
	}
	return nil
}

func (s *groupService) CreateGroup(ctx context.Context, admin domain.AccountID, spec domain.CreateGroupSpec) (*domain.Group, error) {
	logger.EnterMethod("groupService.CreateGroup", "admin", admin, "name", spec.Name, "maxMembers", spec.MaxMembers)
	if err := validateGroupSpec(spec); err != nil {
		logger.ExitMethodWithError("groupService.CreateGroup", err)
		return nil, err
	}
	now := s.now()
	if spec.StartDate.Before(now) {
		err := domain.BadRequest("start date is in the past")
		logger.ExitMethodWithError("groupService.CreateGroup", err)
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, domain.Internal(err, "failed to allocate group code")
		}

		var group *domain.Group
		err = s.mutate(ctx, op("createGroup", code, admin), []lock.Key{lock.GroupKey(code), lock.AccountKey(admin)}, func(r repository.Repositories) error {
			if _, err := r.Users.GetByID(ctx, admin); err != nil {
				return err
			}
			_, err := r.Groups.GetByID(ctx, code)
			if err == nil {
				return domain.ErrDuplicate
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}

			g := &domain.Group{
				ID:                 code,
				Name:               strings.TrimSpace(spec.Name),
				Description:        spec.Description,
				Admin:              admin,
				ContributionAmount: spec.ContributionAmount,
				Frequency:          spec.Frequency,
				MaxMembers:         spec.MaxMembers,
				StartDate:          spec.StartDate.UTC(),
				CurrentCycle:       1,
				TotalCycles:        spec.MaxMembers,
				NextPayoutDate:     spec.Frequency.Next(spec.StartDate.UTC()),
				Status:             domain.GroupStatusForming,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := r.Groups.Create(ctx, g); err != nil {
				return err
			}
			m := domain.Member{
				UserID:             admin,
				JoinedAt:           now,
				PayoutOrder:        1,
				ContributionStatus: domain.ContributionPending,
			}
			if err := r.Groups.AddMember(ctx, code, &m); err != nil {
				return err
			}
			g.Members = []domain.Member{m}
			group = g
			return nil
		})
		if errors.Is(err, domain.ErrDuplicate) {
			logger.Debug("Group code collision, retrying", "code", code, "attempt", attempt+1)
			continue
		}
		if err != nil {
			logger.ExitMethodWithError("groupService.CreateGroup", err)
			return nil, err
		}
		logger.Info("Group created", "groupID", group.ID, "admin", admin)
		logger.ExitMethod("groupService.CreateGroup", "groupID", group.ID)
		return group, nil
	}
	err := domain.Internal(nil, "could not allocate a unique group code after %d attempts", maxCodeAttempts)
	s.finish(op("createGroup", "", admin), err)
	return nil, err
}

func (s *groupService) JoinGroup(ctx context.Context, code domain.GroupCode, account domain.AccountID) (*domain.Group, error) {
	logger.EnterMethod("groupService.JoinGroup", "groupID", code, "accountID", account)
	code = domain.NormalizeGroupCode(string(code))

	var group *domain.Group
	err := s.mutate(ctx, op("joinGroup", code, account), []lock.Key{lock.GroupKey(code), lock.AccountKey(account)}, func(r repository.Repositories) error {
		g, err := r.Groups.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if _, err := r.Users.GetByID(ctx, account); err != nil {
			return err
		}
		if _, err := s.activateIfDue(ctx, r, g); err != nil {
			return err
		}

		if g.Status == domain.GroupStatusCompleted {
			return domain.BadRequest("group %s has completed", code)
		}
		if g.Member(account) != nil {
			return domain.AlreadyMember("already a member of group %s", code)
		}
		if g.IsFull() {
			return domain.GroupFull("group %s is full", code)
		}
		if g.Status == domain.GroupStatusActive && cycleFunded(g) {
			return domain.GroupClosed("cycle %d of group %s is already being funded, join after it closes", g.CurrentCycle, code)
		}

		now := s.now()
		m := domain.Member{
			UserID:             account,
			JoinedAt:           now,
			PayoutOrder:        uint32(len(g.Members)) + 1,
			ContributionStatus: domain.ContributionPending,
		}
		if err := r.Groups.AddMember(ctx, code, &m); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return domain.Busy("group %s changed concurrently", code)
			}
			return err
		}
		g.Members = append(g.Members, m)

		if g.Status == domain.GroupStatusActive {
			// a late joiner still gets a turn
			g.TotalCycles = uint32(len(g.Members))
			g.UpdatedAt = now
			if err := r.Groups.Update(ctx, g); err != nil {
				return err
			}
		} else if _, err := s.activateIfDue(ctx, r, g); err != nil {
			return err
		}

		if account != g.Admin {
			msg := fmt.Sprintf("A new member joined %s (%d of %d).", g.Name, len(g.Members), g.MaxMembers)
			if err := s.notify(ctx, r, g.Admin, &g.ID, domain.NotificationMemberJoined, "New member", msg, map[string]string{
				"member":       string(account),
				"payout_order": fmt.Sprint(m.PayoutOrder),
			}); err != nil {
				return err
			}
		}
		group = g
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("groupService.JoinGroup", err, "groupID", code, "accountID", account)
		return nil, err
	}
	logger.ExitMethod("groupService.JoinGroup", "groupID", code, "payoutOrder", len(group.Members))
	return group, nil
}

// cycleFunded reports whether the current cycle has taken any contribution
// or paid out. A member added now could never settle that cycle.
func cycleFunded(g *domain.Group) bool {
	if g.PaidCount() > 0 {
		return true
	}
	rc := g.Recipient()
	return rc != nil && rc.HasReceivedPayout
}

func (s *groupService) GetGroup(ctx context.Context, code domain.GroupCode) (*domain.Group, error) {
	code = domain.NormalizeGroupCode(string(code))
	var group *domain.Group
	err := s.read(ctx, op("getGroup", code, ""), func(r repository.Repositories) error {
		g, err := r.Groups.GetByID(ctx, code)
		group = g
		return err
	})
	return group, err
}

func (s *groupService) ListUserGroups(ctx context.Context, account domain.AccountID) ([]domain.Group, error) {
	var groups []domain.Group
	err := s.read(ctx, op("listUserGroups", "", account), func(r repository.Repositories) error {
		gs, err := r.Groups.ListByMember(ctx, account)
		groups = gs
		return err
	})
	return groups, err
}

func (s *groupService) AdvanceGroupCycle(ctx context.Context, code domain.GroupCode, caller domain.AccountID) (*domain.Group, error) {
	logger.EnterMethod("groupService.AdvanceGroupCycle", "groupID", code, "caller", caller)
	code = domain.NormalizeGroupCode(string(code))

	// the recipient's account lock must be taken with the group lock, so
	// find out who it is first and confirm it once the group is locked
	pre, err := s.Store.Repos().Groups.GetByID(ctx, code)
	if err != nil {
		s.finish(op("advanceGroupCycle", code, caller), err)
		logger.ExitMethodWithError("groupService.AdvanceGroupCycle", err, "groupID", code)
		return nil, err
	}
	keys := []lock.Key{lock.GroupKey(code)}
	var expected domain.AccountID
	if rc := pre.Recipient(); rc != nil {
		expected = rc.UserID
		keys = append(keys, lock.AccountKey(rc.UserID))
	}

	var group *domain.Group
	err = s.mutate(ctx, op("advanceGroupCycle", code, caller), keys, func(r repository.Repositories) error {
		g, err := r.Groups.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if g.Admin != caller {
			return domain.Unauthorized("only the group admin can advance the cycle")
		}
		if _, err := s.activateIfDue(ctx, r, g); err != nil {
			return err
		}
		if g.Status != domain.GroupStatusActive {
			return domain.GroupClosed("group %s is %s", code, g.Status)
		}
		if s.Engine.UnpaidPolicy == config.UnpaidBlock && !g.AllPaid() {
			return domain.BadRequest("%d of %d members have not contributed for cycle %d",
				len(g.Members)-g.PaidCount(), len(g.Members), g.CurrentCycle)
		}

		if recipient := g.Recipient(); recipient != nil && !recipient.HasReceivedPayout {
			if recipient.UserID != expected {
				return domain.Busy("group %s changed concurrently", code)
			}
			if _, err := s.disburse(ctx, r, g, recipient); err != nil {
				return err
			}
		}

		if err := s.rollover(ctx, r, g); err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("groupService.AdvanceGroupCycle", err, "groupID", code)
		return nil, err
	}
	logger.ExitMethod("groupService.AdvanceGroupCycle", "groupID", code, "cycle", group.CurrentCycle, "status", group.Status)
	return group, nil
}

// rollover closes the current cycle: unpaid members are penalised, everyone
// is reset to pending and the group moves on or completes.
func (s *groupService) rollover(ctx context.Context, r repository.Repositories, g *domain.Group) error {
	now := s.now()
	closed := g.CurrentCycle
	for i := range g.Members {
		m := &g.Members[i]
		missed := m.ContributionStatus != domain.ContributionPaid
		if missed {
			m.MissedCycles++
		}
		m.ContributionStatus = domain.ContributionPending
		if err := r.Groups.UpdateMember(ctx, g.ID, m); err != nil {
			return err
		}
		if missed {
			msg := fmt.Sprintf("You missed your contribution to %s for cycle %d.", g.Name, closed)
			if err := s.notify(ctx, r, m.UserID, &g.ID, domain.NotificationContributionOverdue, "Missed contribution", msg, map[string]string{
				"cycle":         fmt.Sprint(closed),
				"missed_cycles": fmt.Sprint(m.MissedCycles),
			}); err != nil {
				return err
			}
		}
	}

	g.CurrentCycle++
	g.NextPayoutDate = g.Frequency.Next(g.NextPayoutDate)
	if g.CurrentCycle > g.TotalCycles {
		g.Status = domain.GroupStatusCompleted
		g.IsActive = false
	}
	g.UpdatedAt = now
	if err := r.Groups.Update(ctx, g); err != nil {
		return err
	}

	for _, m := range g.Members {
		msg := fmt.Sprintf("%s moved to cycle %d.", g.Name, g.CurrentCycle)
		if g.Status == domain.GroupStatusCompleted {
			msg = fmt.Sprintf("%s has completed all %d cycles.", g.Name, g.TotalCycles)
		}
		if err := s.notify(ctx, r, m.UserID, &g.ID, domain.NotificationCycleAdvanced, "Cycle advanced", msg, map[string]string{
			"cycle":  fmt.Sprint(g.CurrentCycle),
			"status": string(g.Status),
		}); err != nil {
			return err
		}
	}
	logger.Info("Group cycle advanced", "groupID", g.ID, "closedCycle", closed, "status", g.Status)
	return nil
}

func (s *groupService) ActivateIfDue(ctx context.Context, code domain.GroupCode) (bool, error) {
	var changed bool
	err := s.mutate(ctx, op("activateGroup", code, ""), []lock.Key{lock.GroupKey(code)}, func(r repository.Repositories) error {
		g, err := r.Groups.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		changed, err = s.activateIfDue(ctx, r, g)
		return err
	})
	return changed, err
}

func (s *groupService) MarkOverdue(ctx context.Context, code domain.GroupCode) (int, error) {
	var marked int
	err := s.mutate(ctx, op("markOverdue", code, ""), []lock.Key{lock.GroupKey(code)}, func(r repository.Repositories) error {
		marked = 0
		g, err := r.Groups.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if g.Status != domain.GroupStatusActive || !s.now().After(g.NextPayoutDate) {
			return nil
		}
		for i := range g.Members {
			m := &g.Members[i]
			if m.ContributionStatus != domain.ContributionPending {
				continue
			}
			m.ContributionStatus = domain.ContributionOverdue
			if err := r.Groups.UpdateMember(ctx, g.ID, m); err != nil {
				return err
			}
			msg := fmt.Sprintf("Your contribution of %d to %s for cycle %d is overdue.", g.ContributionAmount, g.Name, g.CurrentCycle)
			if err := s.notify(ctx, r, m.UserID, &g.ID, domain.NotificationContributionOverdue, "Contribution overdue", msg, map[string]string{
				"cycle": fmt.Sprint(g.CurrentCycle),
			}); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	return marked, err
}
