package service

import (
	"context"
	"sort"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/repository"
)

type queryService struct {
	*engine
}

// GetDashboard assembles the caller's view from one read snapshot, so every
// figure reflects the same committed state.
func (s *queryService) GetDashboard(ctx context.Context, account domain.AccountID) (*domain.Dashboard, error) {
	var d *domain.Dashboard
	err := s.read(ctx, op("getDashboard", "", account), func(r repository.Repositories) error {
		user, err := r.Users.GetByID(ctx, account)
		if err != nil {
			return err
		}
		balance, err := r.Ledger.BalanceOf(ctx, account)
		if err != nil {
			return err
		}
		held, err := r.Ledger.HeldAmount(ctx, account)
		if err != nil {
			return err
		}
		groups, err := r.Groups.ListByMember(ctx, account)
		if err != nil {
			return err
		}
		recent, err := r.Ledger.History(ctx, account, domain.HistoryFilter{Limit: s.Engine.RecentTransactions})
		if err != nil {
			return err
		}
		summary, err := r.Ledger.Summary(ctx, account)
		if err != nil {
			return err
		}

		active := []domain.Group{}
		for _, g := range groups {
			if g.Status != domain.GroupStatusCompleted {
				active = append(active, g)
			}
		}

		d = &domain.Dashboard{
			User:               *user,
			TotalBalance:       balance,
			AvailableBalance:   balance - held,
			ActiveGroups:       active,
			UpcomingActivities: upcomingActivities(account, active, s.Engine.UpcomingActivities),
			RecentTransactions: recent.Transactions,
			Savings:            *summary,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// upcomingActivities derives what the caller owes or is owed next, soonest
// first, at most limit entries.
func upcomingActivities(account domain.AccountID, groups []domain.Group, limit int) []domain.Activity {
	out := []domain.Activity{}
	for i := range groups {
		g := &groups[i]
		if g.Status != domain.GroupStatusActive {
			continue
		}
		m := g.Member(account)
		if m == nil {
			continue
		}
		if m.ContributionStatus != domain.ContributionPaid {
			out = append(out, domain.Activity{
				Kind:      domain.ActivityContribution,
				GroupID:   g.ID,
				GroupName: g.Name,
				Amount:    g.ContributionAmount,
				DueDate:   g.NextPayoutDate,
				Cycle:     g.CurrentCycle,
			})
		}
		if m.PayoutOrder == g.CurrentCycle && !m.HasReceivedPayout {
			out = append(out, domain.Activity{
				Kind:      domain.ActivityPayout,
				GroupID:   g.ID,
				GroupName: g.Name,
				Amount:    g.FullPool(),
				DueDate:   g.NextPayoutDate,
				Cycle:     g.CurrentCycle,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		// contributions fall due before the payout they fund
		return out[i].Kind == domain.ActivityContribution && out[j].Kind == domain.ActivityPayout
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
