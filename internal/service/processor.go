package service

import (
	"context"
	"errors"
	"fmt"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/repository"
)

// payoutMethod tags payouts, which settle on the internal ledger in the
// settlement currency.
var payoutMethod = domain.PaymentMethod{Type: domain.PaymentCrypto}

type processorService struct {
	*engine
}

func (s *processorService) Contribute(ctx context.Context, code domain.GroupCode, account domain.AccountID, amount domain.Amount,
	method domain.PaymentMethod, reference *string) (*domain.Receipt, error) {
	logger.EnterMethod("processorService.Contribute", "groupID", code, "accountID", account, "amount", amount)
	code = domain.NormalizeGroupCode(string(code))

	var receipt *domain.Receipt
	err := s.mutate(ctx, op("contribute", code, account), []lock.Key{lock.GroupKey(code), lock.AccountKey(account)}, func(r repository.Repositories) error {
		g, err := r.Groups.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if _, err := s.activateIfDue(ctx, r, g); err != nil {
			return err
		}
		if g.Status != domain.GroupStatusActive {
			return domain.GroupClosed("group %s is not accepting contributions (%s)", code, g.Status)
		}
		m := g.Member(account)
		if m == nil {
			return domain.Unauthorized("not a member of group %s", code)
		}
		if amount != g.ContributionAmount {
			return domain.BadRequest("contribution must be exactly %d", g.ContributionAmount)
		}
		if err := method.Validate(); err != nil {
			return err
		}

		key := domain.ContributionKey(g.ID, account, g.CurrentCycle)
		prior, err := r.Ledger.FindByDedupeKey(ctx, key)
		if err == nil {
			receipt = &domain.Receipt{Transaction: *prior, Duplicate: true}
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if rc := g.Recipient(); rc != nil && rc.HasReceivedPayout {
			return domain.BadRequest("the pool for cycle %d has already been paid out", g.CurrentCycle)
		}

		cycle := g.CurrentCycle
		tx := &domain.Transaction{
			AccountID: account,
			Kind:      domain.TransactionGroupContribution,
			Amount:    amount,
			Method:    method,
			Status:    domain.TransactionCompleted,
			Reference: reference,
			Timestamp: s.now(),
			GroupID:   &g.ID,
			Cycle:     &cycle,
			DedupeKey: &key,
		}
		tx.SettledAt = &tx.Timestamp
		if err := s.appendEntry(ctx, r, tx); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return domain.Busy("contribution for cycle %d is already being recorded", cycle)
			}
			return err
		}

		m.ContributionStatus = domain.ContributionPaid
		if err := r.Groups.UpdateMember(ctx, g.ID, m); err != nil {
			return err
		}

		if rc := g.Recipient(); rc != nil && g.AllPaid() {
			msg := fmt.Sprintf("Everyone in %s has contributed. Your payout of %d is ready.", g.Name, g.FullPool())
			if err := s.notify(ctx, r, rc.UserID, &g.ID, domain.NotificationPayoutReady, "Payout ready", msg, map[string]string{
				"cycle":  fmt.Sprint(cycle),
				"amount": fmt.Sprint(int64(g.FullPool())),
			}); err != nil {
				return err
			}
		}
		receipt = &domain.Receipt{Transaction: *tx}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("processorService.Contribute", err, "groupID", code, "accountID", account)
		return nil, err
	}
	logger.ExitMethod("processorService.Contribute", "transactionID", receipt.Transaction.ID, "duplicate", receipt.Duplicate)
	return receipt, nil
}

func (s *processorService) WithdrawPayout(ctx context.Context, code domain.GroupCode, account domain.AccountID) (*domain.Receipt, error) {
	logger.EnterMethod("processorService.WithdrawPayout", "groupID", code, "accountID", account)
	code = domain.NormalizeGroupCode(string(code))

	var receipt *domain.Receipt
	err := s.mutate(ctx, op("withdrawPayout", code, account), []lock.Key{lock.GroupKey(code), lock.AccountKey(account)}, func(r repository.Repositories) error {
		g, err := r.Groups.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if _, err := s.activateIfDue(ctx, r, g); err != nil {
			return err
		}
		if g.Status != domain.GroupStatusActive {
			return domain.GroupClosed("group %s is not paying out (%s)", code, g.Status)
		}
		m := g.Member(account)
		if m == nil {
			return domain.Unauthorized("not a member of group %s", code)
		}
		if m.PayoutOrder != g.CurrentCycle {
			return domain.Unauthorized("it is not your turn: your payout is cycle %d, current cycle is %d", m.PayoutOrder, g.CurrentCycle)
		}
		if m.HasReceivedPayout {
			return domain.AlreadyPaidOut("payout for group %s already received", code)
		}

		tx, err := s.disburse(ctx, r, g, m)
		if err != nil {
			return err
		}
		if tx == nil {
			return domain.BadRequest("nothing has been collected for cycle %d", g.CurrentCycle)
		}
		receipt = &domain.Receipt{Transaction: *tx}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("processorService.WithdrawPayout", err, "groupID", code, "accountID", account)
		return nil, err
	}
	logger.ExitMethod("processorService.WithdrawPayout", "transactionID", receipt.Transaction.ID, "amount", receipt.Transaction.Amount)
	return receipt, nil
}

// payoutAmount is the pool owed to this cycle's recipient. Under the block
// policy it is the full pool and every member must have paid; under skip it
// is whatever was collected.
func (e *engine) payoutAmount(ctx context.Context, r repository.Repositories, g *domain.Group) (domain.Amount, error) {
	if e.Engine.UnpaidPolicy == config.UnpaidSkip {
		return r.Ledger.CollectedForCycle(ctx, g.ID, g.CurrentCycle)
	}
	if !g.AllPaid() {
		return 0, domain.BadRequest("the pool for cycle %d is incomplete: %d of %d members have contributed",
			g.CurrentCycle, g.PaidCount(), len(g.Members))
	}
	return g.FullPool(), nil
}

// disburse pays the current cycle's pool to m and marks m paid out. It
// returns nil without writing when nothing was collected.
func (e *engine) disburse(ctx context.Context, r repository.Repositories, g *domain.Group, m *domain.Member) (*domain.Transaction, error) {
	amount, err := e.payoutAmount(ctx, r, g)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, nil
	}

	now := e.now()
	cycle := g.CurrentCycle
	key := domain.PayoutKey(g.ID, m.UserID, cycle)
	tx := &domain.Transaction{
		AccountID: m.UserID,
		Kind:      domain.TransactionGroupPayout,
		Amount:    amount,
		Method:    payoutMethod,
		Status:    domain.TransactionCompleted,
		Timestamp: now,
		GroupID:   &g.ID,
		Cycle:     &cycle,
		DedupeKey: &key,
		SettledAt: &now,
	}
	if err := e.appendEntry(ctx, r, tx); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.AlreadyPaidOut("payout for cycle %d already recorded", cycle)
		}
		return nil, err
	}

	m.HasReceivedPayout = true
	m.PayoutDate = &now
	if err := r.Groups.UpdateMember(ctx, g.ID, m); err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("You received %d from %s for cycle %d.", amount, g.Name, cycle)
	if err := e.notify(ctx, r, m.UserID, &g.ID, domain.NotificationPayoutReceived, "Payout received", msg, map[string]string{
		"cycle":          fmt.Sprint(cycle),
		"amount":         fmt.Sprint(int64(amount)),
		"transaction_id": tx.ID,
	}); err != nil {
		return nil, err
	}
	logger.Info("Payout disbursed", "groupID", g.ID, "accountID", m.UserID, "cycle", cycle, "amount", amount)
	return tx, nil
}
