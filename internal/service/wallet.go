package service

import (
	"context"
	"errors"
	"fmt"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/repository"
)

type walletService struct {
	*engine
}

func depositKey(account domain.AccountID, reference string) string {
	return fmt.Sprintf("deposit:%s:%s", account, reference)
}

func (s *walletService) Deposit(ctx context.Context, account domain.AccountID, amount domain.Amount, method domain.PaymentMethod, reference *string) (*domain.Receipt, error) {
	logger.EnterMethod("walletService.Deposit", "accountID", account, "amount", amount)
	if amount <= 0 {
		return nil, domain.BadRequest("invalid amount")
	}
	if err := method.Validate(); err != nil {
		return nil, err
	}

	var receipt *domain.Receipt
	err := s.mutate(ctx, op("deposit", "", account), []lock.Key{lock.AccountKey(account)}, func(r repository.Repositories) error {
		if _, err := r.Users.GetForUpdate(ctx, account); err != nil {
			return err
		}

		var key *string
		if reference != nil && *reference != "" {
			k := depositKey(account, *reference)
			prior, err := r.Ledger.FindByDedupeKey(ctx, k)
			if err == nil {
				if prior.Amount != amount {
					return domain.BadRequest("reference %q was already used for a different amount", *reference)
				}
				receipt = &domain.Receipt{Transaction: *prior, Duplicate: true}
				return nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			key = &k
		}

		tx := &domain.Transaction{
			AccountID: account,
			Kind:      domain.TransactionDeposit,
			Amount:    amount,
			Method:    method,
			Status:    domain.TransactionPending,
			Reference: reference,
			Timestamp: s.now(),
			DedupeKey: key,
		}
		if err := s.appendEntry(ctx, r, tx); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return domain.Busy("deposit %q is already being recorded", *reference)
			}
			return err
		}
		receipt = &domain.Receipt{Transaction: *tx}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("walletService.Deposit", err, "accountID", account)
		return nil, err
	}
	logger.ExitMethod("walletService.Deposit", "transactionID", receipt.Transaction.ID, "duplicate", receipt.Duplicate)
	return receipt, nil
}

func (s *walletService) Withdraw(ctx context.Context, account domain.AccountID, amount domain.Amount, method domain.PaymentMethod) (*domain.Receipt, error) {
	logger.EnterMethod("walletService.Withdraw", "accountID", account, "amount", amount)
	if amount <= 0 {
		return nil, domain.BadRequest("invalid amount")
	}
	if err := method.Validate(); err != nil {
		return nil, err
	}

	var receipt *domain.Receipt
	err := s.mutate(ctx, op("withdraw", "", account), []lock.Key{lock.AccountKey(account)}, func(r repository.Repositories) error {
		if _, err := r.Users.GetForUpdate(ctx, account); err != nil {
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
		if available := balance - held; amount > available {
			return domain.InsufficientFunds("requested %d but only %d is available", amount, available)
		}

		tx := &domain.Transaction{
			AccountID: account,
			Kind:      domain.TransactionWithdraw,
			Amount:    amount,
			Method:    method,
			Status:    domain.TransactionPending,
			Timestamp: s.now(),
		}
		if err := s.appendEntry(ctx, r, tx); err != nil {
			return err
		}
		receipt = &domain.Receipt{Transaction: *tx}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("walletService.Withdraw", err, "accountID", account)
		return nil, err
	}
	logger.ExitMethod("walletService.Withdraw", "transactionID", receipt.Transaction.ID)
	return receipt, nil
}

func (s *walletService) ConfirmSettlement(ctx context.Context, ref string, outcome domain.TransactionStatus) (*domain.Receipt, error) {
	logger.EnterMethod("walletService.ConfirmSettlement", "ref", ref, "outcome", outcome)
	logger.ExternalServiceCall("payment-gateway", "confirmSettlement", "ref", ref, "outcome", outcome)
	if ref == "" {
		return nil, domain.BadRequest("settlement reference is required")
	}
	if !outcome.IsTerminal() {
		return nil, domain.BadRequest("settlement outcome must be completed, failed or cancelled")
	}

	target, err := s.findSettlementTarget(ctx, ref)
	if err != nil {
		s.finish(op("confirmSettlement", "", ""), err)
		logger.ExternalServiceResult("payment-gateway", "confirmSettlement", err, "ref", ref)
		return nil, err
	}

	var group domain.GroupCode
	if target.GroupID != nil {
		group = *target.GroupID
	}
	var receipt *domain.Receipt
	err = s.mutate(ctx, op("confirmSettlement", group, target.AccountID), []lock.Key{lock.AccountKey(target.AccountID)}, func(r repository.Repositories) error {
		current, err := r.Ledger.GetByID(ctx, target.ID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			if current.Status == outcome {
				receipt = &domain.Receipt{Transaction: *current, Duplicate: true}
				return nil
			}
			return domain.BadRequest("transaction %s is already %s", current.ID, current.Status)
		}
		if current.Kind != domain.TransactionDeposit && current.Kind != domain.TransactionWithdraw {
			return domain.BadRequest("transaction %s is not awaiting external settlement", current.ID)
		}

		settled, err := r.Ledger.Settle(ctx, current.ID, outcome, s.now())
		if err != nil {
			return err
		}
		s.Metrics.ObserveLedgerEntry(settled.Kind, settled.Status)

		msg := fmt.Sprintf("Your %s of %d is %s.", settled.Kind, settled.Amount, settled.Status)
		if err := s.notify(ctx, r, settled.AccountID, nil, domain.NotificationSettlement, "Settlement update", msg, map[string]string{
			"transaction_id": settled.ID,
			"status":         string(settled.Status),
		}); err != nil {
			return err
		}
		receipt = &domain.Receipt{Transaction: *settled}
		return nil
	})
	logger.ExternalServiceResult("payment-gateway", "confirmSettlement", err, "ref", ref)
	if err != nil {
		logger.ExitMethodWithError("walletService.ConfirmSettlement", err, "ref", ref)
		return nil, err
	}
	logger.ExitMethod("walletService.ConfirmSettlement", "transactionID", receipt.Transaction.ID, "status", receipt.Transaction.Status)
	return receipt, nil
}

// findSettlementTarget resolves a gateway reference, falling back to
// treating ref as a transaction id.
func (s *walletService) findSettlementTarget(ctx context.Context, ref string) (*domain.Transaction, error) {
	repos := s.Store.Repos()
	tx, err := repos.Ledger.FindByReference(ctx, ref)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	tx, err = repos.Ledger.GetByID(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.NotFound("no transaction for settlement reference %q", ref)
	}
	return tx, err
}

func (s *walletService) CancelStale(ctx context.Context, id string) (bool, error) {
	tx, err := s.Store.Repos().Ledger.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	var cancelled bool
	err = s.mutate(ctx, op("cancelStale", "", tx.AccountID), []lock.Key{lock.AccountKey(tx.AccountID)}, func(r repository.Repositories) error {
		current, err := r.Ledger.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != domain.TransactionPending {
			return nil
		}
		settled, err := r.Ledger.Settle(ctx, id, domain.TransactionCancelled, s.now())
		if err != nil {
			return err
		}
		s.Metrics.ObserveLedgerEntry(settled.Kind, settled.Status)
		cancelled = true
		msg := fmt.Sprintf("Your %s of %d was cancelled because it was not confirmed in time.", settled.Kind, settled.Amount)
		return s.notify(ctx, r, settled.AccountID, nil, domain.NotificationSettlement, "Settlement expired", msg, map[string]string{
			"transaction_id": settled.ID,
			"status":         string(settled.Status),
		})
	})
	return cancelled, err
}
