package service

import (
	"context"
	"errors"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/logger"
	"susu-ledger-backend/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type userService struct {
	*engine
}

func (s *userService) RegisterUser(ctx context.Context, account domain.AccountID, walletKind domain.WalletKind) (*domain.User, error) {
	logger.EnterMethod("userService.RegisterUser", "accountID", account, "walletKind", walletKind)
	if account == "" {
		return nil, domain.Unauthorized("missing caller identity")
	}
	if !walletKind.Valid() {
		return nil, domain.BadRequest("unknown wallet kind %q", walletKind)
	}

	var (
		user    *domain.User
		created bool
	)
	err := s.mutate(ctx, op("registerUser", "", account), []lock.Key{lock.AccountKey(account)}, func(r repository.Repositories) error {
		existing, err := r.Users.GetByID(ctx, account)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := s.now()
		u := &domain.User{ID: account, WalletKind: walletKind, CreatedAt: now, UpdatedAt: now}
		if err := r.Users.Create(ctx, u); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return domain.Busy("account %s is being registered", account)
			}
			return err
		}
		user, created = u, true
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("userService.RegisterUser", err, "accountID", account)
		return nil, err
	}

	if created {
		logger.Info("User registered", "accountID", account, "walletKind", walletKind)
	}
	logger.ExitMethod("userService.RegisterUser", "accountID", account, "created", created)
	return user, nil
}

func (s *userService) GetUser(ctx context.Context, account domain.AccountID) (*domain.User, error) {
	var user *domain.User
	err := s.read(ctx, op("getUser", "", account), func(r repository.Repositories) error {
		u, err := r.Users.GetByID(ctx, account)
		user = u
		return err
	})
	return user, err
}

func (s *userService) GetUserTransactions(ctx context.Context, account domain.AccountID, filter domain.HistoryFilter) (*domain.HistoryPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	if filter.Kind != nil && !filter.Kind.Valid() {
		return nil, domain.BadRequest("unknown transaction kind %q", *filter.Kind)
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, domain.BadRequest("unknown transaction status %q", *filter.Status)
	}

	var page *domain.HistoryPage
	err := s.read(ctx, op("getUserTransactions", "", account), func(r repository.Repositories) error {
		if _, err := r.Users.GetByID(ctx, account); err != nil {
			return err
		}
		p, err := r.Ledger.History(ctx, account, filter)
		page = p
		return err
	})
	return page, err
}
