package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
)

type userRepository struct {
	c conn
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (id, wallet_kind, balance, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	logger.DatabaseCall("INSERT", "users", "userID", u.ID)
	_, err := r.c.exec(ctx, query, string(u.ID), string(u.WalletKind), int64(u.Balance), toNanos(u.CreatedAt), toNanos(u.UpdatedAt))
	logger.DatabaseResult("INSERT", 1, err, "userID", u.ID)
	if err != nil {
		if r.c.d.isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return domain.Internal(err, "failed to create user")
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id domain.AccountID) (*domain.User, error) {
	return r.get(ctx, id, "")
}

func (r *userRepository) GetForUpdate(ctx context.Context, id domain.AccountID) (*domain.User, error) {
	return r.get(ctx, id, r.c.lockSuffix())
}

func (r *userRepository) get(ctx context.Context, id domain.AccountID, suffix string) (*domain.User, error) {
	query := `SELECT id, wallet_kind, balance, created_at, updated_at FROM users WHERE id = ?` + suffix
	var (
		u                  domain.User
		walletKind         string
		balance            int64
		createdAt, updated int64
	)
	err := r.c.queryRow(ctx, query, string(id)).Scan(&u.ID, &walletKind, &balance, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, domain.Internal(err, "failed to get user")
	}
	u.WalletKind = domain.WalletKind(walletKind)
	u.Balance = domain.Amount(balance)
	u.CreatedAt = fromNanos(createdAt)
	u.UpdatedAt = fromNanos(updated)
	return &u, nil
}
