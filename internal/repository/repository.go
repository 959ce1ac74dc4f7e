package repository

import (
	"context"
	"time"

	"susu-ledger-backend/internal/domain"
)

// Lookups that miss return a domain NotFound error. Writes that collide with
// a unique key return domain.ErrDuplicate.

type UserRepository interface {
	// Create inserts u, or returns domain.ErrDuplicate if the id is taken.
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id domain.AccountID) (*domain.User, error)
	// GetForUpdate is GetByID plus a row lock when the dialect supports one.
	GetForUpdate(ctx context.Context, id domain.AccountID) (*domain.User, error)
}

type GroupRepository interface {
	Create(ctx context.Context, g *domain.Group) error
	GetByID(ctx context.Context, id domain.GroupCode) (*domain.Group, error)
	GetForUpdate(ctx context.Context, id domain.GroupCode) (*domain.Group, error)
	// Update writes the group row only; members go through UpdateMember.
	Update(ctx context.Context, g *domain.Group) error
	AddMember(ctx context.Context, id domain.GroupCode, m *domain.Member) error
	UpdateMember(ctx context.Context, id domain.GroupCode, m *domain.Member) error
	ListByMember(ctx context.Context, user domain.AccountID) ([]domain.Group, error)
	ListDueForActivation(ctx context.Context, now time.Time, minMembers int) ([]domain.GroupCode, error)
	ListWithOverdueMembers(ctx context.Context, now time.Time) ([]domain.GroupCode, error)
}

// LedgerRepository is the single writer of the transaction log and of the
// cached user balances derived from it.
type LedgerRepository interface {
	Append(ctx context.Context, tx *domain.Transaction) error
	Settle(ctx context.Context, id string, status domain.TransactionStatus, at time.Time) (*domain.Transaction, error)
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error)
	// FindByReference prefers a pending entry over settled ones.
	FindByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	BalanceOf(ctx context.Context, account domain.AccountID) (domain.Amount, error)
	HeldAmount(ctx context.Context, account domain.AccountID) (domain.Amount, error)
	History(ctx context.Context, account domain.AccountID, filter domain.HistoryFilter) (*domain.HistoryPage, error)
	Summary(ctx context.Context, account domain.AccountID) (*domain.SavingsSummary, error)
	CollectedForCycle(ctx context.Context, group domain.GroupCode, cycle uint32) (domain.Amount, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, user domain.AccountID, limit, offset int) ([]domain.Notification, int, error)
	MarkAsRead(ctx context.Context, id string, user domain.AccountID) error
}

// Repositories is one consistent view of the store: either the pool or a
// single database transaction.
type Repositories struct {
	Users         UserRepository
	Groups        GroupRepository
	Ledger        LedgerRepository
	Notifications NotificationRepository
}

type Store interface {
	// Repos returns repositories bound to the connection pool.
	Repos() Repositories
	// WithTx runs fn inside one database transaction and commits only when fn
	// returns nil.
	WithTx(ctx context.Context, fn func(r Repositories) error) error
	// ReadTx runs fn inside a read-only snapshot.
	ReadTx(ctx context.Context, fn func(r Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
