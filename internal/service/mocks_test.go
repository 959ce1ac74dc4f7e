package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/repository"
)

// MockStore hands the same mocked repositories to every transaction.
type MockStore struct {
	mock.Mock
	repos repository.Repositories
}

func (m *MockStore) Repos() repository.Repositories { return m.repos }
func (m *MockStore) WithTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	m.Called(ctx)
	return fn(m.repos)
}
func (m *MockStore) ReadTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	return fn(m.repos)
}
func (m *MockStore) Ping(ctx context.Context) error { return nil }
func (m *MockStore) Close() error                   { return nil }

// MockUserRepo
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}
func (m *MockUserRepo) GetByID(ctx context.Context, id domain.AccountID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}
func (m *MockUserRepo) GetForUpdate(ctx context.Context, id domain.AccountID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockGroupRepo
type MockGroupRepo struct {
	mock.Mock
}

func (m *MockGroupRepo) Create(ctx context.Context, g *domain.Group) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}
func (m *MockGroupRepo) GetByID(ctx context.Context, id domain.GroupCode) (*domain.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}
func (m *MockGroupRepo) GetForUpdate(ctx context.Context, id domain.GroupCode) (*domain.Group, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Group), args.Error(1)
}
func (m *MockGroupRepo) Update(ctx context.Context, g *domain.Group) error {
	args := m.Called(ctx, g)
	return args.Error(0)
}
func (m *MockGroupRepo) AddMember(ctx context.Context, id domain.GroupCode, mem *domain.Member) error {
	args := m.Called(ctx, id, mem)
	return args.Error(0)
}
func (m *MockGroupRepo) UpdateMember(ctx context.Context, id domain.GroupCode, mem *domain.Member) error {
	args := m.Called(ctx, id, mem)
	return args.Error(0)
}
func (m *MockGroupRepo) ListByMember(ctx context.Context, user domain.AccountID) ([]domain.Group, error) {
	args := m.Called(ctx, user)
	return args.Get(0).([]domain.Group), args.Error(1)
}
func (m *MockGroupRepo) ListDueForActivation(ctx context.Context, now time.Time, minMembers int) ([]domain.GroupCode, error) {
	args := m.Called(ctx, now, minMembers)
	return args.Get(0).([]domain.GroupCode), args.Error(1)
}
func (m *MockGroupRepo) ListWithOverdueMembers(ctx context.Context, now time.Time) ([]domain.GroupCode, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.GroupCode), args.Error(1)
}

// MockLedgerRepo
type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) Append(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}
func (m *MockLedgerRepo) Settle(ctx context.Context, id string, status domain.TransactionStatus, at time.Time) (*domain.Transaction, error) {
	args := m.Called(ctx, id, status, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}
func (m *MockLedgerRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}
func (m *MockLedgerRepo) FindByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}
func (m *MockLedgerRepo) FindByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}
func (m *MockLedgerRepo) BalanceOf(ctx context.Context, account domain.AccountID) (domain.Amount, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(domain.Amount), args.Error(1)
}
func (m *MockLedgerRepo) HeldAmount(ctx context.Context, account domain.AccountID) (domain.Amount, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(domain.Amount), args.Error(1)
}
func (m *MockLedgerRepo) History(ctx context.Context, account domain.AccountID, filter domain.HistoryFilter) (*domain.HistoryPage, error) {
	args := m.Called(ctx, account, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HistoryPage), args.Error(1)
}
func (m *MockLedgerRepo) Summary(ctx context.Context, account domain.AccountID) (*domain.SavingsSummary, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SavingsSummary), args.Error(1)
}
func (m *MockLedgerRepo) CollectedForCycle(ctx context.Context, group domain.GroupCode, cycle uint32) (domain.Amount, error) {
	args := m.Called(ctx, group, cycle)
	return args.Get(0).(domain.Amount), args.Error(1)
}
func (m *MockLedgerRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

// MockNotificationRepo
type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
func (m *MockNotificationRepo) List(ctx context.Context, user domain.AccountID, limit, offset int) ([]domain.Notification, int, error) {
	args := m.Called(ctx, user, limit, offset)
	return args.Get(0).([]domain.Notification), args.Int(1), args.Error(2)
}
func (m *MockNotificationRepo) MarkAsRead(ctx context.Context, id string, user domain.AccountID) error {
	args := m.Called(ctx, id, user)
	return args.Error(0)
}
