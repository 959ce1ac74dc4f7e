package service

import (
	"context"
	"time"

	"susu-ledger-backend/internal/config"
	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/lock"
	"susu-ledger-backend/internal/metrics"
	"susu-ledger-backend/internal/repository"
)

type UserService interface {
	// RegisterUser is idempotent: registering again returns the existing user.
	RegisterUser(ctx context.Context, account domain.AccountID, walletKind domain.WalletKind) (*domain.User, error)
	GetUser(ctx context.Context, account domain.AccountID) (*domain.User, error)
	GetUserTransactions(ctx context.Context, account domain.AccountID, filter domain.HistoryFilter) (*domain.HistoryPage, error)
}

type GroupService interface {
	CreateGroup(ctx context.Context, admin domain.AccountID, spec domain.CreateGroupSpec) (*domain.Group, error)
	JoinGroup(ctx context.Context, code domain.GroupCode, account domain.AccountID) (*domain.Group, error)
	GetGroup(ctx context.Context, code domain.GroupCode) (*domain.Group, error)
	ListUserGroups(ctx context.Context, account domain.AccountID) ([]domain.Group, error)
	AdvanceGroupCycle(ctx context.Context, code domain.GroupCode, caller domain.AccountID) (*domain.Group, error)
	// ActivateIfDue moves a forming group to active once it is due. It
	// reports whether the group changed state.
	ActivateIfDue(ctx context.Context, code domain.GroupCode) (bool, error)
	// MarkOverdue flags members still pending past the payout date and
	// returns how many were flagged.
	MarkOverdue(ctx context.Context, code domain.GroupCode) (int, error)
}

type ProcessorService interface {
	Contribute(ctx context.Context, code domain.GroupCode, account domain.AccountID, amount domain.Amount, method domain.PaymentMethod, reference *string) (*domain.Receipt, error)
	WithdrawPayout(ctx context.Context, code domain.GroupCode, account domain.AccountID) (*domain.Receipt, error)
}

type WalletService interface {
	Deposit(ctx context.Context, account domain.AccountID, amount domain.Amount, method domain.PaymentMethod, reference *string) (*domain.Receipt, error)
	Withdraw(ctx context.Context, account domain.AccountID, amount domain.Amount, method domain.PaymentMethod) (*domain.Receipt, error)
	// ConfirmSettlement is the payment gateway callback. ref is the external
	// reference of a deposit or the id of any pending entry.
	ConfirmSettlement(ctx context.Context, ref string, outcome domain.TransactionStatus) (*domain.Receipt, error)
	// CancelStale cancels entry id if it is still pending. It reports whether
	// anything changed.
	CancelStale(ctx context.Context, id string) (bool, error)
}

type QueryService interface {
	GetDashboard(ctx context.Context, account domain.AccountID) (*domain.Dashboard, error)
}

type NotificationService interface {
	List(ctx context.Context, account domain.AccountID, limit, offset int) ([]domain.Notification, int, error)
	MarkAsRead(ctx context.Context, account domain.AccountID, id string) error
}

// Deps are shared by every service. Locks and Clock are optional.
type Deps struct {
	Store   repository.Store
	Locks   *lock.Manager
	Metrics *metrics.Metrics
	Engine  config.EngineConfig
	Clock   func() time.Time
}

// Services bundles one instance of each service over the same Deps.
type Services struct {
	Users         UserService
	Groups        GroupService
	Processor     ProcessorService
	Wallet        WalletService
	Query         QueryService
	Notifications NotificationService
}

func New(d Deps) *Services {
	e := newEngine(d)
	return &Services{
		Users:         &userService{e},
		Groups:        &groupService{e},
		Processor:     &processorService{e},
		Wallet:        &walletService{e},
		Query:         &queryService{e},
		Notifications: &notificationService{e},
	}
}

func NewUserService(d Deps) UserService                 { return &userService{newEngine(d)} }
func NewGroupService(d Deps) GroupService               { return &groupService{newEngine(d)} }
func NewProcessorService(d Deps) ProcessorService       { return &processorService{newEngine(d)} }
func NewWalletService(d Deps) WalletService             { return &walletService{newEngine(d)} }
func NewQueryService(d Deps) QueryService               { return &queryService{newEngine(d)} }
func NewNotificationService(d Deps) NotificationService { return &notificationService{newEngine(d)} }
