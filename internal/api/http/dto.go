package http

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"susu-ledger-backend/internal/domain"
)

// Timestamps on the wire are integer nanoseconds since the Unix epoch.

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func nanosPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

type methodDTO struct {
	Type     domain.PaymentMethodType   `json:"type"`
	Provider domain.MobileMoneyProvider `json:"provider,omitempty"`
}

func (m methodDTO) toDomain() domain.PaymentMethod {
	return domain.PaymentMethod{Type: m.Type, Provider: m.Provider}
}

type userDTO struct {
	ID         domain.AccountID  `json:"id"`
	WalletKind domain.WalletKind `json:"wallet_kind"`
	Balance    int64             `json:"balance"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{
		ID:         u.ID,
		WalletKind: u.WalletKind,
		Balance:    int64(u.Balance),
		CreatedAt:  nanos(u.CreatedAt),
		UpdatedAt:  nanos(u.UpdatedAt),
	}
}

type memberDTO struct {
	UserID             domain.AccountID          `json:"user_id"`
	JoinedAt           int64                     `json:"joined_at"`
	PayoutOrder        uint32                    `json:"payout_order"`
	HasReceivedPayout  bool                      `json:"has_received_payout"`
	PayoutDate         *int64                    `json:"payout_date,omitempty"`
	ContributionStatus domain.ContributionStatus `json:"contribution_status"`
	MissedCycles       uint32                    `json:"missed_cycles"`
}

type groupDTO struct {
	ID                 domain.GroupCode   `json:"id"`
	Name               string             `json:"name"`
	Description        string             `json:"description"`
	Admin              domain.AccountID   `json:"admin"`
	ContributionAmount int64              `json:"contribution_amount"`
	Frequency          domain.Frequency   `json:"frequency"`
	MaxMembers         uint32             `json:"max_members"`
	StartDate          int64              `json:"start_date"`
	CurrentCycle       uint32             `json:"current_cycle"`
	TotalCycles        uint32             `json:"total_cycles"`
	NextPayoutDate     int64              `json:"next_payout_date"`
	Status             domain.GroupStatus `json:"status"`
	IsActive           bool               `json:"is_active"`
	Members            []memberDTO        `json:"members"`
	CreatedAt          int64              `json:"created_at"`
}

func toGroupDTO(g *domain.Group) groupDTO {
	members := make([]memberDTO, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, memberDTO{
			UserID:             m.UserID,
			JoinedAt:           nanos(m.JoinedAt),
			PayoutOrder:        m.PayoutOrder,
			HasReceivedPayout:  m.HasReceivedPayout,
			PayoutDate:         nanosPtr(m.PayoutDate),
			ContributionStatus: m.ContributionStatus,
			MissedCycles:       m.MissedCycles,
		})
	}
	return groupDTO{
		ID:                 g.ID,
		Name:               g.Name,
		Description:        g.Description,
		Admin:              g.Admin,
		ContributionAmount: int64(g.ContributionAmount),
		Frequency:          g.Frequency,
		MaxMembers:         g.MaxMembers,
		StartDate:          nanos(g.StartDate),
		CurrentCycle:       g.CurrentCycle,
		TotalCycles:        g.TotalCycles,
		NextPayoutDate:     nanos(g.NextPayoutDate),
		Status:             g.Status,
		IsActive:           g.IsActive,
		Members:            members,
		CreatedAt:          nanos(g.CreatedAt),
	}
}

func toGroupDTOs(groups []domain.Group) []groupDTO {
	out := make([]groupDTO, 0, len(groups))
	for i := range groups {
		out = append(out, toGroupDTO(&groups[i]))
	}
	return out
}

type transactionDTO struct {
	ID        string                   `json:"id"`
	AccountID domain.AccountID         `json:"account_id"`
	Kind      domain.TransactionKind   `json:"kind"`
	Amount    int64                    `json:"amount"`
	Method    methodDTO                `json:"method"`
	Status    domain.TransactionStatus `json:"status"`
	Reference *string                  `json:"reference,omitempty"`
	Timestamp int64                    `json:"timestamp"`
	GroupID   *domain.GroupCode        `json:"group_id,omitempty"`
	Cycle     *uint32                  `json:"cycle,omitempty"`
	SettledAt *int64                   `json:"settled_at,omitempty"`
}

func toTransactionDTO(tx *domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:        tx.ID,
		AccountID: tx.AccountID,
		Kind:      tx.Kind,
		Amount:    int64(tx.Amount),
		Method:    methodDTO{Type: tx.Method.Type, Provider: tx.Method.Provider},
		Status:    tx.Status,
		Reference: tx.Reference,
		Timestamp: nanos(tx.Timestamp),
		GroupID:   tx.GroupID,
		Cycle:     tx.Cycle,
		SettledAt: nanosPtr(tx.SettledAt),
	}
}

func toTransactionDTOs(txs []domain.Transaction) []transactionDTO {
	out := make([]transactionDTO, 0, len(txs))
	for i := range txs {
		out = append(out, toTransactionDTO(&txs[i]))
	}
	return out
}

type receiptDTO struct {
	Transaction transactionDTO `json:"transaction"`
	Duplicate   bool           `json:"duplicate"`
}

func toReceiptDTO(r *domain.Receipt) receiptDTO {
	return receiptDTO{Transaction: toTransactionDTO(&r.Transaction), Duplicate: r.Duplicate}
}

type historyDTO struct {
	Transactions []transactionDTO `json:"transactions"`
	NextCursor   string           `json:"next_cursor,omitempty"`
}

// Cursors are "<nanos>:<id>", opaque to clients.

func encodeCursor(c *domain.HistoryCursor) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%d:%s", c.Timestamp.UnixNano(), c.ID)
}

func decodeCursor(s string) (*domain.HistoryCursor, error) {
	ts, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return nil, domain.BadRequest("invalid cursor")
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, domain.BadRequest("invalid cursor")
	}
	return &domain.HistoryCursor{Timestamp: fromNanos(n), ID: id}, nil
}

type activityDTO struct {
	Type      domain.ActivityKind `json:"type"`
	GroupID   domain.GroupCode    `json:"group_id"`
	GroupName string              `json:"group_name"`
	Amount    int64               `json:"amount"`
	DueDate   int64               `json:"due_date"`
	Cycle     uint32              `json:"cycle"`
}

type summaryDTO struct {
	TotalDeposits      int64 `json:"total_deposits"`
	TotalWithdrawals   int64 `json:"total_withdrawals"`
	TotalContributions int64 `json:"total_contributions"`
	TotalPayouts       int64 `json:"total_payouts"`
}

type dashboardDTO struct {
	User               userDTO          `json:"user"`
	TotalBalance       int64            `json:"total_balance"`
	AvailableBalance   int64            `json:"available_balance"`
	ActiveGroups       []groupDTO       `json:"active_groups"`
	UpcomingActivities []activityDTO    `json:"upcoming_activities"`
	RecentTransactions []transactionDTO `json:"recent_transactions"`
	Savings            summaryDTO       `json:"savings"`
}

func toDashboardDTO(d *domain.Dashboard) dashboardDTO {
	activities := make([]activityDTO, 0, len(d.UpcomingActivities))
	for _, a := range d.UpcomingActivities {
		activities = append(activities, activityDTO{
			Type:      a.Kind,
			GroupID:   a.GroupID,
			GroupName: a.GroupName,
			Amount:    int64(a.Amount),
			DueDate:   nanos(a.DueDate),
			Cycle:     a.Cycle,
		})
	}
	return dashboardDTO{
		User:               toUserDTO(&d.User),
		TotalBalance:       int64(d.TotalBalance),
		AvailableBalance:   int64(d.AvailableBalance),
		ActiveGroups:       toGroupDTOs(d.ActiveGroups),
		UpcomingActivities: activities,
		RecentTransactions: toTransactionDTOs(d.RecentTransactions),
		Savings: summaryDTO{
			TotalDeposits:      int64(d.Savings.TotalDeposits),
			TotalWithdrawals:   int64(d.Savings.TotalWithdrawals),
			TotalContributions: int64(d.Savings.TotalContributions),
			TotalPayouts:       int64(d.Savings.TotalPayouts),
		},
	}
}

type notificationDTO struct {
	ID         string                  `json:"id"`
	Type       domain.NotificationKind `json:"type"`
	GroupID    *domain.GroupCode       `json:"group_id,omitempty"`
	Title      string                  `json:"title"`
	Message    string                  `json:"message"`
	IsRead     bool                    `json:"is_read"`
	Attributes map[string]string       `json:"attributes"`
	CreatedAt  int64                   `json:"created_at"`
}

type notificationListDTO struct {
	Notifications []notificationDTO `json:"notifications"`
	Total         int               `json:"total"`
}

func toNotificationListDTO(list []domain.Notification, total int) notificationListDTO {
	out := make([]notificationDTO, 0, len(list))
	for _, n := range list {
		out = append(out, notificationDTO{
			ID:         n.ID,
			Type:       n.Kind,
			GroupID:    n.GroupID,
			Title:      n.Title,
			Message:    n.Message,
			IsRead:     n.IsRead,
			Attributes: n.Attributes,
			CreatedAt:  nanos(n.CreatedAt),
		})
	}
	return notificationListDTO{Notifications: out, Total: total}
}

// Requests

type registerUserRequest struct {
	WalletKind domain.WalletKind `json:"wallet_kind"`
}

type createGroupRequest struct {
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	ContributionAmount int64            `json:"contribution_amount"`
	Frequency          domain.Frequency `json:"frequency"`
	MaxMembers         uint32           `json:"max_members"`
	StartDate          int64            `json:"start_date"`
}

func (r createGroupRequest) toSpec() domain.CreateGroupSpec {
	return domain.CreateGroupSpec{
		Name:               r.Name,
		Description:        r.Description,
		ContributionAmount: domain.Amount(r.ContributionAmount),
		Frequency:          r.Frequency,
		MaxMembers:         r.MaxMembers,
		StartDate:          fromNanos(r.StartDate),
	}
}

type joinGroupRequest struct {
	GroupCode string `json:"group_code"`
}

type contributeRequest struct {
	Amount    int64     `json:"amount"`
	Method    methodDTO `json:"method"`
	Reference *string   `json:"reference,omitempty"`
}

type depositRequest struct {
	Amount    int64     `json:"amount"`
	Method    methodDTO `json:"method"`
	Reference *string   `json:"reference,omitempty"`
}

type withdrawRequest struct {
	Amount int64     `json:"amount"`
	Method methodDTO `json:"method"`
}

type confirmSettlementRequest struct {
	Reference string                   `json:"reference"`
	Outcome   domain.TransactionStatus `json:"outcome"`
}
