package domain

import "time"

type ActivityKind string

const (
	ActivityContribution ActivityKind = "contribution"
	ActivityPayout       ActivityKind = "payout"
)

// Activity is a derived, upcoming event for one of the caller's groups.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	GroupID   GroupCode    `json:"group_id"`
	GroupName string       `json:"group_name"`
	Amount    Amount       `json:"amount"`
	DueDate   time.Time    `json:"due_date"`
	Cycle     uint32       `json:"cycle"`
}

type SavingsSummary struct {
	TotalDeposits      Amount `json:"total_deposits"`
	TotalWithdrawals   Amount `json:"total_withdrawals"`
	TotalContributions Amount `json:"total_contributions"`
	TotalPayouts       Amount `json:"total_payouts"`
}

type Dashboard struct {
	User               User           `json:"user"`
	TotalBalance       Amount         `json:"total_balance"`
	AvailableBalance   Amount         `json:"available_balance"`
	ActiveGroups       []Group        `json:"active_groups"`
	UpcomingActivities []Activity     `json:"upcoming_activities"`
	RecentTransactions []Transaction  `json:"recent_transactions"`
	Savings            SavingsSummary `json:"savings"`
}
