package domain

import (
	"math"
	"strings"
	"time"
)

// GroupCode is the short human-enterable identifier of a group.
type GroupCode string

const (
	GroupCodeLength = 8
	// GroupCodeAlphabet leaves out 0, O, 1 and I so codes survive being read aloud.
	GroupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	MinGroupMembers = 2
	MaxGroupMembers = 20

	// MaxContributionAmount keeps a full pool within an int64.
	MaxContributionAmount = Amount(math.MaxInt64 / MaxGroupMembers)
)

// NormalizeGroupCode upper-cases and trims user input.
func NormalizeGroupCode(s string) GroupCode {
	return GroupCode(strings.ToUpper(strings.TrimSpace(s)))
}

func (c GroupCode) Valid() bool {
	if len(c) != GroupCodeLength {
		return false
	}
	for _, r := range string(c) {
		if !strings.ContainsRune(GroupCodeAlphabet, r) {
			return false
		}
	}
	return true
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Next returns t moved forward by one interval.
func (f Frequency) Next(t time.Time) time.Time {
	switch f {
	case FrequencyDaily:
		return t.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return t.AddDate(0, 1, 0)
	}
	return t
}

type GroupStatus string

const (
	GroupStatusForming   GroupStatus = "forming"
	GroupStatusActive    GroupStatus = "active"
	GroupStatusCompleted GroupStatus = "completed"
)

type ContributionStatus string

const (
	ContributionPending ContributionStatus = "pending"
	ContributionPaid    ContributionStatus = "paid"
	ContributionOverdue ContributionStatus = "overdue"
)

func (s ContributionStatus) Valid() bool {
	switch s {
	case ContributionPending, ContributionPaid, ContributionOverdue:
		return true
	}
	return false
}

type Member struct {
	UserID             AccountID          `json:"user_id"`
	JoinedAt           time.Time          `json:"joined_at"`
	PayoutOrder        uint32             `json:"payout_order"`
	HasReceivedPayout  bool               `json:"has_received_payout"`
	PayoutDate         *time.Time         `json:"payout_date,omitempty"`
	ContributionStatus ContributionStatus `json:"contribution_status"`
	MissedCycles       uint32             `json:"missed_cycles"`
}

type Group struct {
	ID                 GroupCode   `json:"id"`
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	Admin              AccountID   `json:"admin"`
	ContributionAmount Amount      `json:"contribution_amount"`
	Frequency          Frequency   `json:"frequency"`
	MaxMembers         uint32      `json:"max_members"`
	StartDate          time.Time   `json:"start_date"`
	CurrentCycle       uint32      `json:"current_cycle"`
	TotalCycles        uint32      `json:"total_cycles"`
	NextPayoutDate     time.Time   `json:"next_payout_date"`
	Status             GroupStatus `json:"status"`
	IsActive           bool        `json:"is_active"`
	Members            []Member    `json:"members"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// CreateGroupSpec is the caller-supplied part of a new group.
type CreateGroupSpec struct {
	Name               string
	Description        string
	ContributionAmount Amount
	Frequency          Frequency
	MaxMembers         uint32
	StartDate          time.Time
}

// Member returns a pointer into g.Members, or nil.
func (g *Group) Member(id AccountID) *Member {
	for i := range g.Members {
		if g.Members[i].UserID == id {
			return &g.Members[i]
		}
	}
	return nil
}

func (g *Group) IsFull() bool {
	return uint32(len(g.Members)) >= g.MaxMembers
}

// Recipient is the member whose turn it is this cycle.
func (g *Group) Recipient() *Member {
	for i := range g.Members {
		if g.Members[i].PayoutOrder == g.CurrentCycle {
			return &g.Members[i]
		}
	}
	return nil
}

func (g *Group) AllPaid() bool {
	for _, m := range g.Members {
		if m.ContributionStatus != ContributionPaid {
			return false
		}
	}
	return true
}

func (g *Group) PaidCount() int {
	n := 0
	for _, m := range g.Members {
		if m.ContributionStatus == ContributionPaid {
			n++
		}
	}
	return n
}

// FullPool is the payout when every member has contributed.
func (g *Group) FullPool() Amount {
	return g.ContributionAmount * Amount(len(g.Members))
}
