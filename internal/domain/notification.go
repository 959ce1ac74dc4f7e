package domain

import "time"

type NotificationKind string

const (
	NotificationMemberJoined        NotificationKind = "MEMBER_JOINED"
	NotificationGroupActivated      NotificationKind = "GROUP_ACTIVATED"
	NotificationPayoutReady         NotificationKind = "PAYOUT_READY"
	NotificationPayoutReceived      NotificationKind = "PAYOUT_RECEIVED"
	NotificationContributionOverdue NotificationKind = "CONTRIBUTION_OVERDUE"
	NotificationCycleAdvanced       NotificationKind = "CYCLE_ADVANCED"
	NotificationSettlement          NotificationKind = "SETTLEMENT"
)

type Notification struct {
	ID         string            `json:"id"`
	UserID     AccountID         `json:"user_id"`
	GroupID    *GroupCode        `json:"group_id,omitempty"`
	Kind       NotificationKind  `json:"kind"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}
