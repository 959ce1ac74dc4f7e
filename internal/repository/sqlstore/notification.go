package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"susu-ledger-backend/internal/domain"
	"susu-ledger-backend/internal/logger"
)

type notificationRepository struct {
	c conn
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	logger.EnterMethod("notificationRepository.Create", "userID", n.UserID, "kind", n.Kind, "title", n.Title)

	if n.Attributes == nil {
		n.Attributes = map[string]string{}
	}
	attrs, err := json.Marshal(n.Attributes)
	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "reason", "failed to marshal attributes")
		return domain.Internal(err, "failed to marshal notification attributes")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	var group sql.NullString
	if n.GroupID != nil {
		group = sql.NullString{String: string(*n.GroupID), Valid: true}
	}

	query := `INSERT INTO notifications (id, user_id, group_id, kind, title, message, is_read, attributes, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	logger.DatabaseCall("INSERT", "notifications", "userID", n.UserID, "groupID", group.String)
	_, err = r.c.exec(ctx, query, n.ID, string(n.UserID), group, string(n.Kind), n.Title, n.Message,
		n.IsRead, string(attrs), toNanos(n.CreatedAt))
	logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)

	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "userID", n.UserID)
		return domain.Internal(err, "failed to create notification")
	}
	logger.ExitMethod("notificationRepository.Create", "notificationID", n.ID)
	return nil
}

func (r *notificationRepository) List(ctx context.Context, user domain.AccountID, limit, offset int) ([]domain.Notification, int, error) {
	query := `SELECT id, user_id, group_id, kind, title, message, is_read, attributes, created_at
	          FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.c.query(ctx, query, string(user), limit, offset)
	if err != nil {
		return nil, 0, domain.Internal(err, "failed to list notifications")
	}
	defer rows.Close()

	notifications := []domain.Notification{}
	for rows.Next() {
		var (
			n         domain.Notification
			group     sql.NullString
			kind      string
			attrs     string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &group, &kind, &n.Title, &n.Message, &n.IsRead, &attrs, &createdAt); err != nil {
			return nil, 0, domain.Internal(err, "failed to scan notification")
		}
		if group.Valid {
			g := domain.GroupCode(group.String)
			n.GroupID = &g
		}
		n.Kind = domain.NotificationKind(kind)
		n.CreatedAt = fromNanos(createdAt)
		if err := json.Unmarshal([]byte(attrs), &n.Attributes); err != nil {
			logger.Warn("Failed to unmarshal notification attributes", "notificationID", n.ID, "error", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.Internal(err, "failed to list notifications")
	}
	rows.Close()

	var count int
	countQuery := `SELECT COUNT(*) FROM notifications WHERE user_id = ?`
	if err := r.c.queryRow(ctx, countQuery, string(user)).Scan(&count); err != nil {
		return nil, 0, domain.Internal(err, "failed to count notifications")
	}
	return notifications, count, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id string, user domain.AccountID) error {
	query := `UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`
	res, err := r.c.exec(ctx, query, true, id, string(user))
	if err != nil {
		return domain.Internal(err, "failed to mark notification as read")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("notification %s not found", id)
	}
	return nil
}
