package service

import (
	"context"

	"susu-ledger-backend/internal/domain"
)

const maxNotificationPage = 100

type notificationService struct {
	*engine
}

func (s *notificationService) List(ctx context.Context, account domain.AccountID, limit, offset int) ([]domain.Notification, int, error) {
	if limit <= 0 || limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	if offset < 0 {
		offset = 0
	}
	list, total, err := s.Store.Repos().Notifications.List(ctx, account, limit, offset)
	s.finish(op("listNotifications", "", account), err)
	return list, total, err
}

func (s *notificationService) MarkAsRead(ctx context.Context, account domain.AccountID, id string) error {
	err := s.Store.Repos().Notifications.MarkAsRead(ctx, id, account)
	s.finish(op("markNotificationRead", "", account), err)
	return err
}
