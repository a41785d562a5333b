package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-report-api/internal/models"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
)

type notificationStore interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipient string) (int, error)
	MarkRead(ctx context.Context, recipient, id string) error
	MarkAllRead(ctx context.Context, recipient string) (int, error)
}

const maxNotificationPage = 200

// NotificationService serves the recipient side of notifications.
type NotificationService struct {
	repo   notificationStore
	logger *zap.Logger
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, logger: logger}
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor *models.Actor, unreadOnly bool, limit int) ([]models.Notification, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if limit <= 0 || limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	list, err := s.repo.List(ctx, models.NotificationFilter{RecipientEmail: actor.Email, UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		return nil, storageError(err, "failed to list notifications")
	}
	return list, nil
}

// UnreadCount counts the actor's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.Actor) (int, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}
	count, err := s.repo.CountUnread(ctx, actor.Email)
	if err != nil {
		return 0, storageError(err, "failed to count notifications")
	}
	return count, nil
}

// MarkRead flags one of the actor's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, actor *models.Actor, id string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.repo.MarkRead(ctx, actor.Email, id); err != nil {
		return storageError(err, "failed to update notification")
	}
	return nil
}

// MarkAllRead flags all the actor's notifications and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.Actor) (int, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}
	changed, err := s.repo.MarkAllRead(ctx, actor.Email)
	if err != nil {
		return 0, storageError(err, "failed to update notifications")
	}
	return changed, nil
}
