package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/pkg/kv"
)

// NotificationKVRepository stores notification documents and a per-recipient index.
type NotificationKVRepository struct {
	store kv.Store
}

var _ NotificationRepository = (*NotificationKVRepository)(nil)

// NewNotificationKVRepository constructs the repository.
func NewNotificationKVRepository(store kv.Store) *NotificationKVRepository {
	return &NotificationKVRepository{store: store}
}

func notificationKey(id string) string { return notificationKeyPrefix + id }

func userNotificationsKey(email string) string { return userNotificationsKeyPrefix + email }

// Create writes the notification and indexes it under its recipient.
func (r *NotificationKVRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := writeJSON(ctx, r.store, notificationKey(n.ID), n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if err := appendIndex(ctx, r.store, userNotificationsKey(n.RecipientEmail), n.ID); err != nil {
		return fmt.Errorf("index notification %s: %w", n.ID, err)
	}
	return nil
}

// List returns the recipient's notifications, newest first.
func (r *NotificationKVRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	all, err := r.load(ctx, filter.RecipientEmail)
	if err != nil {
		return nil, err
	}
	result := make([]models.Notification, 0, len(all))
	for _, n := range all {
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// CountUnread counts the recipient's unread notifications.
func (r *NotificationKVRepository) CountUnread(ctx context.Context, recipient string) (int, error) {
	all, err := r.load(ctx, recipient)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range all {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkRead flags one notification; other recipients' notifications are not found.
func (r *NotificationKVRepository) MarkRead(ctx context.Context, recipient, id string) error {
	var n models.Notification
	if err := readJSON(ctx, r.store, notificationKey(id), &n); err != nil {
		return err
	}
	if n.RecipientEmail != recipient {
		return ErrNotFound
	}
	if n.IsRead {
		return nil
	}
	n.IsRead = true
	if err := writeJSON(ctx, r.store, notificationKey(id), n); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead flags every unread notification of the recipient.
func (r *NotificationKVRepository) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	all, err := r.load(ctx, recipient)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, n := range all {
		if n.IsRead {
			continue
		}
		n.IsRead = true
		if err := writeJSON(ctx, r.store, notificationKey(n.ID), n); err != nil {
			return changed, fmt.Errorf("mark notification read: %w", err)
		}
		changed++
	}
	return changed, nil
}

func (r *NotificationKVRepository) load(ctx context.Context, recipient string) ([]models.Notification, error) {
	ids, err := readIndex(ctx, r.store, userNotificationsKey(recipient))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	list := make([]models.Notification, 0, len(ids))
	for _, id := range ids {
		var n models.Notification
		if err := readJSON(ctx, r.store, notificationKey(id), &n); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		list = append(list, n)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}
