package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-report-api/internal/models"
)

// NotificationSQLRepository stores notifications in the notifications table.
type NotificationSQLRepository struct {
	db *sqlx.DB
}

var _ NotificationRepository = (*NotificationSQLRepository)(nil)

// NewNotificationSQLRepository constructs the repository.
func NewNotificationSQLRepository(db *sqlx.DB) *NotificationSQLRepository {
	return &NotificationSQLRepository{db: db}
}

// Create inserts a notification.
func (r *NotificationSQLRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, recipient_email, type, title, message, is_read, activity_id, link, created_at)
	VALUES (:id, :recipient_email, :type, :title, :message, :is_read, :activity_id, :link, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// List returns a recipient's notifications, newest first.
func (r *NotificationSQLRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, recipient_email, type, title, message, is_read, activity_id, link, created_at
	FROM notifications WHERE recipient_email = ?`)
	args := []interface{}{filter.RecipientEmail}
	if filter.UnreadOnly {
		builder.WriteString(" AND is_read = ?")
		args = append(args, false)
	}
	builder.WriteString(" ORDER BY created_at DESC, id")
	if filter.Limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	var list []models.Notification
	if err := r.db.SelectContext(ctx, &list, r.db.Rebind(builder.String()), args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

// CountUnread counts a recipient's unread notifications.
func (r *NotificationSQLRepository) CountUnread(ctx context.Context, recipient string) (int, error) {
	query := r.db.Rebind(`SELECT COUNT(*) FROM notifications WHERE recipient_email = ? AND is_read = ?`)
	var count int
	if err := r.db.GetContext(ctx, &count, query, recipient, false); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags one of the recipient's notifications as read.
func (r *NotificationSQLRepository) MarkRead(ctx context.Context, recipient, id string) error {
	query := r.db.Rebind(`UPDATE notifications SET is_read = ? WHERE id = ? AND recipient_email = ?`)
	res, err := r.db.ExecContext(ctx, query, true, id, recipient)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectAffected(res)
}

// MarkAllRead flags every unread notification of the recipient and returns how many changed.
func (r *NotificationSQLRepository) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	query := r.db.Rebind(`UPDATE notifications SET is_read = ? WHERE recipient_email = ? AND is_read = ?`)
	res, err := r.db.ExecContext(ctx, query, true, recipient, false)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}
