package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-report-api/internal/models"
)

// ErrNotFound is returned when a record does not exist or was soft-deleted.
var ErrNotFound = errors.New("repository: not found")

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the relational tables if they do not exist.
func ApplySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ActivityRepository persists canonical activities and their feedback.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	Get(ctx context.Context, id string) (*models.Activity, error)
	Update(ctx context.Context, activity *models.Activity) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error)
	AddFeedback(ctx context.Context, feedback *models.Feedback) error
	ListFeedback(ctx context.Context, activityID string) ([]models.Feedback, error)
}

// NotificationRepository persists per-recipient notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipient string) (int, error)
	MarkRead(ctx context.Context, recipient, id string) error
	MarkAllRead(ctx context.Context, recipient string) (int, error)
}

// AuditRepository appends and queries audit entries.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

// AdminDirectory lists the administrators notified on submission.
type AdminDirectory interface {
	AdminEmails(ctx context.Context) ([]string, error)
}

// sortActivities orders newest report first, newest creation breaking ties.
func sortActivities(list []models.Activity) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].ReportDate.Equal(list[j].ReportDate) {
			return list[i].ReportDate.After(list[j].ReportDate)
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
