package models

import "time"

// NotificationType tags the transition a notification describes.
type NotificationType string

const (
	NotificationActivitySubmitted      NotificationType = "activity_submitted"
	NotificationActivityResubmitted    NotificationType = "activity_resubmitted"
	NotificationActivityReviewed       NotificationType = "activity_reviewed"
	NotificationClarificationRequested NotificationType = "clarification_requested"
)

// Notification is produced by the side-effect dispatcher for one recipient.
type Notification struct {
	ID             string           `db:"id" json:"id"`
	RecipientEmail string           `db:"recipient_email" json:"recipientEmail"`
	Type           NotificationType `db:"type" json:"type"`
	Title          string           `db:"title" json:"title"`
	Message        string           `db:"message" json:"message"`
	IsRead         bool             `db:"is_read" json:"isRead"`
	ActivityID     *string          `db:"activity_id" json:"activityId,omitempty"`
	Link           *string          `db:"link" json:"link,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationFilter constrains recipient listings.
type NotificationFilter struct {
	RecipientEmail string
	UnreadOnly     bool
	Limit          int
}
