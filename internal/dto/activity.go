package dto

import (
	"time"

	"github.com/noah-isme/activity-report-api/internal/models"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// CreateActivityRequest payload for a new draft activity.
type CreateActivityRequest struct {
	Department         string  `json:"department" validate:"max=200"`
	ActivityType       string  `json:"activityType" validate:"required,max=200"`
	Description        string  `json:"description" validate:"required,max=4000"`
	UnitsCompleted     float64 `json:"unitsCompleted" validate:"gte=0,lte=1000000000"`
	PercentageComplete float64 `json:"percentageComplete" validate:"gte=0,lte=100"`
	Category           *string `json:"category" validate:"omitempty,max=100"`
	ReportDate         string  `json:"reportDate" validate:"required,datetime=2006-01-02"`
}

// UpdateActivityRequest patches content fields of a draft. Nil fields are left unchanged.
type UpdateActivityRequest struct {
	Department         *string  `json:"department" validate:"omitempty,max=200"`
	ActivityType       *string  `json:"activityType" validate:"omitempty,min=1,max=200"`
	Description        *string  `json:"description" validate:"omitempty,min=1,max=4000"`
	UnitsCompleted     *float64 `json:"unitsCompleted" validate:"omitempty,gte=0,lte=1000000000"`
	PercentageComplete *float64 `json:"percentageComplete" validate:"omitempty,gte=0,lte=100"`
	Category           *string  `json:"category" validate:"omitempty,max=100"`
	ReportDate         *string  `json:"reportDate" validate:"omitempty,datetime=2006-01-02"`
}

// ReviewRequest carries the administrator comment for approve and clarification.
type ReviewRequest struct {
	Comment string `json:"comment" validate:"max=4000"`
}

// ResubmitRequest carries the author's optional reply.
type ResubmitRequest struct {
	Reply string `json:"reply" validate:"max=4000"`
}

// FeedbackRequest adds a comment to an activity.
type FeedbackRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// SubmitWeekRequest selects the drafts to submit, either by week-ending
// Friday or by an explicit inclusive date range.
type SubmitWeekRequest struct {
	WeekEnding string `json:"weekEnding" validate:"omitempty,datetime=2006-01-02"`
	From       string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To         string `json:"to" validate:"omitempty,datetime=2006-01-02"`
}

// SubmitOutcomeStatus is the per-item result of a bulk submission.
type SubmitOutcomeStatus string

const (
	SubmitOutcomeSubmitted SubmitOutcomeStatus = "submitted"
	SubmitOutcomeSkipped   SubmitOutcomeStatus = "skipped"
	SubmitOutcomeFailed    SubmitOutcomeStatus = "failed"
)

// SubmitOutcome reports what happened to one activity.
type SubmitOutcome struct {
	ActivityID string              `json:"activityId"`
	ReportDate string              `json:"reportDate"`
	Outcome    SubmitOutcomeStatus `json:"outcome"`
	Reason     string              `json:"reason,omitempty"`
	// Retryable marks failures caused by an unavailable backend.
	Retryable bool `json:"retryable,omitempty"`
}

// SubmitWeekResult summarises a bulk submission.
type SubmitWeekResult struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Submitted int             `json:"submitted"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Outcomes  []SubmitOutcome `json:"outcomes"`
}

// ActivityQuery mirrors supported listing filters.
type ActivityQuery struct {
	Author string
	Status []models.ActivityStatus
	From   *time.Time
	To     *time.Time
}

// UnreadCountResponse is returned by the unread counter endpoint.
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}

// MarkAllReadResponse reports how many notifications changed.
type MarkAllReadResponse struct {
	Updated int `json:"updated"`
}

// UpdatePreferencesRequest patches the caller's delivery preferences.
type UpdatePreferencesRequest struct {
	EmailNotifications *bool `json:"emailNotifications" validate:"required"`
}
