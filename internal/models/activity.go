package models

import "time"

// ActivityStatus enumerates lifecycle states of an activity.
type ActivityStatus string

const (
	ActivityStatusDraft              ActivityStatus = "draft"
	ActivityStatusSubmitted          ActivityStatus = "submitted"
	ActivityStatusReviewed           ActivityStatus = "reviewed"
	ActivityStatusNeedsClarification ActivityStatus = "needs_clarification"
)

// Valid reports whether s is a known status.
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityStatusDraft, ActivityStatusSubmitted, ActivityStatusReviewed, ActivityStatusNeedsClarification:
		return true
	}
	return false
}

// UnknownRefName is rendered for references whose target no longer exists.
const UnknownRefName = "unknown"

// Ref points at a reference entity. Writes resolve by Name, reads by ID.
type Ref struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Activity is the backend-agnostic record of one employee's reported work.
type Activity struct {
	ID                 string         `json:"id"`
	AuthorEmail        string         `json:"authorEmail"`
	Department         Ref            `json:"department"`
	ActivityType       Ref            `json:"activityType"`
	Description        string         `json:"description"`
	UnitsCompleted     float64        `json:"unitsCompleted"`
	PercentageComplete float64        `json:"percentageComplete"`
	Category           *string        `json:"category,omitempty"`
	ReportDate         time.Time      `json:"reportDate"`
	WeekYear           int            `json:"weekYear"`
	WeekNumber         int            `json:"weekNumber"`
	Status             ActivityStatus `json:"status"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	SubmittedAt        *time.Time     `json:"submittedAt,omitempty"`
	ReviewedAt         *time.Time     `json:"reviewedAt,omitempty"`
}

// Feedback is a comment attached to an activity.
type Feedback struct {
	ID             string    `db:"id" json:"id"`
	ActivityID     string    `db:"activity_id" json:"activityId"`
	AuthorEmail    string    `db:"author_email" json:"authorEmail"`
	Body           string    `db:"body" json:"body"`
	IsAdminComment bool      `db:"is_admin_comment" json:"isAdminComment"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// ActivityFilter constrains enumeration queries. Zero values do not filter.
type ActivityFilter struct {
	AuthorEmail string
	Status      []ActivityStatus
	From        *time.Time
	To          *time.Time
}

// Matches applies the filter in memory for backends without query support.
func (f ActivityFilter) Matches(a Activity) bool {
	if f.AuthorEmail != "" && a.AuthorEmail != f.AuthorEmail {
		return false
	}
	if len(f.Status) > 0 {
		found := false
		for _, s := range f.Status {
			if s == a.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && a.ReportDate.Before(*f.From) {
		return false
	}
	if f.To != nil && a.ReportDate.After(*f.To) {
		return false
	}
	return true
}
