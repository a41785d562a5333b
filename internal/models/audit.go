package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Audit actions recorded for activity lifecycle events.
const (
	AuditActionCreate               = "create"
	AuditActionUpdate               = "update"
	AuditActionDelete               = "delete"
	AuditActionSubmit               = "submit"
	AuditActionResubmit             = "resubmit"
	AuditActionReview               = "review"
	AuditActionRequestClarification = "request_clarification"
	AuditActionFeedback             = "feedback"
)

// AuditEntityActivity is the entity type for activity audit records.
const AuditEntityActivity = "activity"

// AuditEntry is an immutable record of one change.
type AuditEntry struct {
	ID         string         `db:"id" json:"id"`
	Action     string         `db:"action" json:"action"`
	EntityType string         `db:"entity_type" json:"entityType"`
	EntityID   string         `db:"entity_id" json:"entityId"`
	ActorEmail string         `db:"actor_email" json:"actorEmail"`
	Changeset  types.JSONText `db:"changeset" json:"changeset,omitempty"`
	RequestID  *string        `db:"request_id" json:"requestId,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"createdAt"`
}

// AuditFilter constrains audit queries for the external viewer.
type AuditFilter struct {
	EntityType string
	EntityID   string
	ActorEmail string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// Matches applies the filter in memory.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.ActorEmail != "" && e.ActorEmail != f.ActorEmail {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
