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

// AuditSQLRepository appends to the audit_logs table.
type AuditSQLRepository struct {
	db *sqlx.DB
}

var _ AuditRepository = (*AuditSQLRepository)(nil)

// NewAuditSQLRepository constructs the repository.
func NewAuditSQLRepository(db *sqlx.DB) *AuditSQLRepository {
	return &AuditSQLRepository{db: db}
}

// Append inserts an audit entry.
func (r *AuditSQLRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Changeset) == 0 {
		entry.Changeset = []byte("{}")
	}
	const query = `INSERT INTO audit_logs (id, action, entity_type, entity_id, actor_email, changeset, request_id, created_at)
	VALUES (:id, :action, :entity_type, :entity_id, :actor_email, :changeset, :request_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns audit entries matching the filter, newest first.
func (r *AuditSQLRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT id, action, entity_type, entity_id, actor_email, changeset, request_id, created_at
	FROM audit_logs WHERE 1=1`)
	args := []interface{}{}
	if filter.EntityType != "" {
		builder.WriteString(" AND entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		builder.WriteString(" AND entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.ActorEmail != "" {
		builder.WriteString(" AND actor_email = ?")
		args = append(args, filter.ActorEmail)
	}
	if filter.From != nil {
		builder.WriteString(" AND created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		builder.WriteString(" AND created_at <= ?")
		args = append(args, *filter.To)
	}
	builder.WriteString(" ORDER BY created_at DESC, id")
	if filter.Limit > 0 {
		builder.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	var list []models.AuditEntry
	if err := r.db.SelectContext(ctx, &list, r.db.Rebind(builder.String()), args...); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	if list == nil {
		list = []models.AuditEntry{}
	}
	return list, nil
}
