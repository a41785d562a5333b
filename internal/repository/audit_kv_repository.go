package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/pkg/kv"
)

// AuditKVRepository stores one document per entry under a time-ordered key.
type AuditKVRepository struct {
	store kv.Store
}

var _ AuditRepository = (*AuditKVRepository)(nil)

// NewAuditKVRepository constructs the repository.
func NewAuditKVRepository(store kv.Store) *AuditKVRepository {
	return &AuditKVRepository{store: store}
}

// auditKey zero-pads the timestamp so lexical key order is chronological.
func auditKey(entry *models.AuditEntry) string {
	return fmt.Sprintf("%s%020d:%s", auditKeyPrefix, entry.CreatedAt.UnixNano(), entry.ID)
}

// Append writes a new entry. Entries are never rewritten.
func (r *AuditKVRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := writeJSON(ctx, r.store, auditKey(entry), entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List scans every entry newest first and applies the filter in memory.
func (r *AuditKVRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	keys, err := r.store.List(ctx, auditKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	result := []models.AuditEntry{}
	for i := len(keys) - 1; i >= 0; i-- {
		var entry models.AuditEntry
		if err := readJSON(ctx, r.store, keys[i], &entry); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("list audit entries: %w", err)
		}
		if !filter.Matches(entry) {
			continue
		}
		result = append(result, entry)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}
