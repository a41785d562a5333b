package service

import (
	"context"

	"github.com/noah-isme/activity-report-api/internal/models"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
)

type auditReader interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

const maxAuditPage = 500

// AuditService is the read side of the audit trail. Entries are only ever
// appended, by the dispatcher.
type AuditService struct {
	repo auditReader
}

// NewAuditService constructs the service.
func NewAuditService(repo auditReader) *AuditService {
	return &AuditService{repo: repo}
}

// List returns entries matching filter for administrators.
func (s *AuditService) List(ctx context.Context, actor *models.Actor, filter models.AuditFilter) ([]models.AuditEntry, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin {
		return nil, appErrors.ErrForbidden
	}
	if filter.Limit <= 0 || filter.Limit > maxAuditPage {
		filter.Limit = maxAuditPage
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storageError(err, "failed to list audit entries")
	}
	return entries, nil
}
