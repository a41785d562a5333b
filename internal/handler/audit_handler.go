package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/pkg/response"
)

type auditService interface {
	List(ctx context.Context, actor *models.Actor, filter models.AuditFilter) ([]models.AuditEntry, error)
}

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary Query the audit trail
// @Tags Audit
// @Produce json
// @Param entityType query string false "Entity type"
// @Param entityId query string false "Entity ID"
// @Param actor query string false "Actor email"
// @Param from query string false "Earliest timestamp (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "Latest timestamp (RFC3339 or YYYY-MM-DD)"
// @Param limit query int false "Maximum number of results"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	filter := models.AuditFilter{
		EntityType: strings.TrimSpace(c.Query("entityType")),
		EntityID:   strings.TrimSpace(c.Query("entityId")),
		ActorEmail: strings.TrimSpace(c.Query("actor")),
	}
	var err error
	if filter.From, err = queryTime(c, "from", false); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = queryTime(c, "to", true); err != nil {
		response.Error(c, err)
		return
	}
	if filter.Limit, err = queryLimit(c); err != nil {
		response.Error(c, err)
		return
	}

	entries, err := h.service.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries)
}
