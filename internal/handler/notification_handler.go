package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-report-api/internal/dto"
	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, actor *models.Actor, unreadOnly bool, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, actor *models.Actor) (int, error)
	MarkRead(ctx context.Context, actor *models.Actor, id string) error
	MarkAllRead(ctx context.Context, actor *models.Actor) (int, error)
}

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary List my notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param limit query int false "Maximum number of results"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	unreadOnly := c.Query("unread") == "true" || c.Query("unread") == "1"
	list, err := h.service.List(c.Request.Context(), actor, unreadOnly, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// UnreadCount godoc
// @Summary Count my unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.UnreadCountResponse{Unread: count})
}

// MarkRead godoc
// @Summary Mark a notification read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark all my notifications read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	changed, err := h.service.MarkAllRead(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MarkAllReadResponse{Updated: changed})
}
