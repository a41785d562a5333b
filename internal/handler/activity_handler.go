package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-report-api/internal/dto"
	"github.com/noah-isme/activity-report-api/internal/models"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
	"github.com/noah-isme/activity-report-api/pkg/response"
)

type activityService interface {
	Create(ctx context.Context, actor *models.Actor, req dto.CreateActivityRequest) (*models.Activity, error)
	Get(ctx context.Context, actor *models.Actor, id string) (*models.Activity, error)
	Update(ctx context.Context, actor *models.Actor, id string, req dto.UpdateActivityRequest) (*models.Activity, error)
	Delete(ctx context.Context, actor *models.Actor, id string) error
	List(ctx context.Context, actor *models.Actor, query dto.ActivityQuery) ([]models.Activity, error)
	Submit(ctx context.Context, actor *models.Actor, id string) (*models.Activity, error)
	Resubmit(ctx context.Context, actor *models.Actor, id, reply string) (*models.Activity, error)
	Approve(ctx context.Context, actor *models.Actor, id, comment string) (*models.Activity, error)
	RequestClarification(ctx context.Context, actor *models.Actor, id, comment string) (*models.Activity, error)
	SubmitWeek(ctx context.Context, actor *models.Actor, req dto.SubmitWeekRequest) (*dto.SubmitWeekResult, error)
	AddFeedback(ctx context.Context, actor *models.Actor, id string, req dto.FeedbackRequest) (*models.Feedback, error)
	ListFeedback(ctx context.Context, actor *models.Actor, id string) ([]models.Feedback, error)
}

// ActivityHandler exposes the activity lifecycle over REST.
type ActivityHandler struct {
	service activityService
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service activityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// Create godoc
// @Summary Create a draft activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body dto.CreateActivityRequest true "Activity payload"
// @Success 201 {object} response.Envelope
// @Router /activities [post]
func (h *ActivityHandler) Create(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.CreateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid activity payload"))
		return
	}
	activity, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// List godoc
// @Summary List activities
// @Tags Activities
// @Produce json
// @Param author query string false "Author email"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "Earliest report date (YYYY-MM-DD)"
// @Param to query string false "Latest report date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	query := dto.ActivityQuery{Author: strings.TrimSpace(c.Query("author"))}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			query.Status = append(query.Status, models.ActivityStatus(part))
		}
	}
	var err error
	if query.From, err = queryDate(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if query.To, err = queryDate(c, "to"); err != nil {
		response.Error(c, err)
		return
	}

	activities, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, map[string]interface{}{"count": len(activities)})
}

// Get godoc
// @Summary Get activity detail
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	activity, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity)
}

// Update godoc
// @Summary Edit a draft activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.UpdateActivityRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Router /activities/{id} [put]
func (h *ActivityHandler) Update(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.UpdateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid activity payload"))
		return
	}
	activity, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity)
}

// Delete godoc
// @Summary Delete an activity
// @Tags Activities
// @Param id path string true "Activity ID"
// @Success 204
// @Router /activities/{id} [delete]
func (h *ActivityHandler) Delete(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit a draft for review
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/submit [post]
func (h *ActivityHandler) Submit(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	activity, err := h.service.Submit(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity)
}

// Resubmit godoc
// @Summary Answer a clarification request and resubmit
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.ResubmitRequest false "Optional reply"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/resubmit [post]
func (h *ActivityHandler) Resubmit(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.ResubmitRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	activity, err := h.service.Resubmit(c.Request.Context(), actor, c.Param("id"), req.Reply)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity)
}

// Approve godoc
// @Summary Approve a submitted activity
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.ReviewRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/approve [post]
func (h *ActivityHandler) Approve(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.ReviewRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	activity, err := h.service.Approve(c.Request.Context(), actor, c.Param("id"), req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity)
}

// RequestClarification godoc
// @Summary Send a submitted activity back to its author
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.ReviewRequest true "Required comment"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/request-clarification [post]
func (h *ActivityHandler) RequestClarification(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.ReviewRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	activity, err := h.service.RequestClarification(c.Request.Context(), actor, c.Param("id"), req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity)
}

// SubmitWeek godoc
// @Summary Submit every draft of a week
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body dto.SubmitWeekRequest true "Week selection"
// @Success 200 {object} response.Envelope
// @Router /activities/submit-week [post]
func (h *ActivityHandler) SubmitWeek(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.SubmitWeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submit-week payload"))
		return
	}
	result, err := h.service.SubmitWeek(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// AddFeedback godoc
// @Summary Comment on an activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body dto.FeedbackRequest true "Comment"
// @Success 201 {object} response.Envelope
// @Router /activities/{id}/feedback [post]
func (h *ActivityHandler) AddFeedback(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid feedback payload"))
		return
	}
	feedback, err := h.service.AddFeedback(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, feedback)
}

// ListFeedback godoc
// @Summary List feedback on an activity
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/feedback [get]
func (h *ActivityHandler) ListFeedback(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	feedback, err := h.service.ListFeedback(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, feedback)
}

// bindOptionalJSON accepts an empty body and rejects malformed JSON.
func bindOptionalJSON(c *gin.Context, dest interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return false
	}
	return true
}
