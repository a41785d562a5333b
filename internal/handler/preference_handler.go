package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-report-api/internal/dto"
	"github.com/noah-isme/activity-report-api/internal/models"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
	"github.com/noah-isme/activity-report-api/pkg/response"
)

type preferenceService interface {
	Get(ctx context.Context, email string) (models.Preferences, error)
	Update(ctx context.Context, actor *models.Actor, req dto.UpdatePreferencesRequest) (models.Preferences, error)
}

// PreferenceHandler reads and writes the caller's delivery preferences.
type PreferenceHandler struct {
	service preferenceService
}

// NewPreferenceHandler constructs the handler.
func NewPreferenceHandler(service preferenceService) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

// Get godoc
// @Summary Get my notification preferences
// @Tags Preferences
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/preferences [get]
func (h *PreferenceHandler) Get(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	prefs, err := h.service.Get(c.Request.Context(), actor.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs)
}

// Update godoc
// @Summary Update my notification preferences
// @Tags Preferences
// @Accept json
// @Produce json
// @Param payload body dto.UpdatePreferencesRequest true "Preferences"
// @Success 200 {object} response.Envelope
// @Router /me/preferences [put]
func (h *PreferenceHandler) Update(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}
	var req dto.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid preferences payload"))
		return
	}
	prefs, err := h.service.Update(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs)
}
