package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-report-api/internal/dto"
	"github.com/noah-isme/activity-report-api/internal/middleware"
	"github.com/noah-isme/activity-report-api/internal/models"
	appErrors "github.com/noah-isme/activity-report-api/pkg/errors"
	"github.com/noah-isme/activity-report-api/pkg/response"
)

func actorFromContext(c *gin.Context) *models.Actor {
	return middleware.ActorFromContext(c)
}

// requireActor writes a 401 and returns nil when no actor is present.
func requireActor(c *gin.Context) *models.Actor {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return actor
}

func queryDate(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dto.DateLayout, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid %s, expected YYYY-MM-DD", key))
	}
	parsed = parsed.UTC()
	return &parsed, nil
}

// queryTime accepts RFC3339 or a bare date. With endOfDay a bare date covers
// the whole day, so an inclusive upper bound keeps that day's entries.
func queryTime(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		parsed = parsed.UTC()
		return &parsed, nil
	}
	date, err := queryDate(c, key)
	if err != nil || !endOfDay {
		return date, err
	}
	end := date.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return &end, nil
}

func queryLimit(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer")
	}
	return limit, nil
}
