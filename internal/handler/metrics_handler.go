package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-report-api/internal/service"
	"github.com/noah-isme/activity-report-api/pkg/response"
)

type backendPinger interface {
	Ping(ctx context.Context) error
}

type failureSource interface {
	Failures() []service.FailureRecord
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics  *service.MetricsService
	backend  backendPinger
	failures failureSource
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, backend backendPinger, failures failureSource) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, backend: backend, failures: failures}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness checks.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether the storage backend answers.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.backend == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.backend.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SideEffectFailures godoc
// @Summary Recent side effects that could not be delivered
// @Tags Operations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /side-effects/failures [get]
func (h *MetricsHandler) SideEffectFailures(c *gin.Context) {
	records := []service.FailureRecord{}
	if h.failures != nil {
		records = h.failures.Failures()
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"count": len(records)})
}
