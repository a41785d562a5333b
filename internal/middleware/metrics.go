package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/activity-report-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route so raw paths
// never become label values.
const unmatchedRoute = "unmatched"

// Metrics records request duration and count per route template.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
