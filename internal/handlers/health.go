package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaemin-s/eventsync/internal/monitoring"
	"github.com/jaemin-s/eventsync/pkg/response"
)

// Health reports readiness. Any probe that is not up yields 503.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(c.Request.Context())
		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		response.JSON(c, status, report)
	}
}
