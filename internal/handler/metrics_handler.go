package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taxdesk/taxdesk-api/internal/service"
	"github.com/taxdesk/taxdesk-api/pkg/response"
)

// MetricsHandler exposes aggregated runtime metrics to admins.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler constructs MetricsHandler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot godoc
// @Summary Aggregated system metrics
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Prometheus serves the raw Prometheus exposition endpoint.
func (h *MetricsHandler) Prometheus() gin.HandlerFunc {
	return gin.WrapH(h.metrics.Handler())
}
