package handler

import (
	"log/slog"
	"net/http"

	"github.com/fleetsight/fleetsight/internal/reports"
	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	reportService *reports.Service
}

func NewReportHandler(reportService *reports.Service) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// SoftwareUsage answers the fleet utilization query. Store errors surface as
// 503 so clients retry instead of trusting an understated report.
func (h *ReportHandler) SoftwareUsage(c *gin.Context) {
	window, err := reports.ParseWindow(c.DefaultQuery("window", "30d"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window must be one of 7d, 30d, 90d, all"})
		return
	}
	includeArchived := c.Query("include_archived") == "true"

	report, err := h.reportService.SoftwareUsage(c.Request.Context(), window, includeArchived)
	if err != nil {
		slog.Error("Failed to compute utilization report", "window", window.Token, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable, retry later"})
		return
	}

	c.JSON(http.StatusOK, report)
}
