package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fleetsight/fleetsight/internal/maintenance"
	"github.com/gin-gonic/gin"
)

type MaintenanceHandler struct {
	maintenanceService *maintenance.Service
}

func NewMaintenanceHandler(maintenanceService *maintenance.Service) *MaintenanceHandler {
	return &MaintenanceHandler{maintenanceService: maintenanceService}
}

// Run triggers an on-demand maintenance run and returns per-pass counts. A
// run already in progress yields 409; a mid-run failure still reports the
// completed passes, since retrying the whole run is safe.
func (h *MaintenanceHandler) Run(c *gin.Context) {
	result, err := h.maintenanceService.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, maintenance.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "maintenance run already in progress"})
			return
		}
		slog.Error("Maintenance run failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "maintenance run failed, safe to retry",
			"completed": result,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
