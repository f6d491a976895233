package http

import (
	"github.com/fleetsight/fleetsight/internal/api/http/handler"
	"github.com/fleetsight/fleetsight/internal/api/http/middleware"
	"github.com/fleetsight/fleetsight/internal/devices"
	"github.com/fleetsight/fleetsight/internal/maintenance"
	"github.com/fleetsight/fleetsight/internal/reports"
	"github.com/fleetsight/fleetsight/internal/snapshots"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Devices     *devices.Service
	Snapshots   *snapshots.Service
	Reports     *reports.Service
	Maintenance *maintenance.Service
}

func SetupRoute(engine *gin.Engine, cfg Config, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	deviceHandler := handler.NewDeviceHandler(srvs.Devices)
	snapshotHandler := handler.NewSnapshotHandler(srvs.Devices, srvs.Snapshots)
	reportHandler := handler.NewReportHandler(srvs.Reports)
	maintenanceHandler := handler.NewMaintenanceHandler(srvs.Maintenance)

	// Agent-facing endpoints: enrollment and snapshot submission.
	agent := engine.Group("/api/v1", middleware.APIKeyAuth(cfg.AgentAPIKey))
	agent.POST("/devices", deviceHandler.Enroll)
	agent.PUT("/devices/:serial/snapshots/:category", snapshotHandler.Submit)

	// Operator-facing endpoints: fleet queries and lifecycle control.
	admin := engine.Group("/api/v1", middleware.APIKeyAuth(cfg.AdminAPIKey))
	admin.GET("/devices", deviceHandler.List)
	admin.POST("/devices/:serial/archive", deviceHandler.Archive)
	admin.POST("/devices/:serial/unarchive", deviceHandler.Unarchive)
	admin.GET("/devices/:serial/snapshots/:category", snapshotHandler.Get)
	admin.GET("/policies/:hash", snapshotHandler.GetPolicy)
	admin.GET("/reports/software-usage", reportHandler.SoftwareUsage)
	admin.POST("/maintenance/run", maintenanceHandler.Run)
}
