package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fleetsight/fleetsight/internal/api/http/dto"
	"github.com/fleetsight/fleetsight/internal/devices"
	"github.com/fleetsight/fleetsight/internal/snapshots"
	"github.com/gin-gonic/gin"
)

type SnapshotHandler struct {
	deviceService   *devices.Service
	snapshotService *snapshots.Service
}

func NewSnapshotHandler(deviceService *devices.Service, snapshotService *snapshots.Service) *SnapshotHandler {
	return &SnapshotHandler{
		deviceService:   deviceService,
		snapshotService: snapshotService,
	}
}

// Submit stores a device's snapshot for one category, overwriting the prior
// one. Archived devices are rejected with 409.
func (h *SnapshotHandler) Submit(c *gin.Context) {
	serial := c.Param("serial")
	category := c.Param("category")
	if category != snapshots.CategoryApplications {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown snapshot category"})
		return
	}

	var req dto.SubmitSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot payload"})
		return
	}

	device, err := h.deviceService.GetBySerial(c.Request.Context(), serial)
	if err != nil {
		if errors.Is(err, devices.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to look up device", "serial_number", serial, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	doc := snapshots.Document{
		InstalledApplications: req.InstalledApplications,
		Usage:                 req.Usage,
		CollectedAt:           req.CollectedAt,
	}
	var policy *snapshots.Policy
	if len(req.Policy) > 0 {
		policy = &snapshots.Policy{Payload: req.Policy}
	}

	snap, err := h.snapshotService.Submit(c.Request.Context(), device, category, doc, policy)
	if err != nil {
		if errors.Is(err, snapshots.ErrDeviceArchived) {
			h.deviceService.RecordEvent(c.Request.Context(), device.ID,
				devices.EventSnapshotRejected, "submission rejected: device archived")
			c.JSON(http.StatusConflict, gin.H{"error": "device is archived"})
			return
		}
		slog.Error("Failed to store snapshot", "serial_number", serial, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	if err := h.deviceService.TouchLastSeen(c.Request.Context(), device.ID, time.Now()); err != nil {
		slog.Warn("Failed to update last seen", "device_id", device.ID, "error", err)
	}
	h.deviceService.RecordEvent(c.Request.Context(), device.ID,
		devices.EventSnapshotSubmitted, "applications snapshot stored")

	c.JSON(http.StatusOK, dto.SubmitSnapshotResponse{
		SnapshotID: snap.ID,
		PolicyHash: snap.PolicyHash,
		UpdatedAt:  snap.UpdatedAt,
	})
}

// Get returns a device's current snapshot for one category.
func (h *SnapshotHandler) Get(c *gin.Context) {
	serial := c.Param("serial")

	device, err := h.deviceService.GetBySerial(c.Request.Context(), serial)
	if err != nil {
		if errors.Is(err, devices.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to look up device", "serial_number", serial, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	snap, err := h.snapshotService.Get(c.Request.Context(), device.ID, c.Param("category"))
	if err != nil {
		if errors.Is(err, snapshots.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
			return
		}
		slog.Error("Failed to load snapshot", "serial_number", serial, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, dto.SnapshotResponse{
		SnapshotID: snap.ID,
		DeviceID:   snap.DeviceID,
		Category:   snap.Category,
		PolicyHash: snap.PolicyHash,
		Document:   snap.Document,
		UpdatedAt:  snap.UpdatedAt,
	})
}

// GetPolicy returns a shared policy record by content hash.
func (h *SnapshotHandler) GetPolicy(c *gin.Context) {
	policy, err := h.snapshotService.GetPolicy(c.Request.Context(), c.Param("hash"))
	if err != nil {
		if errors.Is(err, snapshots.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
			return
		}
		slog.Error("Failed to load policy", "hash", c.Param("hash"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, dto.PolicyResponse{
		Hash:    policy.Hash,
		Payload: policy.Payload,
	})
}
