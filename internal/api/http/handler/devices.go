package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fleetsight/fleetsight/internal/api/http/dto"
	"github.com/fleetsight/fleetsight/internal/devices"
	"github.com/gin-gonic/gin"
)

type DeviceHandler struct {
	deviceService *devices.Service
}

func NewDeviceHandler(deviceService *devices.Service) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

func (h *DeviceHandler) Enroll(c *gin.Context) {
	var req dto.EnrollDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid enrollment request"})
		return
	}

	device, err := h.deviceService.Enroll(c.Request.Context(), req.SerialNumber, req.Hostname, req.Platform)
	if err != nil {
		slog.Error("Failed to enroll device", "serial_number", req.SerialNumber, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, deviceResponse(device))
}

func (h *DeviceHandler) List(c *gin.Context) {
	deviceList, err := h.deviceService.List(c.Request.Context())
	if err != nil {
		slog.Error("Failed to list devices", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	responses := make([]dto.DeviceResponse, len(deviceList))
	for i := range deviceList {
		responses[i] = deviceResponse(&deviceList[i])
	}

	c.JSON(http.StatusOK, dto.ListDevicesResponse{
		Devices: responses,
		Count:   len(responses),
	})
}

func (h *DeviceHandler) Archive(c *gin.Context) {
	h.setArchived(c, true)
}

func (h *DeviceHandler) Unarchive(c *gin.Context) {
	h.setArchived(c, false)
}

func (h *DeviceHandler) setArchived(c *gin.Context, archived bool) {
	serial := c.Param("serial")

	device, err := h.deviceService.SetArchived(c.Request.Context(), serial, archived)
	if err != nil {
		if errors.Is(err, devices.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		slog.Error("Failed to change archive state", "serial_number", serial, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, deviceResponse(device))
}

func deviceResponse(d *devices.Device) dto.DeviceResponse {
	return dto.DeviceResponse{
		ID:           d.ID,
		SerialNumber: d.SerialNumber,
		Hostname:     d.Hostname,
		Platform:     d.Platform,
		Archived:     d.Archived,
		EnrolledAt:   d.EnrolledAt,
		LastSeenAt:   d.LastSeenAt,
	}
}
