package dto

import "time"

type EnrollDeviceRequest struct {
	SerialNumber string `json:"serialNumber" binding:"required"`
	Hostname     string `json:"hostname"`
	Platform     string `json:"platform"`
}

type DeviceResponse struct {
	ID           string    `json:"id"`
	SerialNumber string    `json:"serialNumber"`
	Hostname     string    `json:"hostname"`
	Platform     string    `json:"platform"`
	Archived     bool      `json:"archived"`
	EnrolledAt   time.Time `json:"enrolledAt"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
}

type ListDevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Count   int              `json:"count"`
}
