package dto

import (
	"encoding/json"
	"time"

	"github.com/fleetsight/fleetsight/internal/inventory"
	"github.com/fleetsight/fleetsight/internal/snapshots"
)

// SubmitSnapshotRequest is the wire form of one applications snapshot. The
// optional policy payload is stored content-addressed and shared across
// devices.
type SubmitSnapshotRequest struct {
	InstalledApplications []inventory.InstalledApplication `json:"installedApplications"`
	Usage                 snapshots.UsageInfo              `json:"usage"`
	Policy                json.RawMessage                  `json:"policy,omitempty"`
	CollectedAt           time.Time                        `json:"collectedAt" binding:"required"`
}

type SubmitSnapshotResponse struct {
	SnapshotID string    `json:"snapshotId"`
	PolicyHash string    `json:"policyHash,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type SnapshotResponse struct {
	SnapshotID string             `json:"snapshotId"`
	DeviceID   string             `json:"deviceId"`
	Category   string             `json:"category"`
	PolicyHash string             `json:"policyHash,omitempty"`
	Document   snapshots.Document `json:"document"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type PolicyResponse struct {
	Hash    string          `json:"hash"`
	Payload json.RawMessage `json:"payload"`
}
