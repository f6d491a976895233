package devices

import "time"

// Device is one enrolled fleet member. SerialNumber is the stable identity
// agents report under; archived devices reject new snapshots and are excluded
// from aggregation.
type Device struct {
	ID           string
	SerialNumber string
	Hostname     string
	Platform     string
	Archived     bool
	EnrolledAt   time.Time
	LastSeenAt   time.Time
}

// Event is an append-only audit record, distinct from a usage session. Rows
// older than the retention window are pruned by the maintenance engine.
type Event struct {
	ID        int64
	DeviceID  string
	Kind      string
	Message   string
	CreatedAt time.Time
}

// Audit event kinds.
const (
	EventDeviceEnrolled    = "device.enrolled"
	EventDeviceArchived    = "device.archived"
	EventDeviceUnarchived  = "device.unarchived"
	EventSnapshotSubmitted = "snapshot.submitted"
	EventSnapshotRejected  = "snapshot.rejected"
)
