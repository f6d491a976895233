package reports

import (
	"errors"
	"time"

	"github.com/fleetsight/fleetsight/internal/snapshots"
)

var ErrBadWindow = errors.New("unknown report window")

// Window is a report time window selected by token. A zero Duration means all
// time.
type Window struct {
	Token    string
	Duration time.Duration
}

// ParseWindow resolves a window token. Supported tokens: 7d, 30d, 90d, all.
func ParseWindow(token string) (Window, error) {
	switch token {
	case "7d":
		return Window{Token: token, Duration: 7 * 24 * time.Hour}, nil
	case "30d":
		return Window{Token: token, Duration: 30 * 24 * time.Hour}, nil
	case "90d":
		return Window{Token: token, Duration: 90 * 24 * time.Hour}, nil
	case "all":
		return Window{Token: token}, nil
	default:
		return Window{}, ErrBadWindow
	}
}

// DeviceSnapshot is one device's current applications snapshot joined with its
// registry state, as loaded for aggregation.
type DeviceSnapshot struct {
	DeviceID     string
	SerialNumber string
	Archived     bool
	Document     snapshots.Document
}

type Options struct {
	// Cutoff excludes sessions starting before it; zero means all time.
	Cutoff          time.Time
	IncludeArchived bool
}

// UtilizationReport is the fleet-wide rollup answering "which applications are
// used, by whom, on how many machines, for how long".
type UtilizationReport struct {
	Summary      Summary            `json:"summary"`
	Applications []ApplicationUsage `json:"applications"`
	TopUsers     []UserUsage        `json:"topUsers"`
}

type Summary struct {
	TotalApplications       int     `json:"totalApplications"`
	TotalDevices            int     `json:"totalDevices"`
	DevicesWithUsageEnabled int     `json:"devicesWithUsageEnabled"`
	TotalUsageHours         float64 `json:"totalUsageHours"`
}

type ApplicationUsage struct {
	Name         string   `json:"name"`
	TotalSeconds int64    `json:"totalSeconds"`
	UniqueUsers  int      `json:"uniqueUsers"`
	DeviceCount  int      `json:"deviceCount"`
	DeviceIDs    []string `json:"deviceIds"`
}

type UserUsage struct {
	Username     string `json:"username"`
	TotalSeconds int64  `json:"totalSeconds"`
	LaunchCount  int    `json:"launchCount"`
	AppsUsed     int    `json:"appsUsed"`
	DevicesUsed  int    `json:"devicesUsed"`
}
