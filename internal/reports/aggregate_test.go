package reports

import (
	"testing"
	"time"

	"github.com/fleetsight/fleetsight/internal/inventory"
	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/fleetsight/fleetsight/internal/snapshots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

func snapshotRow(deviceID string, archived, captureEnabled bool, apps []string, sess []sessions.UsageSession) DeviceSnapshot {
	installed := make([]inventory.InstalledApplication, len(apps))
	for i, name := range apps {
		installed[i] = inventory.InstalledApplication{Name: name}
	}
	return DeviceSnapshot{
		DeviceID:     deviceID,
		SerialNumber: "SN-" + deviceID,
		Archived:     archived,
		Document: snapshots.Document{
			InstalledApplications: installed,
			Usage: snapshots.UsageInfo{
				IsCaptureEnabled: captureEnabled,
				ActiveSessions:   sess,
			},
			CollectedAt: reportNow,
		},
	}
}

func session(name, user string, age time.Duration, seconds int64) sessions.UsageSession {
	return sessions.UsageSession{
		Name:            name,
		User:            user,
		StartTime:       reportNow.Add(-age),
		DurationSeconds: seconds,
	}
}

func TestAggregateExcludesArchived(t *testing.T) {
	rows := []DeviceSnapshot{
		snapshotRow("d1", false, true, []string{"Slack"}, []sessions.UsageSession{
			session("Slack", "jdoe", 24*time.Hour, 3600),
		}),
		snapshotRow("d2", true, true, []string{"Slack"}, []sessions.UsageSession{
			session("Slack", "mroe", 24*time.Hour, 36000),
		}),
	}

	report := Aggregate(rows, Options{Cutoff: reportNow.Add(-30 * 24 * time.Hour)})
	require.Len(t, report.Applications, 1)
	assert.Equal(t, int64(3600), report.Applications[0].TotalSeconds)
	assert.Equal(t, 1, report.Summary.TotalDevices)

	// Opting in brings the archived device's 10-hour session back.
	report = Aggregate(rows, Options{Cutoff: reportNow.Add(-30 * 24 * time.Hour), IncludeArchived: true})
	require.Len(t, report.Applications, 1)
	assert.Equal(t, int64(39600), report.Applications[0].TotalSeconds)
	assert.Equal(t, 2, report.Summary.TotalDevices)
}

func TestAggregateWindowCutoff(t *testing.T) {
	rows := []DeviceSnapshot{
		snapshotRow("d1", false, true, []string{"Slack"}, []sessions.UsageSession{
			session("Slack", "jdoe", 5*24*time.Hour, 1000),
			session("Slack", "jdoe", 40*24*time.Hour, 5000),
		}),
	}

	report := Aggregate(rows, Options{Cutoff: reportNow.Add(-30 * 24 * time.Hour)})
	require.Len(t, report.Applications, 1)
	assert.Equal(t, int64(1000), report.Applications[0].TotalSeconds)

	// All time keeps both.
	report = Aggregate(rows, Options{})
	assert.Equal(t, int64(6000), report.Applications[0].TotalSeconds)
}

func TestAggregateWindowMonotonicity(t *testing.T) {
	rows := []DeviceSnapshot{
		snapshotRow("d1", false, true, []string{"Slack", "Docker Desktop"}, []sessions.UsageSession{
			session("Slack", "jdoe", 2*24*time.Hour, 3600),
			session("Docker Desktop", "jdoe", 20*24*time.Hour, 7200),
			session("Slack", "mroe", 60*24*time.Hour, 10800),
		}),
	}

	hours := func(days int) float64 {
		cutoff := reportNow.Add(-time.Duration(days) * 24 * time.Hour)
		return Aggregate(rows, Options{Cutoff: cutoff}).Summary.TotalUsageHours
	}

	assert.GreaterOrEqual(t, hours(90), hours(30))
	assert.GreaterOrEqual(t, hours(30), hours(7))
}

func TestAggregateSkipsDisabledCapture(t *testing.T) {
	rows := []DeviceSnapshot{
		snapshotRow("d1", false, true, []string{"Slack"}, []sessions.UsageSession{
			session("Slack", "jdoe", time.Hour, 600),
		}),
		snapshotRow("d2", false, false, []string{"Slack"}, []sessions.UsageSession{
			session("Slack", "mroe", time.Hour, 600),
		}),
	}

	report := Aggregate(rows, Options{})
	assert.Equal(t, 1, report.Summary.DevicesWithUsageEnabled)
	require.Len(t, report.Applications, 1)
	assert.Equal(t, int64(600), report.Applications[0].TotalSeconds)
	assert.Equal(t, 1, report.Applications[0].UniqueUsers)
}

func TestAggregateRevalidatesInventory(t *testing.T) {
	// Session names not in the device's own inventory never contribute, even
	// if another device has the application installed.
	rows := []DeviceSnapshot{
		snapshotRow("d1", false, true, []string{"Docker Desktop"}, []sessions.UsageSession{
			session("Slack", "jdoe", time.Hour, 600),
		}),
		snapshotRow("d2", false, true, []string{"Slack"}, nil),
	}

	report := Aggregate(rows, Options{})
	assert.Empty(t, report.Applications)
	assert.Equal(t, 0, report.Summary.TotalDevices)
	assert.Equal(t, 2, report.Summary.DevicesWithUsageEnabled)
}

func TestAggregateRanking(t *testing.T) {
	rows := []DeviceSnapshot{
		snapshotRow("d1", false, true, []string{"Slack", "Docker Desktop", "Zed"}, []sessions.UsageSession{
			session("Zed", "jdoe", time.Hour, 500),
			session("Docker Desktop", "jdoe", time.Hour, 500),
			session("Slack", "jdoe", time.Hour, 900),
		}),
	}

	report := Aggregate(rows, Options{})
	require.Len(t, report.Applications, 3)
	assert.Equal(t, "Slack", report.Applications[0].Name)
	// Equal totals tie-break on name ascending.
	assert.Equal(t, "Docker Desktop", report.Applications[1].Name)
	assert.Equal(t, "Zed", report.Applications[2].Name)
}

func TestAggregateUserRollup(t *testing.T) {
	rows := []DeviceSnapshot{
		snapshotRow("d1", false, true, []string{"Slack", "Docker Desktop"}, []sessions.UsageSession{
			session("Slack", "jdoe", time.Hour, 600),
			session("Docker Desktop", "jdoe", time.Hour, 1200),
		}),
		snapshotRow("d2", false, true, []string{"Slack"}, []sessions.UsageSession{
			session("Slack", "jdoe", time.Hour, 300),
			session("Slack", "mroe", time.Hour, 3000),
		}),
	}

	report := Aggregate(rows, Options{})
	require.Len(t, report.TopUsers, 2)

	assert.Equal(t, "mroe", report.TopUsers[0].Username)
	assert.Equal(t, int64(3000), report.TopUsers[0].TotalSeconds)

	jdoe := report.TopUsers[1]
	assert.Equal(t, int64(2100), jdoe.TotalSeconds)
	assert.Equal(t, 3, jdoe.LaunchCount)
	assert.Equal(t, 2, jdoe.AppsUsed)
	assert.Equal(t, 2, jdoe.DevicesUsed)

	slack := report.Applications[0]
	assert.Equal(t, "Slack", slack.Name)
	assert.Equal(t, 2, slack.UniqueUsers)
	assert.Equal(t, 2, slack.DeviceCount)
	assert.Equal(t, []string{"d1", "d2"}, slack.DeviceIDs)
}

func TestAggregateSummaryHoursRounded(t *testing.T) {
	rows := []DeviceSnapshot{
		snapshotRow("d1", false, true, []string{"Slack"}, []sessions.UsageSession{
			session("Slack", "jdoe", time.Hour, 5000),
		}),
	}

	report := Aggregate(rows, Options{})
	assert.Equal(t, 1.4, report.Summary.TotalUsageHours)
}

func TestAggregateEmpty(t *testing.T) {
	report := Aggregate(nil, Options{})
	assert.Equal(t, 0, report.Summary.TotalApplications)
	assert.Empty(t, report.Applications)
	assert.Empty(t, report.TopUsers)
	assert.Equal(t, 0.0, report.Summary.TotalUsageHours)
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, w.Duration)

	w, err = ParseWindow("all")
	require.NoError(t, err)
	assert.Zero(t, w.Duration)

	_, err = ParseWindow("14d")
	assert.ErrorIs(t, err, ErrBadWindow)
}
