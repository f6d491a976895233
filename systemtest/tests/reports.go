package tests

import (
	"testing"
	"time"

	"github.com/fleetsight/fleetsight/internal/reports"
	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftwareUsageReport(t *testing.T, engine *gin.Engine) {
	enrollDevice(t, engine, "SN-REPORT-1")
	enrollDevice(t, engine, "SN-REPORT-2")

	rec := submitSnapshot(t, engine, "SN-REPORT-1", appSnapshot([]string{"Slack"}, []sessions.UsageSession{
		usageSession("Slack", "jdoe", 24*time.Hour, 3600),
	}))
	require.Equal(t, 200, rec.Code, rec.Body.String())

	// Ten hours of Slack on the device about to be archived.
	rec = submitSnapshot(t, engine, "SN-REPORT-2", appSnapshot([]string{"Slack"}, []sessions.UsageSession{
		usageSession("Slack", "mroe", 24*time.Hour, 36000),
	}))
	require.Equal(t, 200, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, "POST", "/api/v1/devices/SN-REPORT-2/archive", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code)

	// Archived device's usage is excluded by default...
	rec = doJSON(t, engine, "GET", "/api/v1/reports/software-usage?window=30d", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	report := decodeJSON[reports.UtilizationReport](t, rec)

	slack := findApp(t, report, "Slack")
	assert.Equal(t, int64(3600), slack.TotalSeconds)
	assert.Equal(t, 1, slack.UniqueUsers)

	// ...and present when opted in.
	rec = doJSON(t, engine, "GET", "/api/v1/reports/software-usage?window=30d&include_archived=true", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code)
	report = decodeJSON[reports.UtilizationReport](t, rec)
	slack = findApp(t, report, "Slack")
	assert.Equal(t, int64(39600), slack.TotalSeconds)
	assert.Equal(t, 2, slack.UniqueUsers)

	// Window monotonicity over the same population.
	var hours []float64
	for _, window := range []string{"7d", "30d", "90d", "all"} {
		rec = doJSON(t, engine, "GET", "/api/v1/reports/software-usage?window="+window, AdminAPIKey, nil)
		require.Equal(t, 200, rec.Code)
		hours = append(hours, decodeJSON[reports.UtilizationReport](t, rec).Summary.TotalUsageHours)
	}
	for i := 1; i < len(hours); i++ {
		assert.GreaterOrEqual(t, hours[i], hours[i-1])
	}

	// Bad window tokens 400.
	rec = doJSON(t, engine, "GET", "/api/v1/reports/software-usage?window=14d", AdminAPIKey, nil)
	assert.Equal(t, 400, rec.Code)
}

func findApp(t *testing.T, report reports.UtilizationReport, name string) reports.ApplicationUsage {
	t.Helper()
	for _, app := range report.Applications {
		if app.Name == name {
			return app
		}
	}
	t.Fatalf("application %q not in report", name)
	return reports.ApplicationUsage{}
}
