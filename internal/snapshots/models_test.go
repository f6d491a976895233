package snapshots

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fleetsight/fleetsight/internal/inventory"
	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSessions(t *testing.T) {
	doc := Document{
		InstalledApplications: []inventory.InstalledApplication{
			{Name: "Docker Desktop"},
			{Name: "Slack"},
		},
		Usage: UsageInfo{
			IsCaptureEnabled: true,
			ActiveSessions: []sessions.UsageSession{
				{Name: "Docker Desktop", User: "jdoe", DurationSeconds: 600},
				{Name: "mdworker", User: "root", DurationSeconds: 30},
				{Name: "Slack", User: "jdoe", DurationSeconds: 120},
			},
		},
		CollectedAt: time.Now(),
	}

	dropped := doc.ValidateSessions()
	assert.Equal(t, 1, dropped)
	require.Len(t, doc.Usage.ActiveSessions, 2)
	assert.Equal(t, "Docker Desktop", doc.Usage.ActiveSessions[0].Name)
	assert.Equal(t, "Slack", doc.Usage.ActiveSessions[1].Name)
}

func TestValidateSessionsAllValid(t *testing.T) {
	doc := Document{
		InstalledApplications: []inventory.InstalledApplication{{Name: "Slack"}},
		Usage: UsageInfo{
			ActiveSessions: []sessions.UsageSession{{Name: "Slack"}},
		},
	}

	assert.Equal(t, 0, doc.ValidateSessions())
	assert.Len(t, doc.Usage.ActiveSessions, 1)
}

func TestHashPolicyStable(t *testing.T) {
	payload := json.RawMessage(`{"captureEnabled":true,"roots":["/Applications"]}`)

	h1 := HashPolicy(payload)
	h2 := HashPolicy(payload)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	h3 := HashPolicy(json.RawMessage(`{"captureEnabled":false}`))
	assert.NotEqual(t, h1, h3)
}

func TestDocumentRoundTrip(t *testing.T) {
	end := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	doc := Document{
		InstalledApplications: []inventory.InstalledApplication{
			{Name: "Docker Desktop", InstallLocation: "/Applications/Docker.app"},
		},
		Usage: UsageInfo{
			IsCaptureEnabled: true,
			CaptureMethod:    "eslog",
			ActiveSessions: []sessions.UsageSession{
				{
					Name:            "Docker Desktop",
					Path:            "/Applications/Docker.app/Contents/MacOS/Docker",
					User:            "jdoe",
					StartTime:       end.Add(-time.Hour),
					EndTime:         &end,
					DurationSeconds: 3600,
					ProcessID:       10,
				},
			},
		},
		CollectedAt: end,
	}

	body, err := json.Marshal(doc)
	require.NoError(t, err)

	var got Document
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, doc, got)
}
