package tests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetsight/fleetsight/internal/api/http/dto"
	"github.com/fleetsight/fleetsight/internal/inventory"
	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/fleetsight/fleetsight/internal/snapshots"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	AgentAPIKey = "test-agent-key"
	AdminAPIKey = "test-admin-key"
)

func doJSON(t *testing.T, engine *gin.Engine, method, path, apiKey string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func enrollDevice(t *testing.T, engine *gin.Engine, serial string) dto.DeviceResponse {
	t.Helper()
	rec := doJSON(t, engine, "POST", "/api/v1/devices", AgentAPIKey, dto.EnrollDeviceRequest{
		SerialNumber: serial,
		Hostname:     serial + ".example.com",
		Platform:     "darwin",
	})
	require.Equal(t, 200, rec.Code, rec.Body.String())
	return decodeJSON[dto.DeviceResponse](t, rec)
}

func appSnapshot(appNames []string, sess []sessions.UsageSession) dto.SubmitSnapshotRequest {
	apps := make([]inventory.InstalledApplication, len(appNames))
	for i, name := range appNames {
		apps[i] = inventory.InstalledApplication{
			Name:            name,
			InstallLocation: "/Applications/" + name + ".app",
		}
	}
	return dto.SubmitSnapshotRequest{
		InstalledApplications: apps,
		Usage: snapshots.UsageInfo{
			IsCaptureEnabled: true,
			CaptureMethod:    "eslog",
			ActiveSessions:   sess,
		},
		CollectedAt: time.Now().UTC(),
	}
}

func usageSession(name, user string, age time.Duration, seconds int64) sessions.UsageSession {
	return sessions.UsageSession{
		Name:            name,
		Path:            "/Applications/" + name + ".app/Contents/MacOS/" + name,
		User:            user,
		StartTime:       time.Now().UTC().Add(-age),
		DurationSeconds: seconds,
		ProcessID:       100,
	}
}

func submitSnapshot(t *testing.T, engine *gin.Engine, serial string, req dto.SubmitSnapshotRequest) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, engine, "PUT", "/api/v1/devices/"+serial+"/snapshots/applications", AgentAPIKey, req)
}
