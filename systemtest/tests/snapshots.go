package tests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fleetsight/fleetsight/internal/api/http/dto"
	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/fleetsight/fleetsight/internal/snapshots"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSubmission(t *testing.T, engine *gin.Engine, pool *pgxpool.Pool) {
	ctx := context.Background()
	device := enrollDevice(t, engine, "SN-SUBMIT-1")

	// First submission, with a shared policy payload.
	first := appSnapshot([]string{"Slack"}, nil)
	first.Policy = json.RawMessage(`{"captureEnabled":true}`)
	rec := submitSnapshot(t, engine, "SN-SUBMIT-1", first)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	firstResp := decodeJSON[dto.SubmitSnapshotResponse](t, rec)
	assert.NotEmpty(t, firstResp.SnapshotID)
	assert.NotEmpty(t, firstResp.PolicyHash)

	// Second submission overwrites the same row, never appends. A session
	// for an application missing from the inventory is dropped on the way in.
	second := appSnapshot([]string{"Slack", "Docker Desktop"}, []sessions.UsageSession{
		usageSession("Docker Desktop", "jdoe", time.Hour, 3600),
		usageSession("mdworker", "root", time.Hour, 60),
	})
	rec = submitSnapshot(t, engine, "SN-SUBMIT-1", second)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	secondResp := decodeJSON[dto.SubmitSnapshotResponse](t, rec)
	assert.Equal(t, firstResp.SnapshotID, secondResp.SnapshotID)

	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM snapshots WHERE device_id = $1 AND category = 'applications'`,
		device.ID).Scan(&count))
	assert.Equal(t, 1, count)

	var raw []byte
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT document FROM snapshots WHERE device_id = $1 AND category = 'applications'`,
		device.ID).Scan(&raw))
	var doc snapshots.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Usage.ActiveSessions, 1)
	assert.Equal(t, "Docker Desktop", doc.Usage.ActiveSessions[0].Name)

	// The read endpoint serves the stored snapshot and its policy.
	rec = doJSON(t, engine, "GET", "/api/v1/devices/SN-SUBMIT-1/snapshots/applications", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	stored := decodeJSON[dto.SnapshotResponse](t, rec)
	assert.Equal(t, firstResp.SnapshotID, stored.SnapshotID)
	assert.Equal(t, device.ID, stored.DeviceID)
	require.Len(t, stored.Document.Usage.ActiveSessions, 1)

	rec = doJSON(t, engine, "GET", "/api/v1/policies/"+firstResp.PolicyHash, AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	policy := decodeJSON[dto.PolicyResponse](t, rec)
	assert.Equal(t, firstResp.PolicyHash, policy.Hash)
	assert.JSONEq(t, `{"captureEnabled":true}`, string(policy.Payload))

	// Unknown categories are rejected.
	rec = doJSON(t, engine, "PUT", "/api/v1/devices/SN-SUBMIT-1/snapshots/hardware", AgentAPIKey,
		appSnapshot([]string{"Slack"}, nil))
	assert.Equal(t, 404, rec.Code)
}

func TestArchivedDeviceRejected(t *testing.T, engine *gin.Engine) {
	enrollDevice(t, engine, "SN-ARCHIVE-1")

	rec := doJSON(t, engine, "POST", "/api/v1/devices/SN-ARCHIVE-1/archive", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	device := decodeJSON[dto.DeviceResponse](t, rec)
	assert.True(t, device.Archived)

	// Archived devices never contribute fresh data.
	rec = submitSnapshot(t, engine, "SN-ARCHIVE-1", appSnapshot([]string{"Slack"}, nil))
	assert.Equal(t, 409, rec.Code)

	// Unarchiving restores submission.
	rec = doJSON(t, engine, "POST", "/api/v1/devices/SN-ARCHIVE-1/unarchive", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code)
	rec = submitSnapshot(t, engine, "SN-ARCHIVE-1", appSnapshot([]string{"Slack"}, nil))
	assert.Equal(t, 200, rec.Code)

	// Unknown devices 404.
	rec = submitSnapshot(t, engine, "SN-NEVER-ENROLLED", appSnapshot([]string{"Slack"}, nil))
	assert.Equal(t, 404, rec.Code)

	// Wrong API key is rejected.
	rec = doJSON(t, engine, "PUT", "/api/v1/devices/SN-ARCHIVE-1/snapshots/applications", "bogus",
		appSnapshot([]string{"Slack"}, nil))
	assert.Equal(t, 401, rec.Code)
}
