package tests

import (
	"context"
	"testing"

	"github.com/fleetsight/fleetsight/internal/maintenance"
	"github.com/fleetsight/fleetsight/internal/snapshots"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenance(t *testing.T, engine *gin.Engine, pool *pgxpool.Pool) {
	ctx := context.Background()
	device := enrollDevice(t, engine, "SN-MAINT-1")

	rec := submitSnapshot(t, engine, "SN-MAINT-1", appSnapshot([]string{"Slack"}, nil))
	require.Equal(t, 200, rec.Code, rec.Body.String())

	// One event inside the 30-day retention window, one outside it.
	_, err := pool.Exec(ctx, `
		INSERT INTO events (device_id, kind, message, created_at)
		VALUES ($1, 'test.old', '', now() - interval '31 days'),
		       ($1, 'test.recent', '', now() - interval '29 days')`,
		device.ID)
	require.NoError(t, err)

	// Two duplicate snapshot rows for the same (device, category), as a bulk
	// import could leave behind.
	for i := 0; i < 2; i++ {
		_, err = pool.Exec(ctx, `
			INSERT INTO snapshots (device_id, category, document, collected_at, updated_at)
			VALUES ($1, $2, '{}', now(), now() - interval '1 hour')`,
			device.ID, snapshots.CategoryApplications)
		require.NoError(t, err)
	}

	// An orphan snapshot pointing at a device that no longer exists.
	_, err = pool.Exec(ctx, `
		INSERT INTO snapshots (device_id, category, document, collected_at)
		VALUES ($1, $2, '{}', now())`,
		uuid.NewString(), snapshots.CategoryApplications)
	require.NoError(t, err)

	// One unreferenced shared policy; the referenced one must survive.
	_, err = pool.Exec(ctx, `
		INSERT INTO shared_policies (hash, payload)
		VALUES ('deadbeef', '{"stale":true}')`)
	require.NoError(t, err)

	referenced := snapshots.HashPolicy([]byte(`{"captureEnabled":true,"maint":true}`))
	_, err = pool.Exec(ctx, `
		INSERT INTO shared_policies (hash, payload) VALUES ($1, '{"captureEnabled":true,"maint":true}')`,
		referenced)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		UPDATE snapshots SET policy_hash = $1
		WHERE device_id = $2 AND category = $3`,
		referenced, device.ID, snapshots.CategoryApplications)
	require.NoError(t, err)

	rec = doJSON(t, engine, "POST", "/api/v1/maintenance/run", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code, rec.Body.String())
	result := decodeJSON[maintenance.Result](t, rec)

	assert.Equal(t, int64(1), result.EventsDeleted)
	assert.Equal(t, int64(2), result.DuplicatesRemoved)
	assert.Equal(t, int64(1), result.OrphansRemoved)
	assert.GreaterOrEqual(t, result.PoliciesRemoved, int64(1))

	// The duplicate collapse kept the most recently updated row.
	var count int
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT count(*) FROM snapshots WHERE device_id = $1 AND category = $2`,
		device.ID, snapshots.CategoryApplications).Scan(&count))
	assert.Equal(t, 1, count)

	// The referenced policy survived the sweep.
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT count(*) FROM shared_policies WHERE hash = $1`, referenced).Scan(&count))
	assert.Equal(t, 1, count)

	// A second run with no new data deletes nothing: every pass is
	// idempotent.
	rec = doJSON(t, engine, "POST", "/api/v1/maintenance/run", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code)
	second := decodeJSON[maintenance.Result](t, rec)
	assert.Equal(t, maintenance.Result{}, second)

	// Archiving keeps the stored snapshot (it is filtered, not deleted).
	rec = doJSON(t, engine, "POST", "/api/v1/devices/SN-MAINT-1/archive", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code)
	rec = doJSON(t, engine, "POST", "/api/v1/maintenance/run", AdminAPIKey, nil)
	require.Equal(t, 200, rec.Code)
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT count(*) FROM snapshots WHERE device_id = $1`, device.ID).Scan(&count))
	assert.Equal(t, 1, count)
}
