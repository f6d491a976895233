package systemtest

import (
	"context"
	"testing"

	internalhttp "github.com/fleetsight/fleetsight/internal/api/http"
	"github.com/fleetsight/fleetsight/internal/db"
	"github.com/fleetsight/fleetsight/internal/devices"
	"github.com/fleetsight/fleetsight/internal/maintenance"
	"github.com/fleetsight/fleetsight/internal/reports"
	"github.com/fleetsight/fleetsight/internal/snapshots"
	"github.com/fleetsight/fleetsight/systemtest/postgres"
	"github.com/fleetsight/fleetsight/systemtest/tests"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.StartPostgres(ctx, "fleetsight", "fleetsight", "fleetsight")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, postgres.TerminatePostgres(ctx, container))
	}()

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(dbURL, "public"))

	pool, err := db.InitDB(ctx, dbURL, "public")
	require.NoError(t, err)
	defer pool.Close()

	services := &internalhttp.Services{
		Devices:     devices.NewService(pool),
		Snapshots:   snapshots.NewService(pool),
		Reports:     reports.NewService(pool),
		Maintenance: maintenance.NewService(pool, maintenance.Config{}),
	}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupRoute(engine, internalhttp.Config{
		AgentAPIKey: tests.AgentAPIKey,
		AdminAPIKey: tests.AdminAPIKey,
	}, services)

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, engine) })
	t.Run("SnapshotSubmission", func(t *testing.T) { tests.TestSnapshotSubmission(t, engine, pool) })
	t.Run("ArchivedDeviceRejected", func(t *testing.T) { tests.TestArchivedDeviceRejected(t, engine) })
	t.Run("SoftwareUsageReport", func(t *testing.T) { tests.TestSoftwareUsageReport(t, engine) })
	t.Run("Maintenance", func(t *testing.T) { tests.TestMaintenance(t, engine, pool) })
}
