package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetsight/fleetsight/internal/agent/client"
	"github.com/fleetsight/fleetsight/internal/agent/spool"
	"github.com/fleetsight/fleetsight/internal/api/http/dto"
	"github.com/fleetsight/fleetsight/internal/capture"
	"github.com/fleetsight/fleetsight/internal/inventory"
	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	events []sessions.RawProcessEvent
	err    error
}

func (s *stubSource) Method() string { return "eslog" }

func (s *stubSource) Events(ctx context.Context) ([]sessions.RawProcessEvent, error) {
	return s.events, s.err
}

type submitRecorder struct {
	status    int
	submitted []dto.SubmitSnapshotRequest
}

func (r *submitRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var body dto.SubmitSnapshotRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.submitted = append(r.submitted, body)
		w.WriteHeader(r.status)
		w.Write([]byte("{}"))
	}
}

func newTestCollector(t *testing.T, source capture.Source, rec *submitRecorder) *Collector {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Docker.app"), 0o755))
	meta := `{"name":"Docker Desktop"}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "Docker.app", ".fleetsight-app.json"), []byte(meta), 0o644))

	server := httptest.NewServer(rec.handler())
	t.Cleanup(server.Close)

	sp, err := spool.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sp.Close() })

	cl := client.New(server.URL, "test-key", "SN-1")
	return New(inventory.NewScanner([]string{root}), source, sp, cl, nil)
}

func TestRunCycleSubmitsMatchedSessions(t *testing.T) {
	start := time.Now().Add(-time.Hour).UTC()
	source := &stubSource{events: []sessions.RawProcessEvent{
		{Path: "/Applications/Docker.app/Contents/MacOS/Docker", User: "jdoe", PID: 10, Timestamp: start, Kind: sessions.EventStart},
		{Path: "/usr/libexec/mdworker", User: "root", PID: 20, Timestamp: start, Kind: sessions.EventStart},
	}}
	rec := &submitRecorder{status: http.StatusOK}
	c := newTestCollector(t, source, rec)

	// Match against the scanner's install root, not a hardcoded path.
	apps := c.scanner.Scan()
	require.Len(t, apps, 1)
	source.events[0].Path = filepath.Join(apps[0].InstallLocation, "Contents", "MacOS", "Docker")

	require.NoError(t, c.RunCycle(context.Background()))

	require.Len(t, rec.submitted, 1)
	sub := rec.submitted[0]
	assert.True(t, sub.Usage.IsCaptureEnabled)
	assert.Equal(t, "eslog", sub.Usage.CaptureMethod)
	require.Len(t, sub.Usage.ActiveSessions, 1)
	assert.Equal(t, "Docker Desktop", sub.Usage.ActiveSessions[0].Name)
	require.Len(t, sub.InstalledApplications, 1)

	// Successful submit flushes the spool.
	pending, err := c.spool.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunCycleCaptureUnavailable(t *testing.T) {
	source := &stubSource{err: capture.ErrUnavailable}
	rec := &submitRecorder{status: http.StatusOK}
	c := newTestCollector(t, source, rec)

	require.NoError(t, c.RunCycle(context.Background()))

	require.Len(t, rec.submitted, 1)
	sub := rec.submitted[0]
	assert.False(t, sub.Usage.IsCaptureEnabled)
	assert.Empty(t, sub.Usage.ActiveSessions)
	// Inventory still goes out even without usage capture.
	assert.NotEmpty(t, sub.InstalledApplications)
}

func TestRunCycleRetainsSpoolOnFailedSubmit(t *testing.T) {
	start := time.Now().Add(-time.Hour).UTC()
	source := &stubSource{}
	rec := &submitRecorder{status: http.StatusInternalServerError}
	c := newTestCollector(t, source, rec)

	apps := c.scanner.Scan()
	source.events = []sessions.RawProcessEvent{
		{Path: filepath.Join(apps[0].InstallLocation, "Contents", "MacOS", "Docker"), User: "jdoe", PID: 10, Timestamp: start, Kind: sessions.EventStart},
	}

	// Transient server failure is not an error; sessions stay staged.
	require.NoError(t, c.RunCycle(context.Background()))

	pending, err := c.spool.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Next cycle resubmits the staged session.
	rec.status = http.StatusOK
	source.events = nil
	require.NoError(t, c.RunCycle(context.Background()))

	last := rec.submitted[len(rec.submitted)-1]
	require.Len(t, last.Usage.ActiveSessions, 1)

	pending, err = c.spool.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunCycleKeepsUntransmittedSessionsWhenCaptureDrops(t *testing.T) {
	start := time.Now().Add(-time.Hour).UTC()
	source := &stubSource{}
	rec := &submitRecorder{status: http.StatusInternalServerError}
	c := newTestCollector(t, source, rec)

	apps := c.scanner.Scan()
	source.events = []sessions.RawProcessEvent{
		{Path: filepath.Join(apps[0].InstallLocation, "Contents", "MacOS", "Docker"), User: "jdoe", PID: 10, Timestamp: start, Kind: sessions.EventStart},
	}

	// Stage one session through a failed submit.
	require.NoError(t, c.RunCycle(context.Background()))
	pending, err := c.spool.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Next cycle the capture source is gone but the server is back. The
	// submission carries no sessions, so the staged row must stay pending
	// rather than being flushed untransmitted.
	rec.status = http.StatusOK
	source.events = nil
	source.err = capture.ErrUnavailable
	require.NoError(t, c.RunCycle(context.Background()))

	last := rec.submitted[len(rec.submitted)-1]
	assert.False(t, last.Usage.IsCaptureEnabled)
	assert.Empty(t, last.Usage.ActiveSessions)

	pending, err = c.spool.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Once capture recovers, the retained session finally goes out.
	source.err = nil
	require.NoError(t, c.RunCycle(context.Background()))
	last = rec.submitted[len(rec.submitted)-1]
	require.Len(t, last.Usage.ActiveSessions, 1)

	pending, err = c.spool.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunCycleSurvivesSpoolFailure(t *testing.T) {
	source := &stubSource{}
	rec := &submitRecorder{status: http.StatusOK}
	c := newTestCollector(t, source, rec)

	// A broken local spool skips the cycle instead of stopping the agent.
	require.NoError(t, c.spool.Close())
	require.NoError(t, c.RunCycle(context.Background()))
	assert.Empty(t, rec.submitted)
}

func TestRunCycleStopsWhenArchived(t *testing.T) {
	source := &stubSource{}
	rec := &submitRecorder{status: http.StatusConflict}
	c := newTestCollector(t, source, rec)

	err := c.RunCycle(context.Background())
	assert.ErrorIs(t, err, client.ErrDeviceArchived)
}
