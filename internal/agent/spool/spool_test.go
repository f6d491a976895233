package spool

import (
	"testing"
	"time"

	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSpool(t *testing.T) *Spool {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession(name string, seconds int64) sessions.UsageSession {
	return sessions.UsageSession{
		Name:            name,
		Path:            "/Applications/" + name + ".app/Contents/MacOS/" + name,
		User:            "jdoe",
		StartTime:       time.Date(2026, 8, 27, 8, 0, 0, 0, time.UTC),
		DurationSeconds: seconds,
		ProcessID:       10,
	}
}

func TestStageAndPending(t *testing.T) {
	s := openTestSpool(t)

	staged := []sessions.UsageSession{testSession("Slack", 600), testSession("Docker", 1200)}
	require.NoError(t, s.Stage(staged, time.Now()))

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, staged[0], pending[0].Session)
	assert.Equal(t, staged[1], pending[1].Session)
	assert.Less(t, pending[0].ID, pending[1].ID)
}

func TestStageEmpty(t *testing.T) {
	s := openTestSpool(t)
	require.NoError(t, s.Stage(nil, time.Now()))

	pending, err := s.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMarkFlushed(t *testing.T) {
	s := openTestSpool(t)
	require.NoError(t, s.Stage([]sessions.UsageSession{testSession("Slack", 600)}, time.Now()))

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.MarkFlushed([]int64{pending[0].ID}, time.Now()))

	pending, err = s.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)

	// New cycles stage fresh rows after a flush.
	require.NoError(t, s.Stage([]sessions.UsageSession{testSession("Docker", 300)}, time.Now()))
	pending, err = s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Docker", pending[0].Session.Name)
}

func TestMarkFlushedOnlyGivenRows(t *testing.T) {
	s := openTestSpool(t)
	require.NoError(t, s.Stage([]sessions.UsageSession{testSession("Slack", 600)}, time.Now()))

	carried, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, carried, 1)

	// A row staged after the caller read Pending must survive the flush.
	require.NoError(t, s.Stage([]sessions.UsageSession{testSession("Docker", 300)}, time.Now()))
	require.NoError(t, s.MarkFlushed([]int64{carried[0].ID}, time.Now()))

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Docker", pending[0].Session.Name)

	// An empty id set is a no-op.
	require.NoError(t, s.MarkFlushed(nil, time.Now()))
	pending, err = s.Pending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPrune(t *testing.T) {
	s := openTestSpool(t)
	require.NoError(t, s.Stage([]sessions.UsageSession{testSession("Slack", 600)}, time.Now()))

	pending, err := s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.MarkFlushed([]int64{pending[0].ID}, time.Now().Add(-48*time.Hour)))
	require.NoError(t, s.Stage([]sessions.UsageSession{testSession("Docker", 300)}, time.Now()))

	removed, err := s.Prune(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// Unflushed rows are never pruned.
	pending, err = s.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Docker", pending[0].Session.Name)
}
