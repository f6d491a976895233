package capture

import (
	"context"
	"strings"
	"testing"

	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvents(t *testing.T) {
	input := strings.Join([]string{
		`{"path":"/Applications/Docker.app/Contents/MacOS/Docker","user":"jdoe","pid":10,"timestamp":"2026-08-27T08:00:00Z","kind":"start"}`,
		``,
		`{"path":"/Applications/Docker.app/Contents/MacOS/Docker","user":"jdoe","pid":10,"timestamp":"2026-08-27T09:00:00Z","kind":"stop"}`,
	}, "\n")

	events, err := ParseEvents(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, sessions.EventStart, events[0].Kind)
	assert.Equal(t, 10, events[0].PID)
	assert.Equal(t, sessions.EventStop, events[1].Kind)
}

func TestParseEventsSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`not json at all`,
		`{"path":"/bin/ls","user":"jdoe","pid":7,"timestamp":"2026-08-27T08:00:00Z","kind":"start"}`,
		`{"path": 42}`,
	}, "\n")

	events, err := ParseEvents(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "/bin/ls", events[0].Path)
}

func TestParseEventsEmpty(t *testing.T) {
	events, err := ParseEvents(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestExecSourceUnavailable(t *testing.T) {
	src := NewExecSource("eslog", "/nonexistent/fleetsight-eslog")

	_, err := src.Events(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestExecSourceMethod(t *testing.T) {
	src := NewExecSource("eslog", "/usr/local/libexec/fleetsight-eslog")
	assert.Equal(t, "eslog", src.Method())
}
