package sessions

import (
	"log/slog"
	"sort"
	"time"

	"github.com/fleetsight/fleetsight/internal/inventory"
)

type pairKey struct {
	path string
	pid  int
}

// Reconstruct pairs raw process events into usage sessions and reconciles them
// against the device's installed-software inventory. Sessions that match no
// installed application are discarded entirely: unmatched activity (system
// services, transient binaries) yields zero output. Sessions still open when
// collection ended are emitted with a nil EndTime and a duration computed
// against collectedAt.
func Reconstruct(events []RawProcessEvent, apps []inventory.InstalledApplication, collectedAt time.Time) []UsageSession {
	matcher := NewMatcher(apps)

	pending := make(map[pairKey]RawProcessEvent)
	var sessions []UsageSession

	for _, ev := range events {
		if !ev.Valid() {
			slog.Debug("Skipping malformed process event", "path", ev.Path, "pid", ev.PID, "kind", ev.Kind)
			continue
		}

		key := pairKey{path: ev.Path, pid: ev.PID}
		switch ev.Kind {
		case EventStart:
			// A second start for an open pair supersedes the first; the
			// matching stop belongs to the most recent start.
			pending[key] = ev
		case EventStop:
			start, ok := pending[key]
			if !ok {
				slog.Debug("Stop event with no open session", "path", ev.Path, "pid", ev.PID)
				continue
			}
			delete(pending, key)

			end := ev.Timestamp
			if s, ok := buildSession(matcher, start, &end, collectedAt); ok {
				sessions = append(sessions, s)
			}
		}
	}

	for _, start := range pending {
		if s, ok := buildSession(matcher, start, nil, collectedAt); ok {
			sessions = append(sessions, s)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].StartTime.Before(sessions[j].StartTime)
		}
		return sessions[i].ProcessID < sessions[j].ProcessID
	})
	return sessions
}

func buildSession(matcher *Matcher, start RawProcessEvent, end *time.Time, collectedAt time.Time) (UsageSession, bool) {
	app, ok := matcher.Match(start.Path)
	if !ok {
		return UsageSession{}, false
	}

	until := collectedAt
	if end != nil {
		until = *end
	}

	duration := int64(until.Sub(start.Timestamp) / time.Second)
	if duration < 0 {
		slog.Warn("Clamping negative session duration",
			"path", start.Path,
			"pid", start.PID,
			"startTime", start.Timestamp,
			"endTime", until)
		duration = 0
	}

	return UsageSession{
		Name:            app.Name,
		Path:            start.Path,
		User:            NormalizeUser(start.User),
		StartTime:       start.Timestamp,
		EndTime:         end,
		DurationSeconds: duration,
		ProcessID:       start.PID,
	}, true
}
