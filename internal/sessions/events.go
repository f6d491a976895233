package sessions

import "time"

// EventKind discriminates process lifecycle events.
type EventKind string

const (
	EventStart EventKind = "start"
	EventStop  EventKind = "stop"
)

// RawProcessEvent is a single process lifecycle observation from the capture
// source. Events are ephemeral: consumed within one reconstruction pass and
// never persisted.
type RawProcessEvent struct {
	Path      string    `json:"path"`
	User      string    `json:"user"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
}

// Valid reports whether the event carries enough to participate in pairing.
// Invalid events are skipped, never fatal to the batch.
func (e RawProcessEvent) Valid() bool {
	if e.Path == "" || e.PID <= 0 || e.Timestamp.IsZero() {
		return false
	}
	return e.Kind == EventStart || e.Kind == EventStop
}

// UsageSession is one reconstructed interval during which an installed
// application was observed running. Name always holds the canonical
// installed-application name, never the raw process name.
type UsageSession struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	User      string    `json:"user"`
	StartTime time.Time `json:"startTime"`
	// EndTime is nil for sessions still running at snapshot time.
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationSeconds int64      `json:"durationSeconds"`
	ProcessID       int        `json:"processId"`
}
