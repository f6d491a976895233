// Package capture adapts platform-specific process lifecycle event sources
// into a uniform event sequence for session reconstruction.
package capture

import (
	"context"
	"errors"

	"github.com/fleetsight/fleetsight/internal/sessions"
)

// ErrUnavailable means the event source could not be read at all. Callers
// report the cycle with capture disabled rather than failing collection.
var ErrUnavailable = errors.New("capture source unavailable")

// Source yields the raw process events observed since the previous collection
// cycle.
type Source interface {
	// Method names the platform mechanism (recorded in the snapshot).
	Method() string
	Events(ctx context.Context) ([]sessions.RawProcessEvent, error)
}
