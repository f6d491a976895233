// Package collector runs the agent's collection cycle: inventory scan,
// process-event capture, session reconstruction and snapshot submission.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fleetsight/fleetsight/internal/agent/client"
	"github.com/fleetsight/fleetsight/internal/agent/spool"
	"github.com/fleetsight/fleetsight/internal/api/http/dto"
	"github.com/fleetsight/fleetsight/internal/capture"
	"github.com/fleetsight/fleetsight/internal/inventory"
	"github.com/fleetsight/fleetsight/internal/sessions"
	"github.com/fleetsight/fleetsight/internal/snapshots"
)

// flushedRetention bounds how long submitted sessions stay in the spool for
// local inspection before pruning.
const flushedRetention = 7 * 24 * time.Hour

type Collector struct {
	scanner *inventory.Scanner
	source  capture.Source
	spool   *spool.Spool
	client  *client.Client
	policy  json.RawMessage
	now     func() time.Time
}

func New(scanner *inventory.Scanner, source capture.Source, sp *spool.Spool, cl *client.Client, policy json.RawMessage) *Collector {
	return &Collector{
		scanner: scanner,
		source:  source,
		spool:   sp,
		client:  cl,
		policy:  policy,
		now:     time.Now,
	}
}

// RunCycle executes one collection cycle. A failed submit leaves the staged
// sessions in the spool for the next cycle; only an archived device stops the
// loop.
func (c *Collector) RunCycle(ctx context.Context) error {
	collectedAt := c.now().UTC()

	apps := c.scanner.Scan()

	usage := snapshots.UsageInfo{
		IsCaptureEnabled: true,
		CaptureMethod:    c.source.Method(),
	}
	events, err := c.source.Events(ctx)
	if err != nil {
		// An unreadable event source is reported, not fatal: the snapshot
		// goes out with capture disabled and no sessions.
		slog.Warn("Capture unavailable, submitting without usage", "error", err)
		usage.IsCaptureEnabled = false
	} else {
		reconstructed := sessions.Reconstruct(events, apps, collectedAt)
		if err := c.spool.Stage(reconstructed, collectedAt); err != nil {
			// A local disk hiccup skips the cycle rather than stopping the
			// agent; the capture source re-emits on the next drain.
			slog.Warn("Failed to stage sessions, skipping cycle", "error", err)
			return nil
		}
	}

	// Track which spool rows this submission carries. Only those rows are
	// flushed on success; anything not transmitted stays pending.
	var carried []int64
	if usage.IsCaptureEnabled {
		pending, err := c.spool.Pending()
		if err != nil {
			slog.Warn("Failed to read session spool, skipping cycle", "error", err)
			return nil
		}
		for _, entry := range pending {
			carried = append(carried, entry.ID)
			usage.ActiveSessions = append(usage.ActiveSessions, entry.Session)
		}
	}

	submission := dto.SubmitSnapshotRequest{
		InstalledApplications: apps,
		Usage:                 usage,
		Policy:                c.policy,
		CollectedAt:           collectedAt,
	}

	if err := c.client.SubmitSnapshot(ctx, submission); err != nil {
		if errors.Is(err, client.ErrDeviceArchived) {
			return err
		}
		slog.Warn("Snapshot submission failed, will retry next cycle", "error", err)
		return nil
	}

	if err := c.spool.MarkFlushed(carried, c.now()); err != nil {
		slog.Warn("Failed to mark sessions flushed", "error", err)
		return nil
	}
	if _, err := c.spool.Prune(c.now().Add(-flushedRetention)); err != nil {
		slog.Warn("Failed to prune session spool", "error", err)
	}

	slog.Info("Collection cycle complete",
		"applications", len(apps),
		"sessions", len(usage.ActiveSessions),
		"capture_enabled", usage.IsCaptureEnabled)
	return nil
}

// Run runs one cycle immediately, then on every interval tick until the
// context ends or the device is archived.
func (c *Collector) Run(ctx context.Context, interval time.Duration) error {
	if err := c.RunCycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.RunCycle(ctx); err != nil {
				return err
			}
		}
	}
}
