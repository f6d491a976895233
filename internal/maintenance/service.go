// Package maintenance enforces retention and referential-integrity invariants
// over the snapshot store with ordered, independently idempotent passes.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// advisoryLockKey serializes maintenance runs per database. Concurrent runs
// are benign (delete-delete races are idempotent) but wasteful.
const advisoryLockKey = int64(0x666c656574736967) // "fleetsig"

const defaultBatchSize = 1000

var ErrAlreadyRunning = errors.New("maintenance run already in progress")

type Config struct {
	Interval       time.Duration `mapstructure:"interval"`
	EventRetention time.Duration `mapstructure:"event_retention"`
	BatchSize      int           `mapstructure:"batch_size"`
}

// Result reports the affected-row count of each pass of one run.
type Result struct {
	EventsDeleted     int64 `json:"eventsDeleted"`
	DuplicatesRemoved int64 `json:"duplicatesRemoved"`
	OrphansRemoved    int64 `json:"orphansRemoved"`
	PoliciesRemoved   int64 `json:"policiesRemoved"`
}

type Service struct {
	pool           *pgxpool.Pool
	eventRetention time.Duration
	batchSize      int
}

func NewService(pool *pgxpool.Pool, cfg Config) *Service {
	retention := cfg.EventRetention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Service{pool: pool, eventRetention: retention, batchSize: batch}
}

// Run executes all passes in order. A pass failure stops the run but the
// counts of completed passes are still returned; every pass is idempotent, so
// retrying the whole run is always safe. A run already holding the advisory
// lock yields ErrAlreadyRunning.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire maintenance connection: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryLockKey).Scan(&locked); err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}
	defer func() {
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, advisoryLockKey); err != nil {
			slog.Error("Failed to release maintenance run lock", "error", err)
		}
	}()

	started := time.Now()
	result := &Result{}

	if result.EventsDeleted, err = s.sweepEvents(ctx); err != nil {
		return result, fmt.Errorf("event retention sweep: %w", err)
	}
	if result.DuplicatesRemoved, err = s.collapseDuplicates(ctx); err != nil {
		return result, fmt.Errorf("duplicate-snapshot collapse: %w", err)
	}
	if result.OrphansRemoved, err = s.sweepOrphans(ctx); err != nil {
		return result, fmt.Errorf("orphan sweep: %w", err)
	}
	if result.PoliciesRemoved, err = s.collectPolicies(ctx); err != nil {
		return result, fmt.Errorf("shared-policy garbage collection: %w", err)
	}
	if err = s.reclaim(ctx); err != nil {
		return result, fmt.Errorf("reclamation: %w", err)
	}

	slog.Info("Maintenance run complete",
		"duration", time.Since(started),
		"events_deleted", result.EventsDeleted,
		"duplicates_removed", result.DuplicatesRemoved,
		"orphans_removed", result.OrphansRemoved,
		"policies_removed", result.PoliciesRemoved)
	return result, nil
}

// RunPeriodically triggers Run on a fixed schedule until the context ends.
func (s *Service) RunPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Maintenance scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Maintenance scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				slog.Error("Scheduled maintenance run failed", "error", err)
			}
		}
	}
}

// sweepEvents deletes audit events older than the retention window. Deletes
// are batched so row locks never starve concurrent submissions.
func (s *Service) sweepEvents(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.eventRetention)

	var total int64
	for {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM events WHERE id IN (
				SELECT id FROM events WHERE created_at < $1 ORDER BY id LIMIT $2
			)`,
			cutoff, s.batchSize)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(s.batchSize) {
			return total, nil
		}
	}
}

// collapseDuplicates restores the one-snapshot-per-(device, category)
// invariant, keeping the most recently updated row. Equal timestamps break on
// smallest id.
func (s *Service) collapseDuplicates(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM snapshots WHERE id IN (
			SELECT id FROM (
				SELECT id, row_number() OVER (
					PARTITION BY device_id, category
					ORDER BY updated_at DESC, id
				) AS rn
				FROM snapshots
			) ranked WHERE ranked.rn > 1
		)`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// sweepOrphans deletes snapshots whose device no longer exists.
func (s *Service) sweepOrphans(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM snapshots s
		WHERE NOT EXISTS (SELECT 1 FROM devices d WHERE d.id = s.device_id)`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// collectPolicies removes shared policy records referenced by no current
// snapshot. Reference sets are recomputed from the snapshots just scanned
// (mark-and-sweep), never kept as running counters.
func (s *Service) collectPolicies(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM shared_policies p
		WHERE NOT EXISTS (SELECT 1 FROM snapshots s WHERE s.policy_hash = p.hash)`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// reclaim compacts reclaimed space and refreshes planner statistics.
func (s *Service) reclaim(ctx context.Context) error {
	for _, table := range []string{"events", "snapshots", "shared_policies"} {
		if _, err := s.pool.Exec(ctx, "VACUUM (ANALYZE) "+table); err != nil {
			return fmt.Errorf("vacuum %s: %w", table, err)
		}
	}

	var snapshotCount, eventCount, policyCount int64
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM snapshots),
		       (SELECT count(*) FROM events),
		       (SELECT count(*) FROM shared_policies)`).
		Scan(&snapshotCount, &eventCount, &policyCount)
	if err != nil {
		return fmt.Errorf("refresh statistics: %w", err)
	}

	slog.Info("Store statistics refreshed",
		"snapshots", snapshotCount,
		"events", eventCount,
		"shared_policies", policyCount)
	return nil
}
