package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetsight/fleetsight/internal/snapshots"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service answers fleet report queries. Read-only; concurrent queries need no
// coordination beyond the store's own read consistency.
type Service struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, now: time.Now}
}

// SoftwareUsage loads every device's current applications snapshot and
// aggregates it over the window. Store errors are surfaced, never papered
// over with partial results.
func (s *Service) SoftwareUsage(ctx context.Context, window Window, includeArchived bool) (*UtilizationReport, error) {
	rows, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	opts := Options{IncludeArchived: includeArchived}
	if window.Duration > 0 {
		opts.Cutoff = s.now().Add(-window.Duration)
	}
	return Aggregate(rows, opts), nil
}

func (s *Service) load(ctx context.Context) ([]DeviceSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (d.id)
		       d.id, d.serial_number, d.archived, s.document
		FROM snapshots s
		JOIN devices d ON d.id = s.device_id
		WHERE s.category = $1
		ORDER BY d.id, s.updated_at DESC, s.id`,
		snapshots.CategoryApplications)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	var result []DeviceSnapshot
	for rows.Next() {
		var ds DeviceSnapshot
		var body []byte
		if err := rows.Scan(&ds.DeviceID, &ds.SerialNumber, &ds.Archived, &body); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if err := json.Unmarshal(body, &ds.Document); err != nil {
			return nil, fmt.Errorf("decode snapshot for device %s: %w", ds.DeviceID, err)
		}
		result = append(result, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}
