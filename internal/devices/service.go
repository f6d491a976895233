package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDeviceNotFound = errors.New("device not found")

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Enroll registers a device by serial number. Re-enrolling an existing serial
// refreshes hostname, platform and last-seen instead of creating a new row.
func (s *Service) Enroll(ctx context.Context, serialNumber, hostname, platform string) (*Device, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO devices (serial_number, hostname, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (serial_number) DO UPDATE
		SET hostname = EXCLUDED.hostname,
		    platform = EXCLUDED.platform,
		    last_seen_at = now()
		RETURNING id, serial_number, hostname, platform, archived, enrolled_at, last_seen_at`,
		serialNumber, hostname, platform)

	device, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("enroll device: %w", err)
	}

	s.RecordEvent(ctx, device.ID, EventDeviceEnrolled, "device enrolled: "+serialNumber)

	slog.Info("Device enrolled", "serial_number", serialNumber, "device_id", device.ID)
	return device, nil
}

// GetBySerial retrieves a device by its serial number.
func (s *Service) GetBySerial(ctx context.Context, serialNumber string) (*Device, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, serial_number, hostname, platform, archived, enrolled_at, last_seen_at
		FROM devices WHERE serial_number = $1`,
		serialNumber)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("get device: %w", err)
	}
	return device, nil
}

// List returns all devices ordered by serial number.
func (s *Service) List(ctx context.Context) ([]Device, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, serial_number, hostname, platform, archived, enrolled_at, last_seen_at
		FROM devices ORDER BY serial_number`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var result []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		result = append(result, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return result, nil
}

// SetArchived flips the archive flag. Archiving keeps the stored snapshots;
// it only removes the device from reports and blocks fresh submissions.
func (s *Service) SetArchived(ctx context.Context, serialNumber string, archived bool) (*Device, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE devices SET archived = $2 WHERE serial_number = $1
		RETURNING id, serial_number, hostname, platform, archived, enrolled_at, last_seen_at`,
		serialNumber, archived)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("set archived: %w", err)
	}

	kind := EventDeviceArchived
	if !archived {
		kind = EventDeviceUnarchived
	}
	s.RecordEvent(ctx, device.ID, kind, "archive state changed")

	slog.Info("Device archive state changed", "serial_number", serialNumber, "archived", archived)
	return device, nil
}

// TouchLastSeen updates the device's last-seen timestamp.
func (s *Service) TouchLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE devices SET last_seen_at = $2 WHERE id = $1`, deviceID, seenAt)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

// RecordEvent appends an audit event. Audit failures are logged, never
// propagated: losing one log row must not fail the operation it describes.
func (s *Service) RecordEvent(ctx context.Context, deviceID, kind, message string) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (device_id, kind, message) VALUES ($1, $2, $3)`,
		deviceID, kind, message)
	if err != nil {
		slog.Error("Failed to record audit event", "device_id", deviceID, "kind", kind, "error", err)
	}
}

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.SerialNumber, &d.Hostname, &d.Platform, &d.Archived, &d.EnrolledAt, &d.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
