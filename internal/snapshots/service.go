package snapshots

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fleetsight/fleetsight/internal/devices"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrDeviceArchived   = errors.New("device is archived")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// HashPolicy returns the content address of a policy payload.
func HashPolicy(payload json.RawMessage) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Submit stores a device's applications snapshot, overwriting the previous one
// for the same category. Archived devices are rejected. Active sessions that
// fail inventory validation are dropped before the document is persisted.
func (s *Service) Submit(ctx context.Context, device *devices.Device, category string, doc Document, policy *Policy) (*Snapshot, error) {
	if device.Archived {
		return nil, ErrDeviceArchived
	}

	if dropped := doc.ValidateSessions(); dropped > 0 {
		slog.Warn("Dropped sessions failing inventory validation",
			"device_id", device.ID,
			"dropped", dropped)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot document: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin submission: %w", err)
	}
	defer tx.Rollback(ctx)

	var policyHash *string
	if policy != nil {
		hash := HashPolicy(policy.Payload)
		_, err := tx.Exec(ctx, `
			INSERT INTO shared_policies (hash, payload) VALUES ($1, $2)
			ON CONFLICT (hash) DO NOTHING`,
			hash, policy.Payload)
		if err != nil {
			return nil, fmt.Errorf("upsert shared policy: %w", err)
		}
		policyHash = &hash
	}

	// Update-else-insert instead of ON CONFLICT: there is deliberately no
	// unique index on (device_id, category), the duplicate-collapse
	// maintenance pass owns that invariant.
	snap, err := s.updateCurrent(ctx, tx, device.ID, category, body, policyHash, doc.CollectedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		snap, err = s.insertNew(ctx, tx, device.ID, category, body, policyHash, doc.CollectedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit submission: %w", err)
	}

	snap.Document = doc
	slog.Info("Snapshot stored",
		"device_id", device.ID,
		"category", category,
		"applications", len(doc.InstalledApplications),
		"sessions", len(doc.Usage.ActiveSessions))
	return snap, nil
}

func (s *Service) updateCurrent(ctx context.Context, tx pgx.Tx, deviceID, category string, body []byte, policyHash *string, collectedAt time.Time) (*Snapshot, error) {
	row := tx.QueryRow(ctx, `
		UPDATE snapshots
		SET document = $3, policy_hash = $4, collected_at = $5, updated_at = now()
		WHERE id = (
			SELECT id FROM snapshots
			WHERE device_id = $1 AND category = $2
			ORDER BY updated_at DESC, id LIMIT 1
		)
		RETURNING id, device_id, category, policy_hash, collected_at, updated_at`,
		deviceID, category, body, policyHash, collectedAt)
	return scanSnapshot(row)
}

func (s *Service) insertNew(ctx context.Context, tx pgx.Tx, deviceID, category string, body []byte, policyHash *string, collectedAt time.Time) (*Snapshot, error) {
	row := tx.QueryRow(ctx, `
		INSERT INTO snapshots (device_id, category, document, policy_hash, collected_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, device_id, category, policy_hash, collected_at, updated_at`,
		deviceID, category, body, policyHash, collectedAt)
	return scanSnapshot(row)
}

// Get returns the device's current snapshot for a category. When duplicate
// rows exist (pre-collapse), the most recently updated wins.
func (s *Service) Get(ctx context.Context, deviceID, category string) (*Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, device_id, category, document, policy_hash, collected_at, updated_at
		FROM snapshots
		WHERE device_id = $1 AND category = $2
		ORDER BY updated_at DESC, id LIMIT 1`,
		deviceID, category)

	var snap Snapshot
	var body []byte
	var policyHash *string
	err := row.Scan(&snap.ID, &snap.DeviceID, &snap.Category, &body, &policyHash, &snap.CollectedAt, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if policyHash != nil {
		snap.PolicyHash = *policyHash
	}
	if err := json.Unmarshal(body, &snap.Document); err != nil {
		return nil, fmt.Errorf("decode snapshot document: %w", err)
	}
	return &snap, nil
}

// GetPolicy returns a shared policy record by content hash.
func (s *Service) GetPolicy(ctx context.Context, hash string) (*Policy, error) {
	var p Policy
	err := s.pool.QueryRow(ctx,
		`SELECT hash, payload FROM shared_policies WHERE hash = $1`, hash).
		Scan(&p.Hash, &p.Payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return &p, nil
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var snap Snapshot
	var policyHash *string
	err := row.Scan(&snap.ID, &snap.DeviceID, &snap.Category, &policyHash, &snap.CollectedAt, &snap.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if policyHash != nil {
		snap.PolicyHash = *policyHash
	}
	return &snap, nil
}
