package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

// UpsertLocation creates or replaces a location's configuration.  The
// occupancy counter and created_at_ms of an existing row are kept.
func (s *Store) UpsertLocation(ctx context.Context, loc types.Location) error {
	thresholds, err := json.Marshal(loc.Thresholds)
	if err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	if loc.Thresholds == nil {
		thresholds = []byte("[]")
	}
	now := time.Now().UTC()
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = now
	}
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = now
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO locations(
  id, business_id, name, kind, capacity,
  reentry_policy, hard_capacity, thresholds_json,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  business_id = excluded.business_id,
  name = excluded.name,
  kind = excluded.kind,
  capacity = excluded.capacity,
  reentry_policy = excluded.reentry_policy,
  hard_capacity = excluded.hard_capacity,
  thresholds_json = excluded.thresholds_json,
  updated_at_ms = excluded.updated_at_ms;
`,
			loc.ID, loc.BusinessID, loc.Name, string(loc.Kind), loc.Capacity,
			string(loc.ReentryPolicy), boolInt(loc.HardCapacity), string(thresholds),
			toMs(loc.CreatedAt), toMs(loc.UpdatedAt),
		); err != nil {
			return fmt.Errorf("UpsertLocation %s: %w", loc.ID, err)
		}
		return nil
	})
}

func (s *Store) GetLocation(ctx context.Context, locationID string) (types.Location, error) {
	l, err := scanLocation(s.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ?;`, locationID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Location{}, store.ErrNotFound
	}
	if err != nil {
		return types.Location{}, fmt.Errorf("GetLocation %s: %w", locationID, err)
	}
	return l, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]types.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("ListLocations: %w", err)
	}
	defer rows.Close()

	var out []types.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("ListLocations scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CurrentOccupancy reads the counter and the log watermark in one read
// transaction so the pair is consistent.
func (s *Store) CurrentOccupancy(ctx context.Context, locationID string) (int, int64, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, 0, fmt.Errorf("CurrentOccupancy begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	err = tx.QueryRowContext(ctx, `SELECT occupancy FROM locations WHERE id = ?;`, locationID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, store.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("CurrentOccupancy: %w", err)
	}

	var watermark int64
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq), 0) FROM access_events WHERE location_id = ?;
`, locationID).Scan(&watermark); err != nil {
		return 0, 0, fmt.Errorf("CurrentOccupancy watermark: %w", err)
	}
	return count, watermark, nil
}

func (s *Store) OpenSessionsAt(ctx context.Context, locationID string) ([]types.AccessSession, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM access_sessions
WHERE location_id = ? AND exit_at_ms IS NULL
ORDER BY entry_at_ms, rowid;
`, locationID)
	if err != nil {
		return nil, fmt.Errorf("OpenSessionsAt: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}
