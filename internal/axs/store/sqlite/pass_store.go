package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

func (s *Store) GetPass(ctx context.Context, passID string) (types.Pass, error) {
	p, err := scanPass(s.db.QueryRowContext(ctx, `SELECT `+passColumns+` FROM passes WHERE id = ?;`, passID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Pass{}, store.ErrNotFound
	}
	if err != nil {
		return types.Pass{}, fmt.Errorf("GetPass %s: %w", passID, err)
	}
	return p, nil
}

func (s *Store) ListPassesByOwner(ctx context.Context, ownerID string) ([]types.Pass, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+passColumns+`
FROM passes
WHERE owner_id = ?
ORDER BY created_at_ms DESC, id;
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ListPassesByOwner: %w", err)
	}
	defer rows.Close()

	var out []types.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPassesByOwner scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ExpireLapsedPasses flips active passes whose window has closed to expired.
//
// Uses the idx_passes_lapse index for the range scan.
func (s *Store) ExpireLapsedPasses(ctx context.Context, now time.Time) (int64, error) {
	nowMs := toMs(now)

	var expired int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE passes
SET status = 'expired',
    status_reason = 'validity window ended',
    updated_at_ms = ?
WHERE status = 'active'
  AND valid_until_ms IS NOT NULL
  AND valid_until_ms <= ?;
`, nowMs, nowMs)
		if err != nil {
			return fmt.Errorf("ExpireLapsedPasses: %w", err)
		}
		expired, _ = res.RowsAffected()
		return nil
	})
	return expired, err
}
