package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

// sqlTx adapts a writer transaction to store.Tx.
type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Pass(ctx context.Context, passID string) (types.Pass, error) {
	p, err := scanPass(t.tx.QueryRowContext(ctx, `SELECT `+passColumns+` FROM passes WHERE id = ?;`, passID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Pass{}, store.ErrNotFound
	}
	if err != nil {
		return types.Pass{}, fmt.Errorf("Pass %s: %w", passID, err)
	}
	return p, nil
}

func (t *sqlTx) ActivePasses(ctx context.Context, ownerID string, kind types.PassKind, target string) ([]types.Pass, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT `+passColumns+`
FROM passes
WHERE owner_id = ? AND kind = ? AND target = ? AND status = 'active'
ORDER BY created_at_ms;
`, ownerID, string(kind), target)
	if err != nil {
		return nil, fmt.Errorf("ActivePasses: %w", err)
	}
	defer rows.Close()

	var out []types.Pass
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("ActivePasses scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertPass(ctx context.Context, p types.Pass) error {
	details, err := encodeDetails(p.Details)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO passes(
  id, owner_id, kind, target, details_json, valid_from_ms, valid_until_ms,
  status, status_reason, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		p.ID, p.OwnerID, string(p.Kind), p.Details.Target(), details, toMs(p.ValidFrom), nullMs(p.ValidUntil),
		string(p.Status), p.StatusReason, toMs(p.CreatedAt), toMs(p.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("insert pass %s: %w", p.ID, store.ErrConflict)
		}
		return fmt.Errorf("InsertPass: %w", err)
	}
	return nil
}

func (t *sqlTx) SetPassStatus(ctx context.Context, passID string, status types.PassStatus, reason string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE passes
SET status = ?, status_reason = ?, updated_at_ms = ?
WHERE id = ?;
`, string(status), reason, toMs(at), passID)
	if err != nil {
		return fmt.Errorf("SetPassStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *sqlTx) Location(ctx context.Context, locationID string) (types.Location, error) {
	l, err := scanLocation(t.tx.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ?;`, locationID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Location{}, store.ErrNotFound
	}
	if err != nil {
		return types.Location{}, fmt.Errorf("Location %s: %w", locationID, err)
	}
	return l, nil
}

func (t *sqlTx) OpenSessions(ctx context.Context, passID, locationID string) ([]types.AccessSession, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM access_sessions
WHERE pass_id = ? AND location_id = ? AND exit_at_ms IS NULL
ORDER BY entry_at_ms, rowid;
`, passID, locationID)
	if err != nil {
		return nil, fmt.Errorf("OpenSessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func (t *sqlTx) InsertSession(ctx context.Context, s types.AccessSession) error {
	if _, err := t.tx.ExecContext(ctx, `
INSERT INTO access_sessions(id, pass_id, owner_id, location_id, subject, entry_at_ms, exit_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, s.ID, s.PassID, s.OwnerID, s.LocationID, s.Subject, toMs(s.EntryAt), nullMs(s.ExitAt)); err != nil {
		return fmt.Errorf("InsertSession: %w", err)
	}
	return nil
}

func (t *sqlTx) CloseSession(ctx context.Context, sessionID string, exitAt time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE access_sessions
SET exit_at_ms = ?
WHERE id = ? AND exit_at_ms IS NULL;
`, toMs(exitAt), sessionID)
	if err != nil {
		return fmt.Errorf("CloseSession: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("close session %s: %w", sessionID, store.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) Occupancy(ctx context.Context, locationID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT occupancy FROM locations WHERE id = ?;`, locationID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("Occupancy: %w", err)
	}
	return n, nil
}

func (t *sqlTx) AdjustOccupancy(ctx context.Context, locationID string, delta int) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
UPDATE locations
SET occupancy = MAX(0, occupancy + ?)
WHERE id = ?
RETURNING occupancy;
`, delta, locationID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("AdjustOccupancy: %w", err)
	}
	return n, nil
}

func (t *sqlTx) LastEventAt(ctx context.Context, passID, locationID string) (time.Time, error) {
	var ms sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
SELECT MAX(occurred_at_ms)
FROM access_events
WHERE pass_id = ? AND location_id = ? AND outcome = 'GRANTED';
`, passID, locationID).Scan(&ms)
	if err != nil {
		return time.Time{}, fmt.Errorf("LastEventAt: %w", err)
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return fromMs(ms.Int64), nil
}

func (t *sqlTx) AppendEvent(ctx context.Context, ev *types.AccessEvent) error {
	return insertEvent(ctx, t.tx, ev)
}

func collectSessions(rows *sql.Rows) ([]types.AccessSession, error) {
	var out []types.AccessSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
