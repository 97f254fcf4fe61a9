package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

// RecordEvent appends a single event in its own writer transaction.
func (s *Store) RecordEvent(ctx context.Context, ev *types.AccessEvent) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertEvent(ctx, tx, ev)
	})
}

// ListEvents pages through the log newest first.  The cursor predicate
// matches the (location_id, occurred_at_ms DESC, seq DESC) index.
func (s *Store) ListEvents(ctx context.Context, f store.EventFilter) ([]types.AccessEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.LocationID != "" {
		where = append(where, "location_id = ?")
		args = append(args, f.LocationID)
	}
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.PassID != "" {
		where = append(where, "pass_id = ?")
		args = append(args, f.PassID)
	}
	if !f.From.IsZero() {
		where = append(where, "occurred_at_ms >= ?")
		args = append(args, toMs(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "occurred_at_ms < ?")
		args = append(args, toMs(f.To))
	}
	if f.After != nil {
		ms := toMs(f.After.OccurredAt)
		where = append(where, "(occurred_at_ms < ? OR (occurred_at_ms = ? AND seq < ?))")
		args = append(args, ms, ms, f.After.Seq)
	}

	q := `SELECT ` + eventColumns + ` FROM access_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY occurred_at_ms DESC, seq DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, fmt.Errorf("ListEvents: %w", err)
	}
	defer rows.Close()

	var out []types.AccessEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("ListEvents scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Watermark(ctx context.Context, locationID string) (int64, error) {
	var w int64
	if err := s.db.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq), 0) FROM access_events WHERE location_id = ?;
`, locationID).Scan(&w); err != nil {
		return 0, fmt.Errorf("Watermark: %w", err)
	}
	return w, nil
}
