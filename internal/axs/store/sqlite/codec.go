package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/axs360/access-engine/internal/axs/types"
)

func toMs(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMs(*t)
}

func fromNullMs(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMs(v.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeDetails(d types.PassDetails) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode pass details: %w", err)
	}
	return string(b), nil
}

func decodeDetails(kind types.PassKind, raw string) (types.PassDetails, error) {
	switch kind {
	case types.PassKindVehicle:
		var d types.VehicleDetails
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode vehicle details: %w", err)
		}
		return d, nil
	case types.PassKindLounge:
		var d types.LoungeDetails
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode lounge details: %w", err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown pass kind %q", kind)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const passColumns = `id, owner_id, kind, details_json, valid_from_ms, valid_until_ms, status, status_reason, created_at_ms, updated_at_ms`

func scanPass(r rowScanner) (types.Pass, error) {
	var (
		p                    types.Pass
		kind, details        string
		status               string
		validFrom            int64
		validUntil           sql.NullInt64
		createdMs, updatedMs int64
	)
	if err := r.Scan(&p.ID, &p.OwnerID, &kind, &details, &validFrom, &validUntil, &status, &p.StatusReason, &createdMs, &updatedMs); err != nil {
		return types.Pass{}, err
	}
	p.Kind = types.PassKind(kind)
	d, err := decodeDetails(p.Kind, details)
	if err != nil {
		return types.Pass{}, err
	}
	p.Details = d
	p.Status = types.PassStatus(status)
	p.ValidFrom = fromMs(validFrom)
	p.ValidUntil = fromNullMs(validUntil)
	p.CreatedAt = fromMs(createdMs)
	p.UpdatedAt = fromMs(updatedMs)
	return p, nil
}

const locationColumns = `id, business_id, name, kind, capacity, reentry_policy, hard_capacity, thresholds_json, created_at_ms, updated_at_ms`

func scanLocation(r rowScanner) (types.Location, error) {
	var (
		l                    types.Location
		kind, policy         string
		hard                 int
		thresholds           string
		createdMs, updatedMs int64
	)
	if err := r.Scan(&l.ID, &l.BusinessID, &l.Name, &kind, &l.Capacity, &policy, &hard, &thresholds, &createdMs, &updatedMs); err != nil {
		return types.Location{}, err
	}
	l.Kind = types.LocationKind(kind)
	l.ReentryPolicy = types.ReentryPolicy(policy)
	l.HardCapacity = hard == 1
	if thresholds != "" {
		if err := json.Unmarshal([]byte(thresholds), &l.Thresholds); err != nil {
			return types.Location{}, fmt.Errorf("decode thresholds for %s: %w", l.ID, err)
		}
	}
	l.CreatedAt = fromMs(createdMs)
	l.UpdatedAt = fromMs(updatedMs)
	return l, nil
}

const sessionColumns = `id, pass_id, owner_id, location_id, subject, entry_at_ms, exit_at_ms`

func scanSession(r rowScanner) (types.AccessSession, error) {
	var (
		s       types.AccessSession
		entryMs int64
		exitMs  sql.NullInt64
	)
	if err := r.Scan(&s.ID, &s.PassID, &s.OwnerID, &s.LocationID, &s.Subject, &entryMs, &exitMs); err != nil {
		return types.AccessSession{}, err
	}
	s.EntryAt = fromMs(entryMs)
	s.ExitAt = fromNullMs(exitMs)
	return s, nil
}

const eventColumns = `seq, id, pass_id, owner_id, location_id, subject, direction, method, occurred_at_ms, recorded_at_ms, outcome, reason, session_id, duration_ms, scanned_by`

func scanEvent(r rowScanner) (types.AccessEvent, error) {
	var (
		e                                  types.AccessEvent
		direction, method, outcome, reason string
		occurredMs, recordedMs, durationMs int64
	)
	if err := r.Scan(&e.Seq, &e.ID, &e.PassID, &e.OwnerID, &e.LocationID, &e.Subject, &direction, &method,
		&occurredMs, &recordedMs, &outcome, &reason, &e.SessionID, &durationMs, &e.ScannedBy); err != nil {
		return types.AccessEvent{}, err
	}
	e.Direction = types.Direction(direction)
	e.Method = types.AccessMethod(method)
	e.Outcome = types.Outcome(outcome)
	e.Reason = types.DenialReason(reason)
	e.OccurredAt = fromMs(occurredMs)
	e.RecordedAt = fromMs(recordedMs)
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return e, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, ex execer, ev *types.AccessEvent) error {
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}
	res, err := ex.ExecContext(ctx, `
INSERT INTO access_events(
  id, pass_id, owner_id, location_id, subject, direction, method,
  occurred_at_ms, recorded_at_ms, outcome, reason, session_id, duration_ms, scanned_by
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		ev.ID, ev.PassID, ev.OwnerID, ev.LocationID, ev.Subject, string(ev.Direction), string(ev.Method),
		toMs(ev.OccurredAt), toMs(ev.RecordedAt), string(ev.Outcome), string(ev.Reason), ev.SessionID,
		ev.Duration.Milliseconds(), ev.ScannedBy,
	)
	if err != nil {
		return fmt.Errorf("insert access event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("access event seq: %w", err)
	}
	ev.Seq = seq
	return nil
}
