package memory

import (
	"context"
	"sort"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

// RecordEvent appends ev outside of a ledger update.  Used for denials that
// could not be logged inside the transaction that produced them.
func (s *Store) RecordEvent(_ context.Context, ev *types.AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendEventLocked(ev)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, f store.EventFilter) ([]types.AccessEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []types.AccessEvent
	for _, ev := range s.events {
		if matches(ev, f) {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return newerThan(out[i], out[j].OccurredAt.UnixMilli(), out[j].Seq) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Watermark(_ context.Context, locationID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermarkLocked(locationID), nil
}

func (s *Store) watermarkLocked(locationID string) int64 {
	var w int64
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].LocationID == locationID {
			w = s.events[i].Seq
			break
		}
	}
	return w
}

// Events returns a copy of all recorded events in append order.  Test-only
// helper.
func (s *Store) Events() []types.AccessEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AccessEvent, len(s.events))
	copy(out, s.events)
	return out
}

func matches(ev types.AccessEvent, f store.EventFilter) bool {
	if f.LocationID != "" && ev.LocationID != f.LocationID {
		return false
	}
	if f.OwnerID != "" && ev.OwnerID != f.OwnerID {
		return false
	}
	if f.PassID != "" && ev.PassID != f.PassID {
		return false
	}
	if !f.From.IsZero() && ev.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !ev.OccurredAt.Before(f.To) {
		return false
	}
	if f.After != nil && !olderThanCursor(ev, *f.After) {
		return false
	}
	return true
}

// newerThan orders by OccurredAt (millisecond precision) then Seq, both
// descending.
func newerThan(ev types.AccessEvent, ms, seq int64) bool {
	evMS := ev.OccurredAt.UnixMilli()
	if evMS != ms {
		return evMS > ms
	}
	return ev.Seq > seq
}

func olderThanCursor(ev types.AccessEvent, c store.EventCursor) bool {
	ms := c.OccurredAt.UnixMilli()
	evMS := ev.OccurredAt.UnixMilli()
	if evMS != ms {
		return evMS < ms
	}
	return ev.Seq < c.Seq
}
