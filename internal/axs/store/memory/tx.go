package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

// memTx writes straight into the store and keeps an undo log so a failed
// update can be rolled back.  The caller holds s.mu for the lifetime of the
// transaction.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) Pass(_ context.Context, passID string) (types.Pass, error) {
	p, ok := t.s.passes[passID]
	if !ok {
		return types.Pass{}, store.ErrNotFound
	}
	return p, nil
}

func (t *memTx) ActivePasses(_ context.Context, ownerID string, kind types.PassKind, target string) ([]types.Pass, error) {
	var out []types.Pass
	for _, p := range t.s.passes {
		if p.OwnerID != ownerID || p.Kind != kind || p.Status.Terminal() {
			continue
		}
		if p.Details != nil && p.Details.Target() == target {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) InsertPass(_ context.Context, p types.Pass) error {
	if _, exists := t.s.passes[p.ID]; exists {
		return fmt.Errorf("insert pass %s: %w", p.ID, store.ErrConflict)
	}
	t.s.passes[p.ID] = p
	t.undo = append(t.undo, func() { delete(t.s.passes, p.ID) })
	return nil
}

func (t *memTx) SetPassStatus(_ context.Context, passID string, status types.PassStatus, reason string, at time.Time) error {
	prev, ok := t.s.passes[passID]
	if !ok {
		return store.ErrNotFound
	}
	next := prev
	next.Status = status
	next.StatusReason = reason
	next.UpdatedAt = at
	t.s.passes[passID] = next
	t.undo = append(t.undo, func() { t.s.passes[passID] = prev })
	return nil
}

func (t *memTx) Location(_ context.Context, locationID string) (types.Location, error) {
	loc, ok := t.s.locations[locationID]
	if !ok {
		return types.Location{}, store.ErrNotFound
	}
	return loc, nil
}

func (t *memTx) OpenSessions(_ context.Context, passID, locationID string) ([]types.AccessSession, error) {
	var out []types.AccessSession
	for _, sess := range t.s.sessions {
		if sess.PassID == passID && sess.LocationID == locationID && sess.Open() {
			out = append(out, sess)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryAt.Before(out[j].EntryAt) })
	return out, nil
}

func (t *memTx) InsertSession(_ context.Context, sess types.AccessSession) error {
	n := len(t.s.sessions)
	t.s.sessions = append(t.s.sessions, sess)
	t.undo = append(t.undo, func() { t.s.sessions = t.s.sessions[:n] })
	return nil
}

func (t *memTx) CloseSession(_ context.Context, sessionID string, exitAt time.Time) error {
	for i := range t.s.sessions {
		if t.s.sessions[i].ID != sessionID {
			continue
		}
		if !t.s.sessions[i].Open() {
			return fmt.Errorf("close session %s: %w", sessionID, store.ErrNotFound)
		}
		at := exitAt
		t.s.sessions[i].ExitAt = &at
		idx := i
		t.undo = append(t.undo, func() { t.s.sessions[idx].ExitAt = nil })
		return nil
	}
	return store.ErrNotFound
}

func (t *memTx) Occupancy(_ context.Context, locationID string) (int, error) {
	return t.s.occupancy[locationID], nil
}

func (t *memTx) AdjustOccupancy(_ context.Context, locationID string, delta int) (int, error) {
	prev := t.s.occupancy[locationID]
	next := prev + delta
	if next < 0 {
		next = 0
	}
	t.s.occupancy[locationID] = next
	t.undo = append(t.undo, func() { t.s.occupancy[locationID] = prev })
	return next, nil
}

func (t *memTx) LastEventAt(_ context.Context, passID, locationID string) (time.Time, error) {
	var last time.Time
	for _, ev := range t.s.events {
		if ev.PassID == passID && ev.LocationID == locationID && ev.Granted() && ev.OccurredAt.After(last) {
			last = ev.OccurredAt
		}
	}
	return last, nil
}

func (t *memTx) AppendEvent(_ context.Context, ev *types.AccessEvent) error {
	n := len(t.s.events)
	seq := t.s.seq
	t.s.appendEventLocked(ev)
	t.undo = append(t.undo, func() {
		t.s.events = t.s.events[:n]
		t.s.seq = seq
	})
	return nil
}
