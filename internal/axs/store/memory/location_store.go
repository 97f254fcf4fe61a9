package memory

import (
	"context"
	"sort"
	"time"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

// UpsertLocation creates or replaces a location.  CreatedAt survives
// replacement and the occupancy counter is left untouched.
func (s *Store) UpsertLocation(_ context.Context, loc types.Location) error {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.locations[loc.ID]; ok {
		loc.CreatedAt = prev.CreatedAt
	} else if loc.CreatedAt.IsZero() {
		loc.CreatedAt = now
	}
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = now
	}
	s.locations[loc.ID] = loc
	return nil
}

func (s *Store) GetLocation(_ context.Context, locationID string) (types.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.locations[locationID]
	if !ok {
		return types.Location{}, store.ErrNotFound
	}
	return loc, nil
}

func (s *Store) ListLocations(context.Context) ([]types.Location, error) {
	s.mu.RLock()
	out := make([]types.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		out = append(out, loc)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CurrentOccupancy(_ context.Context, locationID string) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.locations[locationID]; !ok {
		return 0, 0, store.ErrNotFound
	}
	return s.occupancy[locationID], s.watermarkLocked(locationID), nil
}

func (s *Store) OpenSessionsAt(_ context.Context, locationID string) ([]types.AccessSession, error) {
	s.mu.RLock()
	var out []types.AccessSession
	for _, sess := range s.sessions {
		if sess.LocationID == locationID && sess.Open() {
			out = append(out, sess)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryAt.Before(out[j].EntryAt) })
	return out, nil
}
