package memory

import (
	"context"
	"sort"
	"time"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

func (s *Store) GetPass(_ context.Context, passID string) (types.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.passes[passID]
	if !ok {
		return types.Pass{}, store.ErrNotFound
	}
	return p, nil
}

// ListPassesByOwner returns the owner's passes, newest first.
func (s *Store) ListPassesByOwner(_ context.Context, ownerID string) ([]types.Pass, error) {
	s.mu.RLock()
	var out []types.Pass
	for _, p := range s.passes {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ExpireLapsedPasses(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.passes {
		if p.Status != types.PassStatusActive || p.ValidUntil == nil || p.ValidUntil.After(now) {
			continue
		}
		p.Status = types.PassStatusExpired
		p.StatusReason = "validity window ended"
		p.UpdatedAt = now
		s.passes[id] = p
		n++
	}
	return n, nil
}
