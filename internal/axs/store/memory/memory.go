package memory

import (
	"context"
	"sync"
	"time"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

// Store is an in-memory implementation of store.Store.  It is intended for
// use in tests and dev environments.  A single mutex serialises every ledger
// update, which is what gives Update its atomicity.
type Store struct {
	// writer admits one Update at a time.  Waiting on it, unlike on mu,
	// can be abandoned when the caller's context ends.
	writer    chan struct{}
	mu        sync.RWMutex
	passes    map[string]types.Pass
	locations map[string]types.Location
	occupancy map[string]int
	sessions  []types.AccessSession
	events    []types.AccessEvent
	seq       int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		writer:    make(chan struct{}, 1),
		passes:    make(map[string]types.Pass),
		locations: make(map[string]types.Location),
		occupancy: make(map[string]int),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// Update runs fn with exclusive access.  If fn fails every write it made is
// undone before the lock is released.  A caller queued behind another Update
// gets ctx.Err() as soon as its context ends.
func (s *Store) Update(ctx context.Context, fn store.TxFn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writer }()

	s.mu.Lock()
	defer s.mu.Unlock()

	// The caller may have given up while waiting for the slot.
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// appendEventLocked assigns the next sequence number and stores ev.
func (s *Store) appendEventLocked(ev *types.AccessEvent) {
	s.seq++
	ev.Seq = s.seq
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}
	s.events = append(s.events, *ev)
}
