package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a pass, location or session does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when inserting a record whose ID already exists.
var ErrConflict = errors.New("store: conflict")

// Store is the full persistence surface the engine needs.  Both the memory
// and sqlite packages implement it.
type Store interface {
	Ledger
	PassReader
	LocationStore
	AccessEventStore
	Ping(ctx context.Context) error
}
