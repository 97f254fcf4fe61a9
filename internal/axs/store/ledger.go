package store

import (
	"context"
	"time"

	"github.com/axs360/access-engine/internal/axs/types"
)

// Tx is the view of the store available inside one atomic ledger update.
// Everything read or written through a Tx commits or rolls back together.
type Tx interface {
	Pass(ctx context.Context, passID string) (types.Pass, error)
	// ActivePasses returns the owner's non-terminal passes of the given kind
	// whose details target the given value.
	ActivePasses(ctx context.Context, ownerID string, kind types.PassKind, target string) ([]types.Pass, error)
	InsertPass(ctx context.Context, p types.Pass) error
	SetPassStatus(ctx context.Context, passID string, status types.PassStatus, reason string, at time.Time) error

	Location(ctx context.Context, locationID string) (types.Location, error)

	// OpenSessions lists the open sessions of a pass at a location, oldest
	// first.
	OpenSessions(ctx context.Context, passID, locationID string) ([]types.AccessSession, error)
	InsertSession(ctx context.Context, s types.AccessSession) error
	CloseSession(ctx context.Context, sessionID string, exitAt time.Time) error

	// Occupancy is the maintained open-session counter for a location.
	Occupancy(ctx context.Context, locationID string) (int, error)
	// AdjustOccupancy adds delta to the counter and returns the new value.
	// The counter never drops below zero.
	AdjustOccupancy(ctx context.Context, locationID string, delta int) (int, error)

	// LastEventAt is the latest OccurredAt of a granted event for the pass
	// at the location, or the zero time.
	LastEventAt(ctx context.Context, passID, locationID string) (time.Time, error)
	// AppendEvent writes ev to the access log and sets ev.Seq.
	AppendEvent(ctx context.Context, ev *types.AccessEvent) error
}

type TxFn func(ctx context.Context, tx Tx) error

// Ledger applies mutations one transaction at a time.  Implementations
// serialise Update calls so that check-then-act sequences inside fn are
// race free.
type Ledger interface {
	Update(ctx context.Context, fn TxFn) error
}
