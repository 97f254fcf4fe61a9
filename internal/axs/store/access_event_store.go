package store

import (
	"context"
	"time"

	"github.com/axs360/access-engine/internal/axs/types"
)

// EventCursor marks a position in the newest-first ordering of the log.
// Events strictly older than (OccurredAt, Seq) follow the cursor.
type EventCursor struct {
	OccurredAt time.Time
	Seq        int64
}

// EventFilter selects access events.  Empty fields do not filter.  Results
// are ordered by OccurredAt descending, then Seq descending.
type EventFilter struct {
	LocationID string
	OwnerID    string
	PassID     string
	From       time.Time // inclusive
	To         time.Time // exclusive
	After      *EventCursor
	Limit      int // 0 = no limit
}

// AccessEventStore is the read side of the append-only access log, plus a
// standalone append for events recorded outside a ledger update.
type AccessEventStore interface {
	RecordEvent(ctx context.Context, ev *types.AccessEvent) error
	ListEvents(ctx context.Context, f EventFilter) ([]types.AccessEvent, error)
	// Watermark is the highest Seq logged for the location (0 if none).
	Watermark(ctx context.Context, locationID string) (int64, error)
}
