package store

import (
	"context"

	"github.com/axs360/access-engine/internal/axs/types"
)

type LocationStore interface {
	UpsertLocation(ctx context.Context, loc types.Location) error
	GetLocation(ctx context.Context, locationID string) (types.Location, error)
	ListLocations(ctx context.Context) ([]types.Location, error)
	// CurrentOccupancy returns the committed counter together with the
	// location's log watermark.
	CurrentOccupancy(ctx context.Context, locationID string) (count int, watermark int64, err error)
	OpenSessionsAt(ctx context.Context, locationID string) ([]types.AccessSession, error)
}
