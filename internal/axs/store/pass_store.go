package store

import (
	"context"
	"time"

	"github.com/axs360/access-engine/internal/axs/types"
)

type PassReader interface {
	GetPass(ctx context.Context, passID string) (types.Pass, error)
	ListPassesByOwner(ctx context.Context, ownerID string) ([]types.Pass, error)
	// ExpireLapsedPasses marks active passes whose ValidUntil is at or before
	// now as expired and returns how many changed.
	ExpireLapsedPasses(ctx context.Context, now time.Time) (int64, error)
}
