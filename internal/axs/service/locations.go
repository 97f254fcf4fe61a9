package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

type LocationDirectory struct {
	store    store.LocationStore
	validate *Validator
	logger   *zerolog.Logger
}

func NewLocationDirectory(ls store.LocationStore, v *Validator, logger *zerolog.Logger) *LocationDirectory {
	return &LocationDirectory{store: ls, validate: v, logger: logger}
}

// Register creates or updates a location.  Re-entry policy and hard capacity
// fall back to the defaults for the location's kind.  A business principal
// may only register locations for itself.
func (d *LocationDirectory) Register(ctx context.Context, req types.LocationRequest) (types.Location, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.BusinessID = strings.TrimSpace(req.BusinessID)

	admin := true
	if p, ok := types.PrincipalFrom(ctx); ok {
		switch p.Role {
		case types.RoleAdmin:
		case types.RoleBusiness:
			admin = false
			if req.BusinessID == "" {
				req.BusinessID = p.BusinessID
			}
			if req.BusinessID != p.BusinessID {
				return types.Location{}, ErrForbidden
			}
		default:
			return types.Location{}, ErrForbidden
		}
	}
	if err := d.validate.Struct(req); err != nil {
		return types.Location{}, err
	}
	if req.BusinessID == "" {
		return types.Location{}, ValidationErrors{{Field: "business_id", Message: "business_id is required"}}
	}

	if prev, err := d.store.GetLocation(ctx, req.ID); err == nil && !admin && prev.BusinessID != req.BusinessID {
		return types.Location{}, ErrForbidden
	}

	def := types.DefaultPolicy(req.Kind)
	loc := types.Location{
		ID:            req.ID,
		BusinessID:    req.BusinessID,
		Name:          strings.TrimSpace(req.Name),
		Kind:          req.Kind,
		Capacity:      req.Capacity,
		ReentryPolicy: req.ReentryPolicy,
		HardCapacity:  def.HardCapacity,
		Thresholds:    req.Thresholds,
		UpdatedAt:     time.Now().UTC(),
	}
	if loc.ReentryPolicy == "" {
		loc.ReentryPolicy = def.ReentryPolicy
	}
	if req.HardCapacity != nil {
		loc.HardCapacity = *req.HardCapacity
	}

	if err := d.store.UpsertLocation(ctx, loc); err != nil {
		return types.Location{}, fmt.Errorf("Register: %w", err)
	}
	d.logger.Info().
		Str("location_id", loc.ID).
		Str("kind", string(loc.Kind)).
		Int("capacity", loc.Capacity).
		Str("reentry_policy", string(loc.ReentryPolicy)).
		Msg("location registered")
	return d.Get(ctx, loc.ID)
}

func (d *LocationDirectory) Get(ctx context.Context, locationID string) (types.Location, error) {
	loc, err := d.store.GetLocation(ctx, locationID)
	if err != nil {
		return types.Location{}, notFound(err)
	}
	return loc, nil
}

func (d *LocationDirectory) List(ctx context.Context) ([]types.Location, error) {
	return d.store.ListLocations(ctx)
}
