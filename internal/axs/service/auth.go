package service

import (
	"context"

	"github.com/axs360/access-engine/internal/axs/types"
)

// actsFor reports whether p may act on behalf of businessID.  Admins act for
// every business; business accounts and scanners only for their own.
func actsFor(p types.Principal, businessID string) bool {
	switch p.Role {
	case types.RoleAdmin:
		return true
	case types.RoleBusiness, types.RoleScanner:
		return p.BusinessID != "" && p.BusinessID == businessID
	}
	return false
}

// authorizeLocation lets internal callers (no principal), admins, and the
// owning business and its scanners read a location's operational data.
func authorizeLocation(ctx context.Context, loc types.Location) error {
	p, ok := types.PrincipalFrom(ctx)
	if !ok || actsFor(p, loc.BusinessID) {
		return nil
	}
	return ErrForbidden
}

// authorizeRecorder decides who may record presentations at loc.  Pass
// holders may check themselves in anywhere; authorizeHolder then limits them
// to their own pass.  Staff are limited to their own business's locations.
func authorizeRecorder(ctx context.Context, loc types.Location) error {
	p, ok := types.PrincipalFrom(ctx)
	if !ok || p.Role == types.RoleUser || actsFor(p, loc.BusinessID) {
		return nil
	}
	return ErrForbidden
}

func authorizeHolder(ctx context.Context, pass types.Pass) error {
	p, ok := types.PrincipalFrom(ctx)
	if !ok || p.Role != types.RoleUser {
		return nil
	}
	if p.UserID != "" && p.UserID == pass.OwnerID {
		return nil
	}
	return ErrForbidden
}

// authorizeOwner lets a user read only their own data.
func authorizeOwner(ctx context.Context, ownerID string) error {
	p, ok := types.PrincipalFrom(ctx)
	if !ok || p.Role == types.RoleAdmin {
		return nil
	}
	if p.UserID != "" && p.UserID == ownerID {
		return nil
	}
	return ErrForbidden
}
