package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
	"github.com/axs360/access-engine/internal/notify"
)

// PassStore is what the registry needs from persistence.
type PassStore interface {
	store.Ledger
	store.PassReader
}

// PassRegistry issues, revokes and answers validity questions about passes.
type PassRegistry struct {
	store    PassStore
	validate *Validator
	notifier notify.Notifier
	logger   *zerolog.Logger
	now      Clock
}

func NewPassRegistry(st PassStore, v *Validator, n notify.Notifier, logger *zerolog.Logger) *PassRegistry {
	return &PassRegistry{store: st, validate: v, notifier: n, logger: logger, now: SystemClock}
}

func (r *PassRegistry) WithClock(c Clock) *PassRegistry {
	r.now = c
	return r
}

// IssuePass creates an active pass.  When req.ID names an existing pass of
// the same owner and kind, that pass is returned unchanged so redelivered
// issue requests are harmless.
func (r *PassRegistry) IssuePass(ctx context.Context, req types.IssuePassRequest) (p types.Pass, err error) {
	ctx, span := tracer.Start(ctx, "PassRegistry.IssuePass")
	defer func() { endSpan(span, err) }()

	p, err = r.buildPass(req)
	if err != nil {
		return types.Pass{}, err
	}
	span.SetAttributes(attribute.String("pass.id", p.ID), attribute.String("pass.kind", string(p.Kind)))

	existing := false
	err = r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		prev, err := tx.Pass(ctx, p.ID)
		switch {
		case err == nil:
			if prev.OwnerID != p.OwnerID || prev.Kind != p.Kind {
				return fmt.Errorf("%w: pass id %s is taken", ErrInvalidRequest, p.ID)
			}
			p, existing = prev, true
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		active, err := tx.ActivePasses(ctx, p.OwnerID, p.Kind, p.Details.Target())
		if err != nil {
			return err
		}
		for _, a := range active {
			if a.Overlaps(p.ValidFrom, p.ValidUntil) {
				return fmt.Errorf("%w: %s", ErrDuplicateActivePass, a.ID)
			}
		}
		return tx.InsertPass(ctx, p)
	})
	if err != nil {
		return types.Pass{}, fmt.Errorf("IssuePass: %w", err)
	}

	if existing {
		r.logger.Debug().Str("pass_id", p.ID).Msg("issue request matched existing pass")
		return p, nil
	}

	r.logger.Info().
		Str("pass_id", p.ID).
		Str("owner_id", p.OwnerID).
		Str("kind", string(p.Kind)).
		Msg("pass issued")
	r.notify(ctx, notify.Notification{
		Class:   notify.ClassPass,
		Type:    notify.TypePassIssued,
		UserID:  p.OwnerID,
		PassID:  p.ID,
		Title:   "Pass ready",
		Message: passLabel(p) + " is ready to use",
	})
	return p, nil
}

func (r *PassRegistry) buildPass(req types.IssuePassRequest) (types.Pass, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if err := r.validate.Struct(req); err != nil {
		return types.Pass{}, err
	}

	var details types.PassDetails
	switch req.Kind {
	case types.PassKindVehicle:
		if req.Vehicle == nil || req.Lounge != nil {
			return types.Pass{}, ValidationErrors{{Field: "vehicle", Message: "vehicle details are required for a VEHICLE pass"}}
		}
		v := *req.Vehicle
		v.Plate = strings.ToUpper(strings.TrimSpace(v.Plate))
		v.VIN = strings.ToUpper(strings.TrimSpace(v.VIN))
		if err := r.validate.Struct(v); err != nil {
			return types.Pass{}, err
		}
		details = v
	case types.PassKindLounge:
		if req.Lounge == nil || req.Vehicle != nil {
			return types.Pass{}, ValidationErrors{{Field: "lounge", Message: "lounge details are required for a LOUNGE pass"}}
		}
		l := *req.Lounge
		l.LocationID = strings.TrimSpace(l.LocationID)
		if err := r.validate.Struct(l); err != nil {
			return types.Pass{}, err
		}
		details = l
	}

	now := r.now()
	from := req.ValidFrom
	if from.IsZero() {
		from = now
	}
	from = from.UTC()
	var until *time.Time
	if req.ValidUntil != nil {
		u := req.ValidUntil.UTC()
		if !u.After(from) {
			return types.Pass{}, ValidationErrors{{Field: "valid_until", Message: "valid_until must be after valid_from"}}
		}
		until = &u
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	p := types.Pass{
		ID:         id,
		OwnerID:    req.OwnerID,
		Kind:       req.Kind,
		Details:    details,
		ValidFrom:  from,
		ValidUntil: until,
		Status:     types.PassStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.CheckDetails(); err != nil {
		return types.Pass{}, fmt.Errorf("%w: %v", ErrInvalidAttributes, err)
	}
	return p, nil
}

// RevokePass moves a pass to revoked.  Revoking a pass that is already
// revoked or expired succeeds without changing it.  A caller without a
// principal is an internal component and is always allowed.
func (r *PassRegistry) RevokePass(ctx context.Context, passID, reason string) (err error) {
	ctx, span := tracer.Start(ctx, "PassRegistry.RevokePass", trace.WithAttributes(attribute.String("pass.id", passID)))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(reason) == "" {
		reason = "revoked"
	}
	actor, hasActor := types.PrincipalFrom(ctx)

	var (
		revoked types.Pass
		changed bool
	)
	err = r.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Pass(ctx, passID)
		if err != nil {
			return notFound(err)
		}
		if hasActor {
			if err := canRevoke(ctx, tx, actor, p); err != nil {
				return err
			}
		}
		if p.Status.Terminal() {
			return nil
		}
		now := r.now()
		if err := tx.SetPassStatus(ctx, passID, types.PassStatusRevoked, reason, now); err != nil {
			return err
		}
		p.Status, p.StatusReason, p.UpdatedAt = types.PassStatusRevoked, reason, now
		revoked, changed = p, true
		return nil
	})
	if err != nil {
		return fmt.Errorf("RevokePass: %w", err)
	}
	if !changed {
		return nil
	}

	r.logger.Info().Str("pass_id", passID).Str("reason", reason).Str("actor", actor.UserID).Msg("pass revoked")
	r.notify(ctx, notify.Notification{
		Class:   notify.ClassPass,
		Type:    notify.TypePassRevoked,
		UserID:  revoked.OwnerID,
		PassID:  revoked.ID,
		Title:   "Pass revoked",
		Message: passLabel(revoked) + " was revoked: " + reason,
	})
	return nil
}

// canRevoke lets admins revoke any pass and holders their own.  A business
// may revoke only lounge passes bound to one of its locations.
func canRevoke(ctx context.Context, tx store.Tx, actor types.Principal, p types.Pass) error {
	switch actor.Role {
	case types.RoleAdmin:
		return nil
	case types.RoleBusiness:
		lounge, ok := p.Details.(types.LoungeDetails)
		if !ok {
			return ErrForbidden
		}
		loc, err := tx.Location(ctx, lounge.LocationID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrForbidden
		}
		if err != nil {
			return err
		}
		if !actsFor(actor, loc.BusinessID) {
			return ErrForbidden
		}
		return nil
	}
	if actor.UserID != "" && actor.UserID == p.OwnerID {
		return nil
	}
	return ErrForbidden
}

func (r *PassRegistry) GetPass(ctx context.Context, passID string) (types.Pass, error) {
	p, err := r.store.GetPass(ctx, passID)
	if err != nil {
		return types.Pass{}, notFound(err)
	}
	return p, nil
}

// ListPasses returns every pass held by ownerID, newest first.
func (r *PassRegistry) ListPasses(ctx context.Context, ownerID string) ([]types.Pass, error) {
	return r.store.ListPassesByOwner(ctx, ownerID)
}

func (r *PassRegistry) IsValidAt(ctx context.Context, passID string, t time.Time) (bool, error) {
	p, err := r.GetPass(ctx, passID)
	if err != nil {
		return false, err
	}
	return p.IsValidAt(t), nil
}

func (r *PassRegistry) notify(ctx context.Context, n notify.Notification) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, n); err != nil {
		r.logger.Warn().Err(err).Str("type", n.Type).Msg("notification failed")
	}
}

func passLabel(p types.Pass) string {
	switch d := p.Details.(type) {
	case types.VehicleDetails:
		return "Vehicle pass " + d.Plate
	case types.LoungeDetails:
		if d.LoungeName != "" {
			return "Lounge pass for " + d.LoungeName
		}
		return "Lounge pass"
	default:
		return "Pass"
	}
}
