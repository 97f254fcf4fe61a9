package types

import (
	"fmt"
	"time"
)

type PassKind string

const (
	PassKindVehicle PassKind = "VEHICLE"
	PassKindLounge  PassKind = "LOUNGE"
)

func (k PassKind) Valid() bool {
	return k == PassKindVehicle || k == PassKindLounge
}

type PassStatus string

const (
	PassStatusActive  PassStatus = "active"
	PassStatusExpired PassStatus = "expired"
	PassStatusRevoked PassStatus = "revoked"
)

// Terminal reports whether no further transition is possible.
func (s PassStatus) Terminal() bool {
	return s == PassStatusExpired || s == PassStatusRevoked
}

// PassDetails is the kind-specific payload of a pass.  The set of
// implementations is closed: only VehicleDetails and LoungeDetails satisfy it.
type PassDetails interface {
	Kind() PassKind
	// Target identifies what the pass grants access to, used for the
	// overlapping-active-pass check.
	Target() string
	isPassDetails()
}

// VehicleDetails is informational; it never takes part in entry decisions
// except as the vehicle identity under a multi-pass location policy.
type VehicleDetails struct {
	Plate string `json:"plate" validate:"required,min=2,max=16,plate"`
	Make  string `json:"make,omitempty" validate:"omitempty,max=64"`
	Model string `json:"model,omitempty" validate:"omitempty,max=64"`
	Year  int    `json:"year,omitempty" validate:"omitempty,min=1900,max=2100"`
	VIN   string `json:"vin" validate:"required,len=17,alphanum"`
}

func (VehicleDetails) Kind() PassKind   { return PassKindVehicle }
func (d VehicleDetails) Target() string { return d.Plate }
func (VehicleDetails) isPassDetails()   {}

type LoungeDetails struct {
	LocationID string `json:"location_id" validate:"required"`
	LoungeName string `json:"lounge_name,omitempty" validate:"omitempty,max=128"`
	SingleUse  bool   `json:"single_use"`
}

func (LoungeDetails) Kind() PassKind   { return PassKindLounge }
func (d LoungeDetails) Target() string { return d.LocationID }
func (LoungeDetails) isPassDetails()   {}

type Pass struct {
	ID           string
	OwnerID      string
	Kind         PassKind
	Details      PassDetails
	ValidFrom    time.Time
	ValidUntil   *time.Time // nil = open-ended
	Status       PassStatus
	StatusReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsValidAt is true iff t lies in [ValidFrom, ValidUntil) and the pass is not
// in a terminal status.
func (p Pass) IsValidAt(t time.Time) bool {
	if p.Status.Terminal() {
		return false
	}
	if t.Before(p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && !t.Before(*p.ValidUntil) {
		return false
	}
	return true
}

// SingleUse reports whether the pass is consumed by one entry+exit cycle.
func (p Pass) SingleUse() bool {
	switch d := p.Details.(type) {
	case LoungeDetails:
		return d.SingleUse
	case VehicleDetails:
		return false
	default:
		return false
	}
}

// UsableAt reports whether the pass may be presented at locationID.  Lounge
// passes are bound to their target location; vehicle passes are not.
func (p Pass) UsableAt(locationID string) bool {
	switch d := p.Details.(type) {
	case LoungeDetails:
		return d.LocationID == locationID
	case VehicleDetails:
		return true
	default:
		return false
	}
}

// Vehicle returns the vehicle payload when the pass is a vehicle pass.
func (p Pass) Vehicle() (VehicleDetails, bool) {
	d, ok := p.Details.(VehicleDetails)
	return d, ok
}

// Lounge returns the lounge payload when the pass is a lounge pass.
func (p Pass) Lounge() (LoungeDetails, bool) {
	d, ok := p.Details.(LoungeDetails)
	return d, ok
}

// Overlaps reports whether the validity windows [from, until) of p and the
// given window intersect.
func (p Pass) Overlaps(from time.Time, until *time.Time) bool {
	if until != nil && !until.After(p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && !p.ValidUntil.After(from) {
		return false
	}
	return true
}

// CheckDetails verifies that Details is present and agrees with Kind.
func (p Pass) CheckDetails() error {
	switch d := p.Details.(type) {
	case VehicleDetails:
		if p.Kind != PassKindVehicle {
			return fmt.Errorf("pass kind %s carries vehicle details", p.Kind)
		}
	case LoungeDetails:
		if p.Kind != PassKindLounge {
			return fmt.Errorf("pass kind %s carries lounge details", p.Kind)
		}
	case nil:
		return fmt.Errorf("pass kind %s has no details", p.Kind)
	default:
		return fmt.Errorf("unsupported pass details %T", d)
	}
	return nil
}
