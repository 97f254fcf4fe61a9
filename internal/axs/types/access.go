package types

import "time"

// ScanRequest is one presentation of a pass at a location, either through a
// scanner (Token) or a manual check-in/out (PassID).
type ScanRequest struct {
	PassID     string       `json:"pass_id,omitempty"`
	Token      string       `json:"token,omitempty"`
	LocationID string       `json:"location_id"`
	Subject    string       `json:"vehicle_plate,omitempty"` // multi-pass locations only
	Method     AccessMethod `json:"method,omitempty"`
	ScannedAt  time.Time    `json:"scanned_at,omitempty"` // optional device timestamp
}

type ScanResponse struct {
	OK              bool         `json:"ok"`
	Granted         bool         `json:"granted"`
	Direction       Direction    `json:"direction"`
	Reason          DenialReason `json:"reason,omitempty"`
	Message         string       `json:"message,omitempty"`
	EventID         string       `json:"event_id"`
	PassID          string       `json:"pass_id,omitempty"`
	LocationID      string       `json:"location_id"`
	SessionID       string       `json:"session_id,omitempty"`
	DurationMinutes int          `json:"visit_duration,omitempty"`
	ServerTime      string       `json:"server_time"`
}

// NewScanResponse renders an access event for presentation clients.
func NewScanResponse(ev AccessEvent, now time.Time) ScanResponse {
	return ScanResponse{
		OK:              true,
		Granted:         ev.Granted(),
		Direction:       ev.Direction,
		Reason:          ev.Reason,
		Message:         ev.Reason.Message(),
		EventID:         ev.ID,
		PassID:          ev.PassID,
		LocationID:      ev.LocationID,
		SessionID:       ev.SessionID,
		DurationMinutes: int(ev.Duration / time.Minute),
		ServerTime:      now.UTC().Format(time.RFC3339Nano),
	}
}

type IssuePassRequest struct {
	ID         string          `json:"id,omitempty" validate:"omitempty,max=64"`
	OwnerID    string          `json:"owner_id" validate:"required,max=64"`
	Kind       PassKind        `json:"kind" validate:"required,oneof=VEHICLE LOUNGE"`
	Vehicle    *VehicleDetails `json:"vehicle,omitempty"`
	Lounge     *LoungeDetails  `json:"lounge,omitempty"`
	ValidFrom  time.Time       `json:"valid_from"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
}

type RevokePassRequest struct {
	Reason string `json:"reason"`
}

// PassView is the tagged-union wire shape of a pass: Kind selects which of
// Vehicle or Lounge is set.
type PassView struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Kind         PassKind        `json:"kind"`
	Vehicle      *VehicleDetails `json:"vehicle,omitempty"`
	Lounge       *LoungeDetails  `json:"lounge,omitempty"`
	ValidFrom    time.Time       `json:"valid_from"`
	ValidUntil   *time.Time      `json:"valid_until,omitempty"`
	Status       PassStatus      `json:"status"`
	StatusReason string          `json:"status_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func NewPassView(p Pass) PassView {
	v := PassView{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		Kind:         p.Kind,
		ValidFrom:    p.ValidFrom,
		ValidUntil:   p.ValidUntil,
		Status:       p.Status,
		StatusReason: p.StatusReason,
		CreatedAt:    p.CreatedAt,
	}
	switch d := p.Details.(type) {
	case VehicleDetails:
		v.Vehicle = &d
	case LoungeDetails:
		v.Lounge = &d
	}
	return v
}

type EventView struct {
	ID              string       `json:"id"`
	PassID          string       `json:"pass_id"`
	LocationID      string       `json:"location_id"`
	Subject         string       `json:"vehicle_plate,omitempty"`
	Action          Direction    `json:"action"`
	Method          AccessMethod `json:"method"`
	Timestamp       time.Time    `json:"timestamp"`
	Outcome         Outcome      `json:"outcome"`
	Reason          DenialReason `json:"reason,omitempty"`
	DurationMinutes int          `json:"visit_duration,omitempty"`
}

func NewEventView(e AccessEvent) EventView {
	return EventView{
		ID:              e.ID,
		PassID:          e.PassID,
		LocationID:      e.LocationID,
		Subject:         e.Subject,
		Action:          e.Direction,
		Method:          e.Method,
		Timestamp:       e.OccurredAt,
		Outcome:         e.Outcome,
		Reason:          e.Reason,
		DurationMinutes: int(e.Duration / time.Minute),
	}
}

type TokenResponse struct {
	Token     string    `json:"token"`
	PassID    string    `json:"pass_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LocationRequest registers or updates a location.  Fields left empty take
// the per-kind default policy.
type LocationRequest struct {
	ID            string           `json:"id" validate:"required,max=64"`
	BusinessID    string           `json:"business_id" validate:"omitempty,max=64"`
	Name          string           `json:"name" validate:"required,min=2,max=128"`
	Kind          LocationKind     `json:"kind" validate:"required,oneof=parking lounge corporate residential educational workshop valet"`
	Capacity      int              `json:"capacity" validate:"min=0,max=100000"`
	ReentryPolicy ReentryPolicy    `json:"reentry_policy,omitempty" validate:"omitempty,oneof=single_session multi_pass"`
	HardCapacity  *bool            `json:"hard_capacity,omitempty"`
	Thresholds    []AlertThreshold `json:"thresholds,omitempty" validate:"omitempty,max=8,dive"`
}
