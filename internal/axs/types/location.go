package types

import (
	"sort"
	"time"
)

type LocationKind string

const (
	LocationParking     LocationKind = "parking"
	LocationLounge      LocationKind = "lounge"
	LocationCorporate   LocationKind = "corporate"
	LocationResidential LocationKind = "residential"
	LocationEducational LocationKind = "educational"
	LocationWorkshop    LocationKind = "workshop"
	LocationValet       LocationKind = "valet"
)

// ReentryPolicy controls the already-inside check.
//
// single_session: one open session per (pass, location).
// multi_pass: one open session per (pass, location, vehicle identity), so a
// single account can park several vehicles at once.
type ReentryPolicy string

const (
	ReentrySingleSession ReentryPolicy = "single_session"
	ReentryMultiPass     ReentryPolicy = "multi_pass"
)

type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type AlertThreshold struct {
	Level   AlertLevel `json:"level" validate:"required,oneof=warning critical"`
	Percent float64    `json:"percent" validate:"gt=0,lte=1000"`
}

type Location struct {
	ID            string           `json:"id" validate:"required,max=64"`
	BusinessID    string           `json:"business_id" validate:"required,max=64"`
	Name          string           `json:"name" validate:"required,min=2,max=128"`
	Kind          LocationKind     `json:"kind" validate:"required,oneof=parking lounge corporate residential educational workshop valet"`
	Capacity      int              `json:"capacity" validate:"min=0"`
	ReentryPolicy ReentryPolicy    `json:"reentry_policy" validate:"omitempty,oneof=single_session multi_pass"`
	HardCapacity  bool             `json:"hard_capacity"`
	Thresholds    []AlertThreshold `json:"thresholds,omitempty" validate:"omitempty,dive"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// LocationPolicy is the per-kind default applied to locations that do not
// configure their own re-entry and capacity behaviour.
type LocationPolicy struct {
	ReentryPolicy ReentryPolicy
	HardCapacity  bool
}

var defaultPolicies = map[LocationKind]LocationPolicy{
	LocationParking:     {ReentryPolicy: ReentryMultiPass, HardCapacity: false},
	LocationValet:       {ReentryPolicy: ReentryMultiPass, HardCapacity: true},
	LocationLounge:      {ReentryPolicy: ReentrySingleSession, HardCapacity: true},
	LocationCorporate:   {ReentryPolicy: ReentrySingleSession, HardCapacity: true},
	LocationResidential: {ReentryPolicy: ReentrySingleSession, HardCapacity: false},
	LocationEducational: {ReentryPolicy: ReentrySingleSession, HardCapacity: false},
	LocationWorkshop:    {ReentryPolicy: ReentryMultiPass, HardCapacity: true},
}

func DefaultPolicy(kind LocationKind) LocationPolicy {
	if p, ok := defaultPolicies[kind]; ok {
		return p
	}
	return LocationPolicy{ReentryPolicy: ReentrySingleSession, HardCapacity: true}
}

// SortedThresholds returns the thresholds ordered by ascending percent.
func (l Location) SortedThresholds() []AlertThreshold {
	out := make([]AlertThreshold, len(l.Thresholds))
	copy(out, l.Thresholds)
	sort.Slice(out, func(i, j int) bool { return out[i].Percent < out[j].Percent })
	return out
}

// Guest is one open session as shown on the occupancy dashboards.
type Guest struct {
	SessionID string    `json:"session_id"`
	PassID    string    `json:"pass_id"`
	OwnerID   string    `json:"owner_id"`
	Subject   string    `json:"subject,omitempty"`
	EntryTime time.Time `json:"entry_time"`
	Minutes   int       `json:"duration_minutes"`
}

type LocationOccupancy struct {
	LocationID          string    `json:"location_id"`
	TotalCapacity       int       `json:"total_capacity"`
	CurrentOccupancy    int       `json:"current_occupancy"`
	AvailableSeats      int       `json:"available_seats"`
	OccupancyPercentage float64   `json:"occupancy_percentage"`
	CurrentGuests       []Guest   `json:"current_guests"`
	AsOf                time.Time `json:"as_of"`
	Version             int64     `json:"version"`
}

// Percentage returns occupant/capacity*100 rounded to one decimal.  A
// location without capacity reports 0.
func Percentage(occupant, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	p := float64(occupant) / float64(capacity) * 100
	return float64(int64(p*10+0.5)) / 10
}

type Alert struct {
	LocationID string     `json:"location_id"`
	Level      AlertLevel `json:"level"`
	Threshold  float64    `json:"threshold_percent"`
	Percentage float64    `json:"occupancy_percentage"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	RaisedAt   time.Time  `json:"raised_at"`
}
