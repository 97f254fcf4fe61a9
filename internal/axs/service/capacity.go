package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
	"github.com/axs360/access-engine/internal/notify"
)

// DefaultThresholds apply to locations that configure none.
var DefaultThresholds = []types.AlertThreshold{
	{Level: types.AlertWarning, Percent: 85},
	{Level: types.AlertCritical, Percent: 100},
}

type alertState struct {
	version int64
	active  map[types.AlertLevel]types.Alert
}

// CapacityEvaluator reports occupancy and turns threshold crossings into
// alerts.  Active alerts are kept in memory; a restart re-raises whatever is
// still above threshold on the next evaluation.
type CapacityEvaluator struct {
	locations  store.LocationStore
	notifier   notify.Notifier
	logger     *zerolog.Logger
	thresholds []types.AlertThreshold
	now        Clock

	mu     sync.Mutex
	states map[string]*alertState
}

func NewCapacityEvaluator(ls store.LocationStore, n notify.Notifier, thresholds []types.AlertThreshold, logger *zerolog.Logger) *CapacityEvaluator {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	return &CapacityEvaluator{
		locations:  ls,
		notifier:   n,
		logger:     logger,
		thresholds: thresholds,
		now:        SystemClock,
		states:     make(map[string]*alertState),
	}
}

func (c *CapacityEvaluator) WithClock(clk Clock) *CapacityEvaluator {
	c.now = clk
	return c
}

// GetOccupancy reads the committed counter and lists the guests inside.
// Pass holders see availability only; the guest list is for staff.
func (c *CapacityEvaluator) GetOccupancy(ctx context.Context, locationID string) (types.LocationOccupancy, error) {
	loc, err := c.locations.GetLocation(ctx, locationID)
	if err != nil {
		return types.LocationOccupancy{}, notFound(err)
	}
	if p, ok := types.PrincipalFrom(ctx); ok && p.Role == types.RoleUser {
		occ, err := c.occupancy(ctx, loc)
		occ.CurrentGuests = []types.Guest{}
		return occ, err
	}
	if err := authorizeLocation(ctx, loc); err != nil {
		return types.LocationOccupancy{}, err
	}
	return c.occupancy(ctx, loc)
}

func (c *CapacityEvaluator) occupancy(ctx context.Context, loc types.Location) (types.LocationOccupancy, error) {
	count, version, err := c.locations.CurrentOccupancy(ctx, loc.ID)
	if err != nil {
		return types.LocationOccupancy{}, fmt.Errorf("GetOccupancy: %w", notFound(err))
	}
	sessions, err := c.locations.OpenSessionsAt(ctx, loc.ID)
	if err != nil {
		return types.LocationOccupancy{}, fmt.Errorf("GetOccupancy guests: %w", err)
	}

	now := c.now()
	guests := make([]types.Guest, 0, len(sessions))
	for _, s := range sessions {
		guests = append(guests, types.Guest{
			SessionID: s.ID,
			PassID:    s.PassID,
			OwnerID:   s.OwnerID,
			Subject:   s.Subject,
			EntryTime: s.EntryAt,
			Minutes:   int(s.Duration(now).Minutes()),
		})
	}

	available := loc.Capacity - count
	if available < 0 || loc.Capacity == 0 {
		available = 0
	}
	return types.LocationOccupancy{
		LocationID:          loc.ID,
		TotalCapacity:       loc.Capacity,
		CurrentOccupancy:    count,
		AvailableSeats:      available,
		OccupancyPercentage: types.Percentage(count, loc.Capacity),
		CurrentGuests:       guests,
		AsOf:                now,
		Version:             version,
	}, nil
}

// EvaluateAlerts compares current occupancy against the location's
// thresholds and returns the alerts newly raised by this call.  An alert
// stays active, and is not raised again, until occupancy drops below its
// threshold, at which point it clears.
func (c *CapacityEvaluator) EvaluateAlerts(ctx context.Context, locationID string) ([]types.Alert, error) {
	loc, err := c.locations.GetLocation(ctx, locationID)
	if err != nil {
		return nil, notFound(err)
	}
	occ, err := c.occupancy(ctx, loc)
	if err != nil {
		return nil, err
	}

	thresholds := loc.SortedThresholds()
	if len(thresholds) == 0 {
		thresholds = c.thresholds
	}

	var raised, cleared []types.Alert
	c.mu.Lock()
	st, ok := c.states[loc.ID]
	if !ok {
		st = &alertState{active: make(map[types.AlertLevel]types.Alert)}
		c.states[loc.ID] = st
	}
	// A snapshot older than one already evaluated would undo newer state.
	if occ.Version >= st.version {
		st.version = occ.Version
		for _, th := range thresholds {
			prev, active := st.active[th.Level]
			switch {
			case occ.OccupancyPercentage >= th.Percent && !active:
				a := newAlert(loc, th, occ, c.now())
				st.active[th.Level] = a
				raised = append(raised, a)
			case occ.OccupancyPercentage < th.Percent && active:
				delete(st.active, th.Level)
				cleared = append(cleared, prev)
			}
		}
	}
	c.mu.Unlock()

	for _, a := range raised {
		c.logger.Warn().Str("location_id", a.LocationID).Str("level", string(a.Level)).Float64("percent", a.Percentage).Msg("capacity alert raised")
		c.publish(ctx, loc, a, notify.TypeAlertRaised, a.Title, a.Message)
	}
	for _, a := range cleared {
		c.logger.Info().Str("location_id", a.LocationID).Str("level", string(a.Level)).Msg("capacity alert cleared")
		c.publish(ctx, loc, a, notify.TypeAlertCleared, "Capacity back to normal",
			fmt.Sprintf("%s is now at %.1f%% capacity", loc.Name, occ.OccupancyPercentage))
	}
	return raised, nil
}

// ActiveAlerts lists the alerts currently raised for a location, lowest
// threshold first.
func (c *CapacityEvaluator) ActiveAlerts(locationID string) []types.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[locationID]
	if !ok {
		return nil
	}
	out := make([]types.Alert, 0, len(st.active))
	for _, a := range st.active {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}

// Alerts is ActiveAlerts for callers that must be authorised against the
// location.
func (c *CapacityEvaluator) Alerts(ctx context.Context, locationID string) ([]types.Alert, error) {
	loc, err := c.locations.GetLocation(ctx, locationID)
	if err != nil {
		return nil, notFound(err)
	}
	if err := authorizeLocation(ctx, loc); err != nil {
		return nil, err
	}
	return c.ActiveAlerts(loc.ID), nil
}

func newAlert(loc types.Location, th types.AlertThreshold, occ types.LocationOccupancy, at time.Time) types.Alert {
	title := "Approaching capacity"
	if th.Level == types.AlertCritical {
		title = "At capacity"
	}
	return types.Alert{
		LocationID: loc.ID,
		Level:      th.Level,
		Threshold:  th.Percent,
		Percentage: occ.OccupancyPercentage,
		Title:      title,
		Message:    fmt.Sprintf("%s is at %.1f%% capacity (%d/%d)", loc.Name, occ.OccupancyPercentage, occ.CurrentOccupancy, loc.Capacity),
		RaisedAt:   at,
	}
}

func (c *CapacityEvaluator) publish(ctx context.Context, loc types.Location, a types.Alert, typ, title, msg string) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Notify(ctx, notify.Notification{
		Class:      notify.ClassCapacity,
		Type:       typ,
		BusinessID: loc.BusinessID,
		LocationID: loc.ID,
		Title:      title,
		Message:    msg,
		Data: map[string]string{
			"level":     string(a.Level),
			"threshold": fmt.Sprintf("%.1f", a.Threshold),
		},
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("location_id", loc.ID).Msg("alert notification failed")
	}
}
