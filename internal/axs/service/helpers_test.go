package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/store/memory"
	"github.com/axs360/access-engine/internal/axs/types"
	"github.com/axs360/access-engine/internal/notify"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: t0} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// catchUp moves the clock forward to t.  It never moves it back.
func (c *testClock) catchUp(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.t) {
		c.t = t
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) ofType(typ string) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.notes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func silentLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type harness struct {
	store     *memory.Store
	clock     *testClock
	notes     *recordingNotifier
	registry  *service.PassRegistry
	tracker   *service.AccessTracker
	capacity  *service.CapacityEvaluator
	reporting *service.Reporting
	locations *service.LocationDirectory
	tokens    *service.TokenIssuer
}

// trackerConfig accepts scans buffered for up to three days so scenarios can
// replay presentations out of clock order.
var trackerConfig = service.TrackerConfig{OpTimeout: time.Second, MaxScanAge: 72 * time.Hour}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st := memory.New()
	clk := newTestClock()
	notes := &recordingNotifier{}
	v := service.NewValidator()
	log := silentLogger()

	tokens := service.NewTokenIssuer("test-secret", time.Minute).WithClock(clk.Now)
	capacity := service.NewCapacityEvaluator(st, notes, nil, log).WithClock(clk.Now)
	return &harness{
		store:     st,
		clock:     clk,
		notes:     notes,
		registry:  service.NewPassRegistry(st, v, notes, log).WithClock(clk.Now),
		tracker:   service.NewAccessTracker(st, tokens, capacity, notes, trackerConfig, log).WithClock(clk.Now),
		capacity:  capacity,
		reporting: service.NewReporting(st, nil, log).WithClock(clk.Now),
		locations: service.NewLocationDirectory(st, v, log),
		tokens:    tokens,
	}
}

func (h *harness) location(t *testing.T, id string, kind types.LocationKind, capacity int) types.Location {
	t.Helper()
	loc, err := h.locations.Register(context.Background(), types.LocationRequest{
		ID:         id,
		BusinessID: "biz-1",
		Name:       "Location " + id,
		Kind:       kind,
		Capacity:   capacity,
	})
	if err != nil {
		t.Fatalf("register location %s: %v", id, err)
	}
	return loc
}

func (h *harness) vehiclePass(t *testing.T, owner, plate string) types.Pass {
	t.Helper()
	until := t0.Add(30 * 24 * time.Hour)
	p, err := h.registry.IssuePass(context.Background(), types.IssuePassRequest{
		OwnerID:    owner,
		Kind:       types.PassKindVehicle,
		Vehicle:    &types.VehicleDetails{Plate: plate, Make: "Toyota", Model: "Camry", Year: 2022, VIN: "1HGCM82633A004352"},
		ValidFrom:  t0.Add(-time.Hour),
		ValidUntil: &until,
	})
	if err != nil {
		t.Fatalf("issue vehicle pass: %v", err)
	}
	return p
}

func (h *harness) loungePass(t *testing.T, owner, locationID string, singleUse bool) types.Pass {
	t.Helper()
	until := t0.Add(24 * time.Hour)
	p, err := h.registry.IssuePass(context.Background(), types.IssuePassRequest{
		OwnerID:    owner,
		Kind:       types.PassKindLounge,
		Lounge:     &types.LoungeDetails{LocationID: locationID, LoungeName: "Sky Lounge", SingleUse: singleUse},
		ValidFrom:  t0.Add(-time.Hour),
		ValidUntil: &until,
	})
	if err != nil {
		t.Fatalf("issue lounge pass: %v", err)
	}
	return p
}

// enter records an entry scanned at at.  The clock catches up to at first;
// earlier scans are recorded as buffered uploads.
func (h *harness) enter(t *testing.T, passID, locationID string, at time.Time) types.AccessEvent {
	t.Helper()
	h.clock.catchUp(at)
	ev, err := h.tracker.RecordEntry(context.Background(), types.ScanRequest{PassID: passID, LocationID: locationID, ScannedAt: at})
	if err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}
	return ev
}

func (h *harness) leave(t *testing.T, passID, locationID string, at time.Time) types.AccessEvent {
	t.Helper()
	h.clock.catchUp(at)
	ev, err := h.tracker.RecordExit(context.Background(), types.ScanRequest{PassID: passID, LocationID: locationID, ScannedAt: at})
	if err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	return ev
}

func expectGranted(t *testing.T, ev types.AccessEvent) {
	t.Helper()
	if !ev.Granted() {
		t.Fatalf("expected GRANTED, got DENIED (%s)", ev.Reason)
	}
}

func expectDenied(t *testing.T, ev types.AccessEvent, reason types.DenialReason) {
	t.Helper()
	if ev.Granted() {
		t.Fatalf("expected DENIED(%s), got GRANTED", reason)
	}
	if ev.Reason != reason {
		t.Fatalf("expected reason %s, got %s", reason, ev.Reason)
	}
}
