package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/types"
	"github.com/axs360/access-engine/internal/notify"
)

func fillLounge(t *testing.T, h *harness, locationID string, n int) []types.Pass {
	t.Helper()
	passes := make([]types.Pass, n)
	for i := range passes {
		passes[i] = h.loungePass(t, fmt.Sprintf("guest-%d", i), locationID, false)
		expectGranted(t, h.enter(t, passes[i].ID, locationID, t0.Add(time.Duration(i)*time.Minute)))
	}
	return passes
}

// ── Alerts ──────────────────────────────────────────────────────────────────

func TestCapacity_AlertsRaiseOnceAndClear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.location(t, "lounge-1", types.LocationLounge, 4)

	passes := fillLounge(t, h, "lounge-1", 3)
	if a := h.capacity.ActiveAlerts("lounge-1"); len(a) != 0 {
		t.Fatalf("75%% should not alert, got %+v", a)
	}

	extra := h.loungePass(t, "guest-x", "lounge-1", false)
	expectGranted(t, h.enter(t, extra.ID, "lounge-1", t0.Add(10*time.Minute)))

	active := h.capacity.ActiveAlerts("lounge-1")
	if len(active) != 2 || active[0].Level != types.AlertWarning || active[1].Level != types.AlertCritical {
		t.Fatalf("expected warning and critical, got %+v", active)
	}

	// Re-evaluating at the same occupancy raises nothing new.
	for i := 0; i < 3; i++ {
		raised, err := h.capacity.EvaluateAlerts(ctx, "lounge-1")
		if err != nil {
			t.Fatalf("EvaluateAlerts: %v", err)
		}
		if len(raised) != 0 {
			t.Fatalf("evaluation %d raised %+v", i, raised)
		}
	}
	if n := len(h.notes.ofType(notify.TypeAlertRaised)); n != 2 {
		t.Errorf("expected 2 raised notifications, got %d", n)
	}

	expectGranted(t, h.leave(t, passes[0].ID, "lounge-1", t0.Add(20*time.Minute)))
	if a := h.capacity.ActiveAlerts("lounge-1"); len(a) != 0 {
		t.Errorf("alerts should clear below threshold, got %+v", a)
	}
	cleared := h.notes.ofType(notify.TypeAlertCleared)
	if len(cleared) != 2 {
		t.Fatalf("expected 2 cleared notifications, got %d", len(cleared))
	}
	if cleared[0].Class != notify.ClassCapacity || cleared[0].BusinessID != "biz-1" {
		t.Errorf("unexpected notification: %+v", cleared[0])
	}
}

func TestCapacity_LocationThresholds(t *testing.T) {
	h := newHarness(t)
	_, err := h.locations.Register(context.Background(), types.LocationRequest{
		ID:         "lounge-2",
		BusinessID: "biz-1",
		Name:       "Quiet Room",
		Kind:       types.LocationLounge,
		Capacity:   2,
		Thresholds: []types.AlertThreshold{{Level: types.AlertWarning, Percent: 50}},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	fillLounge(t, h, "lounge-2", 1)
	active := h.capacity.ActiveAlerts("lounge-2")
	if len(active) != 1 || active[0].Threshold != 50 || active[0].Percentage != 50 {
		t.Fatalf("expected one 50%% warning, got %+v", active)
	}
}

func TestCapacity_UnlimitedNeverAlerts(t *testing.T) {
	h := newHarness(t)
	h.location(t, "lot", types.LocationParking, 0)
	for i := 0; i < 5; i++ {
		p := h.vehiclePass(t, fmt.Sprintf("user-%d", i), fmt.Sprintf("CAR%d00", i))
		expectGranted(t, h.enter(t, p.ID, "lot", t0))
	}

	occ, err := h.capacity.GetOccupancy(context.Background(), "lot")
	if err != nil {
		t.Fatalf("GetOccupancy: %v", err)
	}
	if occ.CurrentOccupancy != 5 || occ.OccupancyPercentage != 0 || occ.AvailableSeats != 0 {
		t.Errorf("unexpected occupancy: %+v", occ)
	}
	if a := h.capacity.ActiveAlerts("lot"); len(a) != 0 {
		t.Errorf("unlimited location raised %+v", a)
	}
}

// ── Occupancy ───────────────────────────────────────────────────────────────

func TestGetOccupancy_Guests(t *testing.T) {
	h := newHarness(t)
	h.location(t, "lounge-1", types.LocationLounge, 10)
	passes := fillLounge(t, h, "lounge-1", 2)
	h.clock.Set(t0.Add(30 * time.Minute))

	occ, err := h.capacity.GetOccupancy(context.Background(), "lounge-1")
	if err != nil {
		t.Fatalf("GetOccupancy: %v", err)
	}
	if occ.CurrentOccupancy != 2 || occ.AvailableSeats != 8 || occ.OccupancyPercentage != 20 {
		t.Errorf("unexpected occupancy: %+v", occ)
	}
	if len(occ.CurrentGuests) != 2 {
		t.Fatalf("expected 2 guests, got %+v", occ.CurrentGuests)
	}
	g := occ.CurrentGuests[0]
	if g.PassID != passes[0].ID || g.OwnerID != "guest-0" || g.Minutes != 30 {
		t.Errorf("unexpected first guest: %+v", g)
	}
	if occ.Version == 0 {
		t.Error("occupancy should carry the log watermark")
	}
}

func TestGetOccupancy_Authorization(t *testing.T) {
	h := newHarness(t)
	h.location(t, "lounge-1", types.LocationLounge, 10)
	fillLounge(t, h, "lounge-1", 1)

	cases := []struct {
		name       string
		principal  types.Principal
		wantErr    error
		wantGuests int
	}{
		{"owning business", types.Principal{UserID: "b", BusinessID: "biz-1", Role: types.RoleBusiness}, nil, 1},
		{"other business", types.Principal{UserID: "b", BusinessID: "biz-2", Role: types.RoleBusiness}, service.ErrForbidden, 0},
		{"scanner", types.Principal{UserID: "gate-1", BusinessID: "biz-1", Role: types.RoleScanner}, nil, 1},
		{"other business's scanner", types.Principal{UserID: "gate-9", BusinessID: "biz-2", Role: types.RoleScanner}, service.ErrForbidden, 0},
		{"pass holder", types.Principal{UserID: "someone", Role: types.RoleUser}, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := types.WithPrincipal(context.Background(), tc.principal)
			occ, err := h.capacity.GetOccupancy(ctx, "lounge-1")
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if occ.CurrentOccupancy != 1 || len(occ.CurrentGuests) != tc.wantGuests {
				t.Errorf("occupancy %d, guests %d", occ.CurrentOccupancy, len(occ.CurrentGuests))
			}
		})
	}
}

func TestGetOccupancy_UnknownLocation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.capacity.GetOccupancy(context.Background(), "nowhere"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
