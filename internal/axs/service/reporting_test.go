package service_test

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/store"
	"github.com/axs360/access-engine/internal/axs/types"
)

// alternate logs n granted events for p at locationID, one minute apart,
// starting with an entry at t0.
func alternate(t *testing.T, h *harness, p types.Pass, locationID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		at := t0.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			expectGranted(t, h.enter(t, p.ID, locationID, at))
		} else {
			expectGranted(t, h.leave(t, p.ID, locationID, at))
		}
	}
}

// ── RecentActivity ──────────────────────────────────────────────────────────

func TestRecentActivity_PagesWithoutGapsOrDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.location(t, "lot", types.LocationParking, 0)
	p := h.vehiclePass(t, "user-1", "ABC123")
	alternate(t, h, p, "lot", 25)

	first, err := h.reporting.RecentActivity(ctx, service.ActivityQuery{LocationID: "lot", Limit: 10})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}

	// Events logged after the first page must not shift later pages.
	later := h.vehiclePass(t, "user-2", "XYZ789")
	expectGranted(t, h.enter(t, later.ID, "lot", t0.Add(time.Hour)))

	seen := map[string]bool{}
	var all []types.EventView
	page := first
	for pages := 1; ; pages++ {
		for _, e := range page.Events {
			if seen[e.ID] {
				t.Fatalf("event %s returned twice", e.ID)
			}
			seen[e.ID] = true
			all = append(all, e)
		}
		if page.NextCursor == "" {
			if pages != 3 {
				t.Errorf("expected 3 pages, got %d", pages)
			}
			break
		}
		page, err = h.reporting.RecentActivity(ctx, service.ActivityQuery{LocationID: "lot", Limit: 10, Cursor: page.NextCursor})
		if err != nil {
			t.Fatalf("page %d: %v", pages+1, err)
		}
	}

	if len(all) != 25 {
		t.Fatalf("expected 25 events, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatalf("events out of order at %d: %v after %v", i, all[i].Timestamp, all[i-1].Timestamp)
		}
	}
	if all[0].Timestamp != t0.Add(24*time.Minute) || all[24].Timestamp != t0 {
		t.Errorf("unexpected range %v .. %v", all[0].Timestamp, all[24].Timestamp)
	}
}

func TestRecentActivity_Limits(t *testing.T) {
	h := newHarness(t)
	h.location(t, "lot", types.LocationParking, 0)
	p := h.vehiclePass(t, "user-1", "ABC123")
	alternate(t, h, p, "lot", 30)

	page, err := h.reporting.RecentActivity(context.Background(), service.ActivityQuery{OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(page.Events) != service.DefaultActivityLimit || page.NextCursor == "" {
		t.Errorf("default page: %d events, cursor %q", len(page.Events), page.NextCursor)
	}

	page, err = h.reporting.RecentActivity(context.Background(), service.ActivityQuery{OwnerID: "user-1", Limit: 1000})
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(page.Events) != 30 || page.NextCursor != "" {
		t.Errorf("capped page: %d events, cursor %q", len(page.Events), page.NextCursor)
	}
}

func TestRecentActivity_BadRequests(t *testing.T) {
	h := newHarness(t)
	h.location(t, "lot", types.LocationParking, 0)
	ctx := context.Background()

	cases := map[string]service.ActivityQuery{
		"neither":    {},
		"both":       {LocationID: "lot", OwnerID: "user-1"},
		"bad cursor": {LocationID: "lot", Cursor: "not base64!"},
		"bad parts":  {LocationID: "lot", Cursor: base64.RawURLEncoding.EncodeToString([]byte("12:x"))},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := h.reporting.RecentActivity(ctx, q); !errors.Is(err, service.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	if _, err := h.reporting.RecentActivity(ctx, service.ActivityQuery{LocationID: "nowhere"}); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentActivity_Authorization(t *testing.T) {
	h := newHarness(t)
	h.location(t, "lot", types.LocationParking, 0)

	user := types.WithPrincipal(context.Background(), types.Principal{UserID: "user-1", Role: types.RoleUser})
	if _, err := h.reporting.RecentActivity(user, service.ActivityQuery{OwnerID: "user-1"}); err != nil {
		t.Errorf("own history: %v", err)
	}
	if _, err := h.reporting.RecentActivity(user, service.ActivityQuery{OwnerID: "user-2"}); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("other history: expected ErrForbidden, got %v", err)
	}
	if _, err := h.reporting.RecentActivity(user, service.ActivityQuery{LocationID: "lot"}); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("location feed as user: expected ErrForbidden, got %v", err)
	}

	other := types.WithPrincipal(context.Background(), types.Principal{UserID: "b", BusinessID: "biz-9", Role: types.RoleBusiness})
	if _, err := h.reporting.RecentActivity(other, service.ActivityQuery{LocationID: "lot"}); !errors.Is(err, service.ErrForbidden) {
		t.Errorf("other business: expected ErrForbidden, got %v", err)
	}
}

func TestCursor_RoundTrip(t *testing.T) {
	c := store.EventCursor{OccurredAt: t0.Add(1234 * time.Millisecond), Seq: 42}
	got, err := service.DecodeCursor(service.EncodeCursor(c))
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !got.OccurredAt.Equal(c.OccurredAt) || got.Seq != c.Seq {
		t.Errorf("got %+v, want %+v", got, c)
	}
}

// ── Stats ───────────────────────────────────────────────────────────────────

func TestAggregate(t *testing.T) {
	day1 := t0
	day2 := t0.Add(24 * time.Hour)
	events := []types.AccessEvent{
		{OwnerID: "u1", Direction: types.DirectionEntry, Outcome: types.OutcomeGranted, Method: types.MethodQRCode, OccurredAt: day1},
		{OwnerID: "u1", Direction: types.DirectionExit, Outcome: types.OutcomeGranted, Method: types.MethodQRCode, OccurredAt: day1.Add(30 * time.Minute), Duration: 30 * time.Minute},
		{OwnerID: "u1", Direction: types.DirectionEntry, Outcome: types.OutcomeGranted, Method: types.MethodQRCode, OccurredAt: day2},
		{OwnerID: "u1", Direction: types.DirectionExit, Outcome: types.OutcomeGranted, Method: types.MethodQRCode, OccurredAt: day2.Add(90 * time.Minute), Duration: 90 * time.Minute},
		{OwnerID: "u2", Direction: types.DirectionEntry, Outcome: types.OutcomeGranted, Method: types.MethodManual, OccurredAt: day2.Add(time.Hour)},
		{OwnerID: "u3", Direction: types.DirectionEntry, Outcome: types.OutcomeDenied, Reason: types.ReasonCapacityExceeded, Method: types.MethodQRCode, OccurredAt: day2.Add(2 * time.Hour)},
	}

	s := service.Aggregate(events)

	if s.TotalEntries != 3 || s.TotalExits != 2 || s.Denied != 1 {
		t.Errorf("counts: entries %d exits %d denied %d", s.TotalEntries, s.TotalExits, s.Denied)
	}
	if s.DeniedByReason[types.ReasonCapacityExceeded] != 1 {
		t.Errorf("denied by reason: %+v", s.DeniedByReason)
	}
	if s.UniqueVisitors != 2 || s.AverageStayMinutes != 60 || s.VisitorReturnRate != 50 {
		t.Errorf("visitors %d, avg stay %d, return rate %v", s.UniqueVisitors, s.AverageStayMinutes, s.VisitorReturnRate)
	}

	wantDaily := []types.DailyStats{
		{Date: "2026-03-01", Visits: 1, UniqueVisitors: 1},
		{Date: "2026-03-02", Visits: 2, UniqueVisitors: 2},
	}
	if len(s.Daily) != len(wantDaily) {
		t.Fatalf("daily: %+v", s.Daily)
	}
	for i, d := range wantDaily {
		if s.Daily[i] != d {
			t.Errorf("daily[%d] = %+v, want %+v", i, s.Daily[i], d)
		}
	}

	if len(s.AccessMethods) != 2 {
		t.Fatalf("methods: %+v", s.AccessMethods)
	}
	if m := s.AccessMethods[0]; m.Method != types.MethodQRCode || m.Count != 2 || m.Percentage != 66.7 {
		t.Errorf("first method: %+v", m)
	}
	if m := s.AccessMethods[1]; m.Method != types.MethodManual || m.Count != 1 || m.Percentage != 33.3 {
		t.Errorf("second method: %+v", m)
	}
}

func TestAggregate_Empty(t *testing.T) {
	s := service.Aggregate(nil)
	if s.TotalEntries != 0 || s.UniqueVisitors != 0 || s.VisitorReturnRate != 0 || len(s.Daily) != 0 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

type countingCache struct {
	mu         sync.Mutex
	entries    map[string]types.Stats
	gets, sets int
}

func (c *countingCache) Get(_ context.Context, key string) (types.Stats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.entries[key]
	return s, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, s types.Stats) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = s
	return nil
}

func TestStats_CachedPerWatermark(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cache := &countingCache{entries: map[string]types.Stats{}}
	reporting := service.NewReporting(h.store, cache, silentLogger()).WithClock(h.clock.Now)

	h.location(t, "lot", types.LocationParking, 0)
	p := h.vehiclePass(t, "user-1", "ABC123")
	alternate(t, h, p, "lot", 4)
	h.clock.Advance(time.Hour)

	s1, err := reporting.Stats(ctx, "lot", "")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s1.Period != types.PeriodWeek || s1.TotalEntries != 2 || s1.TotalExits != 2 {
		t.Errorf("unexpected stats: %+v", s1)
	}

	s2, err := reporting.Stats(ctx, "lot", types.PeriodWeek)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if cache.sets != 1 || s2.Watermark != s1.Watermark {
		t.Errorf("second read should hit the cache: sets=%d", cache.sets)
	}

	expectGranted(t, h.enter(t, p.ID, "lot", t0.Add(30*time.Minute)))
	s3, err := reporting.Stats(ctx, "lot", types.PeriodWeek)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if cache.sets != 2 || s3.TotalEntries != 3 || s3.Watermark <= s1.Watermark {
		t.Errorf("new events must bypass the old entry: sets=%d stats=%+v", cache.sets, s3)
	}
}

func TestStats_NewWindowMissesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cache := &countingCache{entries: map[string]types.Stats{}}
	reporting := service.NewReporting(h.store, cache, silentLogger()).WithClock(h.clock.Now)

	h.location(t, "lot", types.LocationParking, 0)
	p := h.vehiclePass(t, "user-1", "ABC123")
	alternate(t, h, p, "lot", 2)

	today, err := reporting.Stats(ctx, "lot", types.PeriodToday)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if today.TotalEntries != 1 {
		t.Fatalf("unexpected stats: %+v", today)
	}

	// Past midnight with no new events the watermark is unchanged, but the
	// day is a different window.
	h.clock.Set(time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC))
	next, err := reporting.Stats(ctx, "lot", types.PeriodToday)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if cache.sets != 2 || next.TotalEntries != 0 || next.Watermark != today.Watermark {
		t.Errorf("stale snapshot served across days: sets=%d stats=%+v", cache.sets, next)
	}
}

func TestStats_UnknownPeriod(t *testing.T) {
	h := newHarness(t)
	h.location(t, "lot", types.LocationParking, 0)
	if _, err := h.reporting.Stats(context.Background(), "lot", "decade"); !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
