package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/axs360/access-engine/internal/axs/service"
	"github.com/axs360/access-engine/internal/axs/types"
	"github.com/axs360/access-engine/internal/cache"
)

var _ service.StatsCache = (*cache.StatsCache)(nil)

func newTestCache(t *testing.T, ttl time.Duration) (*cache.StatsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := cache.Connect(context.Background(), mr.Addr(), "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewStatsCache(client, ttl), mr
}

func TestStatsCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "stats:lot:week:7"); err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	in := types.Stats{
		LocationID:     "lot",
		Period:         types.PeriodWeek,
		TotalEntries:   12,
		DeniedByReason: map[types.DenialReason]int{types.ReasonAlreadyInside: 2},
		Daily:          []types.DailyStats{{Date: "2026-03-01", Visits: 12, UniqueVisitors: 9}},
		Watermark:      7,
	}
	if err := c.Set(ctx, "stats:lot:week:7", in); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("axs:stats:lot:week:7") {
		t.Fatal("expected prefixed key in redis")
	}

	out, ok, err := c.Get(ctx, "stats:lot:week:7")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if out.TotalEntries != 12 || out.Watermark != 7 || out.DeniedByReason[types.ReasonAlreadyInside] != 2 || len(out.Daily) != 1 {
		t.Errorf("unexpected round trip: %+v", out)
	}
}

func TestStatsCache_Expires(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", types.Stats{LocationID: "lot"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, err := c.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expired entry: ok=%v err=%v", ok, err)
	}
}

func TestStatsCache_CorruptEntry(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	if err := mr.Set("axs:k", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := c.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := cache.Connect(context.Background(), addr, ""); err == nil {
		t.Fatal("expected ping failure")
	}
}
