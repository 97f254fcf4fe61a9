package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedLocation struct {
	ID            string
	BusinessID    string
	Name          string
	Kind          string
	Capacity      int
	ReentryPolicy string
	HardCapacity  bool
}

type SeedDevOptions struct {
	// Locations to create in dev.  DefaultDevLocations is used when empty.
	Locations []SeedLocation
}

// DefaultDevLocations is one parking garage and one lounge owned by the dev
// business account.
var DefaultDevLocations = []SeedLocation{
	{ID: "loc_dev_parking", BusinessID: "biz_dev", Name: "Dev Parking Garage", Kind: "parking", Capacity: 50, ReentryPolicy: "multi_pass", HardCapacity: false},
	{ID: "loc_dev_lounge", BusinessID: "biz_dev", Name: "Dev Airport Lounge", Kind: "lounge", Capacity: 20, ReentryPolicy: "single_session", HardCapacity: true},
}

// SeedDev upserts the dev locations.  Occupancy counters of existing rows are
// left alone.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	locs := opt.Locations
	if len(locs) == 0 {
		locs = DefaultDevLocations
	}
	now := time.Now().UTC().UnixMilli()

	for _, l := range locs {
		hard := 0
		if l.HardCapacity {
			hard = 1
		}
		if _, err := db.ExecContext(ctx, `
INSERT INTO locations(
  id, business_id, name, kind, capacity,
  reentry_policy, hard_capacity, thresholds_json,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, '[]', ?, ?)
ON CONFLICT(id) DO UPDATE SET
  business_id = excluded.business_id,
  name = excluded.name,
  kind = excluded.kind,
  capacity = excluded.capacity,
  reentry_policy = excluded.reentry_policy,
  hard_capacity = excluded.hard_capacity,
  updated_at_ms = excluded.updated_at_ms;
`, l.ID, l.BusinessID, l.Name, l.Kind, l.Capacity, l.ReentryPolicy, hard, now, now); err != nil {
			return fmt.Errorf("seed location %s: %w", l.ID, err)
		}
	}

	return nil
}
