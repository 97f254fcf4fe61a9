package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/axs360/access-engine/internal/axs/store"
	sqlitestore "github.com/axs360/access-engine/internal/axs/store/sqlite"
	"github.com/axs360/access-engine/internal/axs/types"
	"github.com/axs360/access-engine/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each test gets its own named in-memory database.  Shared cache keeps
	// it alive across pool reconnects.
	name := strings.ReplaceAll(t.Name(), "/", "_")
	conn, err := sql.Open("sqlite", db.DSN(fmt.Sprintf("file:test_%s?mode=memory&cache=shared", name)))
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if _, err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn.  The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func newTestStore(t *testing.T) (*sqlitestore.Store, *sql.DB) {
	t.Helper()
	conn := openTestDB(t)
	return sqlitestore.New(conn, newTestWriter(t, conn)), conn
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedLocation(t *testing.T, s *sqlitestore.Store, id string, capacity int) types.Location {
	t.Helper()
	loc := types.Location{
		ID:            id,
		BusinessID:    "biz-1",
		Name:          "Garage " + id,
		Kind:          types.LocationParking,
		Capacity:      capacity,
		ReentryPolicy: types.ReentrySingleSession,
		HardCapacity:  true,
		Thresholds:    []types.AlertThreshold{{Level: types.AlertWarning, Percent: 85}},
	}
	if err := s.UpsertLocation(context.Background(), loc); err != nil {
		t.Fatalf("seed location %s: %v", id, err)
	}
	return loc
}

func seedPass(t *testing.T, s *sqlitestore.Store, id, owner string) types.Pass {
	t.Helper()
	until := t0.Add(24 * time.Hour)
	p := types.Pass{
		ID:         id,
		OwnerID:    owner,
		Kind:       types.PassKindVehicle,
		Details:    types.VehicleDetails{Plate: "ABC123", VIN: "1HGCM82633A004352", Year: 2020},
		ValidFrom:  t0,
		ValidUntil: &until,
		Status:     types.PassStatusActive,
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}
	err := s.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPass(ctx, p)
	})
	if err != nil {
		t.Fatalf("seed pass %s: %v", id, err)
	}
	return p
}

func appendEvent(t *testing.T, s *sqlitestore.Store, ev types.AccessEvent) types.AccessEvent {
	t.Helper()
	if err := s.RecordEvent(context.Background(), &ev); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	return ev
}
