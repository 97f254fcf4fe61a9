package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/axs360/access-engine/internal/db"
)

func openWorkerDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", db.DSN(fmt.Sprintf("file:worker_%s?mode=memory&cache=shared", t.Name())))
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	if _, err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func countLocations(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM locations`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func insertLocation(id string) db.TxFn {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO locations(id, business_id, name, kind, capacity, reentry_policy, created_at_ms, updated_at_ms)
VALUES (?, 'biz', 'Test', 'parking', 10, 'single_session', 0, 0);`, id)
		return err
	}
}

// ── Commit / rollback ───────────────────────────────────────────────────────

func TestWorker_Do_Commits(t *testing.T) {
	conn := openWorkerDB(t)
	w := db.NewWorker(conn)
	defer w.Close()

	if err := w.Do(context.Background(), insertLocation("loc-1")); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := countLocations(t, conn); n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestWorker_Do_RollsBackOnError(t *testing.T) {
	conn := openWorkerDB(t)
	w := db.NewWorker(conn)
	defer w.Close()

	boom := errors.New("boom")
	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		if err := insertLocation("loc-1")(ctx, tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n := countLocations(t, conn); n != 0 {
		t.Errorf("expected rollback, got %d rows", n)
	}
}

// ── Deadlines ───────────────────────────────────────────────────────────────

func TestWorker_Do_AbandonedJobNeverRuns(t *testing.T) {
	conn := openWorkerDB(t)
	w := db.NewWorker(conn)
	defer w.Close()

	// Occupy the writer so the next job stays queued.
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Do(ctx, insertLocation("loc-late"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(release)
	// Flush the queue with a job that runs after the abandoned one.
	if err := w.Do(context.Background(), insertLocation("loc-after")); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := countLocations(t, conn); n != 1 {
		t.Errorf("abandoned job must not commit: got %d rows", n)
	}
}

func TestWorker_Do_ClaimedJobReportsOutcome(t *testing.T) {
	conn := openWorkerDB(t)
	w := db.NewWorker(conn)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cancel()
		return insertLocation("loc-1")(ctx, tx)
	})
	if err != nil {
		t.Fatalf("claimed job should commit despite cancellation, got %v", err)
	}
	if n := countLocations(t, conn); n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}
