package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/weatherbridge/internal/journal"
	"github.com/MrWong99/weatherbridge/internal/journal/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if WEATHERBRIDGE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("WEATHERBRIDGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("WEATHERBRIDGE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a Store on a freshly dropped exchanges table.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS exchanges CASCADE"); err != nil {
		t.Fatalf("drop exchanges: %v", err)
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStore_RecordAndRecent verifies the round trip of every column and the
// newest-first order.
func TestStore_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	first := journal.Entry{
		At:        at,
		Duration:  1500 * time.Millisecond,
		Query:     "Any storm warnings in CA?",
		Answer:    "No active alerts.",
		Tool:      "get_alerts",
		Arguments: map[string]any{"state": "CA"},
		Strategy:  "heuristic",
		TraceID:   "4bf92f3577b34da6a3ce929d0e0e4736",
	}
	second := journal.Entry{
		At:    at.Add(time.Minute),
		Query: "Tell me a joke",
		Err:   "orchestrator: inference failed: connection refused",
	}
	for _, e := range []journal.Entry{first, second} {
		if err := store.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Query != second.Query || got[0].Err != second.Err || got[0].Arguments != nil {
		t.Errorf("newest entry = %+v", got[0])
	}
	old := got[1]
	if old.Tool != "get_alerts" || old.Arguments["state"] != "CA" || old.Strategy != "heuristic" {
		t.Errorf("oldest entry = %+v", old)
	}
	if old.Duration != first.Duration || !old.At.Equal(at) || old.TraceID != first.TraceID {
		t.Errorf("oldest entry metadata = %+v", old)
	}
	if got[0].ID <= old.ID {
		t.Errorf("IDs not increasing: %d then %d", old.ID, got[0].ID)
	}
}

func TestStore_RecentLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"a", "b", "c"} {
		if err := store.Record(ctx, journal.Entry{Query: q}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	got, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Query != "c" || got[1].Query != "b" {
		t.Errorf("Recent(2) = %+v", got)
	}
}

// TestMigrate_Idempotent verifies that running the migration twice is safe.
func TestMigrate_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
