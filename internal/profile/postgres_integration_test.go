//go:build integration

package profile

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	sparkdb "github.com/onnwee/sparkfeed/internal/db"
)

// startPostgres runs a throwaway Postgres container with the repository
// migrations applied.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("sparkfeed"),
		postgres.WithUsername("sparkfeed"),
		postgres.WithPassword("sparkfeed"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := sparkdb.ApplyMigrations(ctx, db, os.DirFS("../../migrations")); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return db
}

func TestPostgresRepository_Integration(t *testing.T) {
	db := startPostgres(t)
	repo := NewPostgresRepository(db, nil)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	for _, p := range []*Profile{
		{ID: "viewer", DisplayName: "V", City: "Paris", CreatedAt: base.Add(10 * time.Minute)},
		{ID: "a", DisplayName: "A", City: "Paris", Gender: "f", Age: 27, CreatedAt: base.Add(3 * time.Minute)},
		{ID: "b", DisplayName: "B", City: "Lyon", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "c", DisplayName: "C", CreatedAt: base.Add(2 * time.Minute)},
	} {
		if err := repo.Upsert(ctx, p); err != nil {
			t.Fatalf("upsert %s: %v", p.ID, err)
		}
	}
	if err := repo.SetCompatibility(ctx, "viewer", "b", 77); err != nil {
		t.Fatalf("set compatibility: %v", err)
	}

	page1, next, err := repo.ListCandidates(ctx, Query{ViewerID: "viewer", Limit: 2})
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != "a" || page1[1].ID != "b" {
		t.Fatalf("page 1 = %v, want [a b]", ids(page1))
	}
	if page1[1].CompatibilityScore == nil || *page1[1].CompatibilityScore != 77 {
		t.Errorf("score for b = %v, want 77", page1[1].CompatibilityScore)
	}
	if next == nil {
		t.Fatal("expected a next cursor")
	}

	page2, next, err := repo.ListCandidates(ctx, Query{ViewerID: "viewer", Limit: 2, Cursor: next})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "c" {
		t.Errorf("page 2 = %v, want [c]", ids(page2))
	}
	if next != nil {
		t.Errorf("next = %+v, want nil", next)
	}

	got, err := repo.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Age != 27 || got.Gender != "f" {
		t.Errorf("unexpected profile: %+v", got)
	}
}
