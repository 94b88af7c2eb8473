package profile

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var candidateColumns = []string{
	"id", "display_name", "city", "gender", "age", "bio", "photo_url", "geohash",
	"last_active_at", "created_at", "score",
}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db, nil), mock
}

func TestPostgresRepository_GetByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM profiles p WHERE p.id = \$1 AND p.deleted_at IS NULL`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(candidateColumns[:10]).
			AddRow("u1", "Ana", "Paris", "f", 31, "", "", "u09tvw", nil, created))

	p, err := repo.GetByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "u1" || p.City != "Paris" || p.Age != 31 || p.Geohash != "u09tvw" {
		t.Errorf("unexpected profile: %+v", p)
	}
	if p.LastActiveAt != nil {
		t.Errorf("LastActiveAt = %v, want nil", p.LastActiveAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .* FROM profiles p WHERE p.id = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "ghost"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("error = %v, want ErrProfileNotFound", err)
	}
}

func TestPostgresRepository_GetByID_DBError(t *testing.T) {
	repo, mock := newMockRepo(t)
	dbErr := errors.New("connection reset")

	mock.ExpectQuery(`SELECT .* FROM profiles p`).WillReturnError(dbErr)

	_, err := repo.GetByID(context.Background(), "u1")
	if !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped %v", err, dbErr)
	}
	if errors.Is(err, ErrProfileNotFound) {
		t.Error("db error must not be reported as not found")
	}
}

func TestPostgresRepository_ListCandidates_FirstPage(t *testing.T) {
	repo, mock := newMockRepo(t)
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM profiles p LEFT JOIN compatibility_scores cs ON cs.viewer_id = \$1 AND cs.candidate_id = p.id WHERE p.deleted_at IS NULL AND p.id <> \$1 ORDER BY p.created_at DESC, p.id ASC LIMIT \$2`).
		WithArgs("viewer", 3).
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("a", "A", "Paris", "f", 29, "", "", "", nil, base.Add(3*time.Minute), 90).
			AddRow("b", "B", "", "", nil, "", "", "", nil, base.Add(2*time.Minute), nil).
			AddRow("c", "C", "Lyon", "m", 33, "", "", "", base, base.Add(time.Minute), 40))

	got, next, err := repo.ListCandidates(context.Background(), Query{ViewerID: "viewer", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("ids = %v, want [a b]", ids(got))
	}
	if got[0].CompatibilityScore == nil || *got[0].CompatibilityScore != 90 {
		t.Errorf("score for a = %v, want 90", got[0].CompatibilityScore)
	}
	if got[1].CompatibilityScore != nil {
		t.Errorf("score for b = %d, want nil", *got[1].CompatibilityScore)
	}
	if got[1].Age != 0 {
		t.Errorf("age for b = %d, want 0 for NULL", got[1].Age)
	}
	if next == nil || next.ID != "b" || !next.CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Errorf("next cursor = %+v, want position of b", next)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_ListCandidates_WithCursor(t *testing.T) {
	repo, mock := newMockRepo(t)
	cursorAt := time.Date(2026, 1, 5, 10, 2, 0, 0, time.UTC)

	mock.ExpectQuery(`AND \(p.created_at < \$2 OR \(p.created_at = \$2 AND p.id > \$3\)\) ORDER BY p.created_at DESC, p.id ASC LIMIT \$4`).
		WithArgs("viewer", cursorAt, "b", 21).
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("c", "C", "Lyon", "m", 33, "", "", "", nil, cursorAt.Add(-time.Minute), nil))

	got, next, err := repo.ListCandidates(context.Background(), Query{
		ViewerID: "viewer",
		Limit:    20,
		Cursor:   &Cursor{CreatedAt: cursorAt, ID: "b"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Errorf("ids = %v, want [c]", ids(got))
	}
	if next != nil {
		t.Errorf("next = %+v, want nil on last page", next)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_ListCandidates_RowError(t *testing.T) {
	repo, mock := newMockRepo(t)
	rowErr := errors.New("bad row")

	mock.ExpectQuery(`SELECT .* FROM profiles p`).
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow("a", "A", "", "", nil, "", "", "", nil, time.Now(), nil).
			RowError(0, rowErr))

	if _, _, err := repo.ListCandidates(context.Background(), Query{ViewerID: "v", Limit: 5}); !errors.Is(err, rowErr) {
		t.Errorf("error = %v, want %v", err, rowErr)
	}
}

func TestPostgresRepository_SetCompatibility_Clamps(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO compatibility_scores`).
		WithArgs("viewer", "a", 100).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetCompatibility(context.Background(), "viewer", "a", 180); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_Upsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO profiles .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("u1", "Ana", "Paris", "f", sql.NullInt64{Int64: 31, Valid: true}, "", "", "u09tvw",
			sql.NullTime{}, sql.NullTime{Time: created, Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &Profile{
		ID: "u1", DisplayName: "Ana", City: "Paris", Gender: "f", Age: 31, Geohash: "u09tvw", CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
