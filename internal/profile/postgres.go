package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/onnwee/sparkfeed/internal/tracing"
)

const profileColumns = `p.id, p.display_name, COALESCE(p.city, ''), COALESCE(p.gender, ''),
	p.age, COALESCE(p.bio, ''), COALESCE(p.photo_url, ''), COALESCE(p.geohash, ''),
	p.last_active_at, p.created_at`

// PostgresRepository implements Repository on the profiles and
// compatibility_scores tables.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a PostgresRepository. A nil logger uses slog.Default.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, extra ...any) (*Profile, error) {
	var (
		p          Profile
		age        sql.NullInt64
		lastActive sql.NullTime
	)
	dest := []any{
		&p.ID, &p.DisplayName, &p.City, &p.Gender,
		&age, &p.Bio, &p.PhotoURL, &p.Geohash,
		&lastActive, &p.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if age.Valid {
		p.Age = int(age.Int64)
	}
	if lastActive.Valid {
		t := lastActive.Time
		p.LastActiveAt = &t
	}
	return &p, nil
}

// GetByID returns the live profile with the given id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (_ *Profile, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + profileColumns + `
		FROM profiles p
		WHERE p.id = $1 AND p.deleted_at IS NULL`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return p, nil
}

// ListCandidates implements Repository. It fetches one row past the limit
// to decide whether another page exists.
func (r *PostgresRepository) ListCandidates(ctx context.Context, q Query) (_ []*Profile, _ *Cursor, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var sb strings.Builder
	sb.WriteString(`SELECT ` + profileColumns + `, cs.score
		FROM profiles p
		LEFT JOIN compatibility_scores cs ON cs.viewer_id = $1 AND cs.candidate_id = p.id
		WHERE p.deleted_at IS NULL AND p.id <> $1`)
	args := []any{q.ViewerID}
	if q.Cursor != nil {
		sb.WriteString(` AND (p.created_at < $2 OR (p.created_at = $2 AND p.id > $3))`)
		args = append(args, q.Cursor.CreatedAt, q.Cursor.ID)
	}
	sb.WriteString(` ORDER BY p.created_at DESC, p.id ASC`)
	if q.Limit > 0 {
		args = append(args, q.Limit+1)
		sb.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		var score sql.NullInt64
		p, err := scanProfile(rows, &score)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if score.Valid {
			s := int(score.Int64)
			p.CompatibilityScore = &s
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	var next *Cursor
	if q.Limit > 0 && len(profiles) > q.Limit {
		profiles = profiles[:q.Limit]
		last := profiles[len(profiles)-1]
		next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	r.logger.DebugContext(ctx, "listed feed candidates",
		slog.String("viewer_id", q.ViewerID),
		slog.Int("count", len(profiles)),
		slog.Bool("has_more", next != nil))

	return profiles, next, nil
}

// Upsert inserts or updates a profile row.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Profile) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "profiles", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	var age sql.NullInt64
	if p.Age > 0 {
		age = sql.NullInt64{Int64: int64(p.Age), Valid: true}
	}
	var lastActive sql.NullTime
	if p.LastActiveAt != nil {
		lastActive = sql.NullTime{Time: *p.LastActiveAt, Valid: true}
	}

	query := `INSERT INTO profiles
		(id, display_name, city, gender, age, bio, photo_url, geohash, last_active_at, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, COALESCE($10, NOW()))
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			city = EXCLUDED.city,
			gender = EXCLUDED.gender,
			age = EXCLUDED.age,
			bio = EXCLUDED.bio,
			photo_url = EXCLUDED.photo_url,
			geohash = EXCLUDED.geohash,
			last_active_at = EXCLUDED.last_active_at,
			deleted_at = NULL`

	var createdAt sql.NullTime
	if !p.CreatedAt.IsZero() {
		createdAt = sql.NullTime{Time: p.CreatedAt, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.DisplayName, p.City, p.Gender, age, p.Bio, p.PhotoURL, p.Geohash, lastActive, createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", p.ID, err)
	}
	return nil
}

// SetCompatibility records the score of candidateID as seen by viewerID.
func (r *PostgresRepository) SetCompatibility(ctx context.Context, viewerID, candidateID string, score int) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "compatibility_scores", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `INSERT INTO compatibility_scores (viewer_id, candidate_id, score, computed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (viewer_id, candidate_id) DO UPDATE SET
			score = EXCLUDED.score,
			computed_at = EXCLUDED.computed_at`

	if _, err = r.db.ExecContext(ctx, query, viewerID, candidateID, ClampScore(score)); err != nil {
		return fmt.Errorf("failed to set compatibility: %w", err)
	}
	return nil
}
