package event

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/sparkfeed/internal/tracing"
)

// PostgresStore reads active participants from the event_participants table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ParticipantIDs returns profiles that joined the event and have not left.
func (s *PostgresStore) ParticipantIDs(ctx context.Context, eventID string) (_ map[string]struct{}, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "event_participants", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_id FROM event_participants WHERE event_id = $1 AND left_at IS NULL`,
		eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for event %s: %w", eventID, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return ids, nil
}

// Join marks profileID as participating, re-activating an earlier leave.
func (s *PostgresStore) Join(ctx context.Context, eventID, profileID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "event_participants", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_participants (event_id, profile_id, joined_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_id, profile_id) DO UPDATE SET joined_at = NOW(), left_at = NULL`,
		eventID, profileID)
	if err != nil {
		return fmt.Errorf("failed to join event %s: %w", eventID, err)
	}
	return nil
}

// Leave marks profileID as no longer participating.
func (s *PostgresStore) Leave(ctx context.Context, eventID, profileID string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "event_participants", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	_, err = s.db.ExecContext(ctx,
		`UPDATE event_participants SET left_at = NOW()
		WHERE event_id = $1 AND profile_id = $2 AND left_at IS NULL`,
		eventID, profileID)
	if err != nil {
		return fmt.Errorf("failed to leave event %s: %w", eventID, err)
	}
	return nil
}
