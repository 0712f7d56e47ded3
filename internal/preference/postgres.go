package preference

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/studysync/feedrank/internal/event"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Apply adjusts the user's affinity for a category via an upsert. The clamp
// to [0,1] happens in SQL so concurrent applies cannot push past the bounds.
func (s *PostgresStore) Apply(ctx context.Context, userID int64, category string, t event.InteractionType) error {
	delta := Increment(t)
	if delta == 0 || category == "" {
		return nil
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO user_preferences (user_id, category, score, interaction_count, created_at, updated_at)
		VALUES ($1, $2, LEAST(1.0, GREATEST(0.0, $3)), 1, $4, $4)
		ON CONFLICT (user_id, category) DO UPDATE SET
			score = LEAST(1.0, GREATEST(0.0, user_preferences.score + $3)),
			interaction_count = user_preferences.interaction_count + 1,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, userID, category, delta, now); err != nil {
		return fmt.Errorf("failed to apply preference update: %w", err)
	}
	return nil
}

// Get returns the user's affinity for one category, or nil when absent.
func (s *PostgresStore) Get(ctx context.Context, userID int64, category string) (*Record, error) {
	query := `
		SELECT user_id, category, score, interaction_count, created_at, updated_at
		FROM user_preferences
		WHERE user_id = $1 AND category = $2
	`
	var rec Record
	err := s.db.QueryRowContext(ctx, query, userID, category).Scan(
		&rec.UserID, &rec.Category, &rec.Score, &rec.InteractionCount,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	return &rec, nil
}

// TopByUser returns the user's affinities ordered by score descending.
func (s *PostgresStore) TopByUser(ctx context.Context, userID int64, limit int) ([]*Record, error) {
	query := `
		SELECT user_id, category, score, interaction_count, created_at, updated_at
		FROM user_preferences
		WHERE user_id = $1
		ORDER BY score DESC, category ASC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.UserID, &rec.Category, &rec.Score,
			&rec.InteractionCount, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preferences: %w", err)
	}
	return records, nil
}
