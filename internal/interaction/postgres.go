package interaction

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

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

// Record appends one interaction.
func (s *PostgresStore) Record(ctx context.Context, in *Interaction) error {
	query := `
		INSERT INTO user_interactions (id, user_id, post_id, interaction_type, category, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`
	_, err := s.db.ExecContext(ctx, query, in.ID, in.UserID, in.PostID,
		string(in.Type), in.Category, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// SeenPostIDs returns the distinct post IDs the user has interacted with
// using any of the given types.
func (s *PostgresStore) SeenPostIDs(ctx context.Context, userID int64, types []event.InteractionType) ([]int64, error) {
	if len(types) == 0 {
		return nil, nil
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	query := `
		SELECT DISTINCT post_id FROM user_interactions
		WHERE user_id = $1 AND interaction_type = ANY($2)
	`
	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to query seen posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seen posts: %w", err)
	}
	return ids, nil
}

// StatsForUser returns the user's interaction counts by type.
func (s *PostgresStore) StatsForUser(ctx context.Context, userID int64) (*Stats, error) {
	query := `
		SELECT interaction_type, COUNT(*) FROM user_interactions
		WHERE user_id = $1
		GROUP BY interaction_type
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query interaction stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &Stats{UserID: userID, ByType: make(map[event.InteractionType]int)}
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("failed to scan interaction stats: %w", err)
		}
		stats.ByType[event.InteractionType(typ)] = count
		stats.Total += int64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interaction stats: %w", err)
	}
	return stats, nil
}

// RecentCategories returns the distinct categories of the user's most recent
// interactions, newest first.
func (s *PostgresStore) RecentCategories(ctx context.Context, userID int64, limit int) ([]string, error) {
	query := `
		SELECT category FROM (
			SELECT category, MAX(created_at) AS latest
			FROM user_interactions
			WHERE user_id = $1 AND category IS NOT NULL
			GROUP BY category
		) recent
		ORDER BY latest DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent categories: %w", err)
	}
	return categories, nil
}
