package score

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotFound is returned when no score record exists for a post.
	ErrNotFound = errors.New("score record not found")
)

// Store provides access to durable score records. The Update operation is
// the atomic read-modify-write used by the score engine; implementations
// must guarantee per-post atomicity (two concurrent updates to the same
// post never interleave).
type Store interface {
	// Get retrieves the score record for a post.
	// Returns ErrNotFound if no record exists.
	Get(ctx context.Context, postID int64) (*Record, error)

	// Save inserts or fully replaces a score record.
	Save(ctx context.Context, rec *Record) error

	// Delete removes the score record for a post. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, postID int64) error

	// Update atomically applies fn to the record for postID, creating a
	// zeroed record first when none exists. The mutated record is
	// persisted and returned.
	Update(ctx context.Context, postID int64, fn func(rec *Record) error) (*Record, error)

	// TopByScore returns up to limit records ordered by total score
	// descending, post ID ascending on ties.
	TopByScore(ctx context.Context, limit int) ([]*Record, error)

	// TopIDsByScore returns up to limit post IDs in the same order as
	// TopByScore. Used as the ranking-index fallback.
	TopIDsByScore(ctx context.Context, limit int) ([]int64, error)

	// TopIDsByCategory returns up to limit post IDs in a category ordered
	// by total score descending.
	TopIDsByCategory(ctx context.Context, category string, limit int) ([]int64, error)

	// TopIDsByAuthor returns up to limit post IDs by an author ordered by
	// total score descending.
	TopIDsByAuthor(ctx context.Context, authorID int64, limit int) ([]int64, error)

	// All returns every score record, ordered by post ID ascending so that
	// replay passes are deterministic.
	All(ctx context.Context) ([]*Record, error)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

const recordColumns = `post_id, author_id, category, total_score,
	like_count, comment_count, share_count, view_count, bookmark_count,
	created_at, last_updated`

// scanRecord scans one record row from the given row scanner.
func scanRecord(scan func(dest ...any) error) (*Record, error) {
	var rec Record
	var category sql.NullString
	err := scan(&rec.PostID, &rec.AuthorID, &category, &rec.TotalScore,
		&rec.LikeCount, &rec.CommentCount, &rec.ShareCount, &rec.ViewCount,
		&rec.BookmarkCount, &rec.CreatedAt, &rec.LastUpdated)
	if err != nil {
		return nil, err
	}
	rec.Category = category.String
	return &rec, nil
}

// Get retrieves the score record for a post.
func (s *PostgresStore) Get(ctx context.Context, postID int64) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM post_scores WHERE post_id = $1`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, postID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get score record: %w", err)
	}
	return rec, nil
}

// Save inserts or fully replaces a score record.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.LastUpdated = now

	query := `
		INSERT INTO post_scores (` + recordColumns + `)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (post_id) DO UPDATE SET
			author_id = EXCLUDED.author_id,
			category = EXCLUDED.category,
			total_score = EXCLUDED.total_score,
			like_count = EXCLUDED.like_count,
			comment_count = EXCLUDED.comment_count,
			share_count = EXCLUDED.share_count,
			view_count = EXCLUDED.view_count,
			bookmark_count = EXCLUDED.bookmark_count,
			last_updated = EXCLUDED.last_updated
	`
	_, err := s.db.ExecContext(ctx, query, rec.PostID, rec.AuthorID, rec.Category,
		rec.TotalScore, rec.LikeCount, rec.CommentCount, rec.ShareCount,
		rec.ViewCount, rec.BookmarkCount, rec.CreatedAt, rec.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to save score record: %w", err)
	}
	return nil
}

// Delete removes the score record for a post.
func (s *PostgresStore) Delete(ctx context.Context, postID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM post_scores WHERE post_id = $1`, postID)
	if err != nil {
		return fmt.Errorf("failed to delete score record: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	s.logger.Debug("deleted score record",
		slog.Int64("post_id", postID),
		slog.Int64("rows_affected", rowsAffected))
	return nil
}

// Update atomically applies fn to the record for postID inside a transaction
// holding a row lock, creating a zeroed record first when none exists.
func (s *PostgresStore) Update(ctx context.Context, postID int64, fn func(rec *Record) error) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Always attempt rollback on function exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.logger.Warn("failed to rollback score update transaction",
				slog.String("error", err.Error()))
		}
	}()

	selectQuery := `SELECT ` + recordColumns + ` FROM post_scores WHERE post_id = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRowContext(ctx, selectQuery, postID).Scan)
	if err == sql.ErrNoRows {
		// First interaction for this post; create a zeroed record. A
		// concurrent creator may win the insert, so we re-select FOR UPDATE
		// afterwards: on conflict that blocks until the winner commits and
		// returns its row, so both writers see each other's counts.
		now := time.Now().UTC()
		insertQuery := `
			INSERT INTO post_scores (` + recordColumns + `)
			VALUES ($1, 0, NULL, 0, 0, 0, 0, 0, 0, $2, $2)
			ON CONFLICT (post_id) DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, insertQuery, postID, now); err != nil {
			return nil, fmt.Errorf("failed to create score record: %w", err)
		}
		rec, err = scanRecord(tx.QueryRowContext(ctx, selectQuery, postID).Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to lock score record after create: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to lock score record: %w", err)
	}

	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.LastUpdated = time.Now().UTC()

	updateQuery := `
		UPDATE post_scores SET
			author_id = $2,
			category = NULLIF($3, ''),
			total_score = $4,
			like_count = $5,
			comment_count = $6,
			share_count = $7,
			view_count = $8,
			bookmark_count = $9,
			last_updated = $10
		WHERE post_id = $1
	`
	_, err = tx.ExecContext(ctx, updateQuery, rec.PostID, rec.AuthorID, rec.Category,
		rec.TotalScore, rec.LikeCount, rec.CommentCount, rec.ShareCount,
		rec.ViewCount, rec.BookmarkCount, rec.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to update score record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit score update: %w", err)
	}
	return rec, nil
}

// TopByScore returns up to limit records ordered by total score descending.
func (s *PostgresStore) TopByScore(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM post_scores
		ORDER BY total_score DESC, post_id ASC LIMIT $1`
	return s.queryRecords(ctx, query, limit)
}

// TopIDsByScore returns up to limit post IDs ordered by total score descending.
func (s *PostgresStore) TopIDsByScore(ctx context.Context, limit int) ([]int64, error) {
	query := `SELECT post_id FROM post_scores
		ORDER BY total_score DESC, post_id ASC LIMIT $1`
	return s.queryIDs(ctx, query, limit)
}

// TopIDsByCategory returns up to limit post IDs in a category ordered by
// total score descending.
func (s *PostgresStore) TopIDsByCategory(ctx context.Context, category string, limit int) ([]int64, error) {
	query := `SELECT post_id FROM post_scores WHERE category = $1
		ORDER BY total_score DESC, post_id ASC LIMIT $2`
	return s.queryIDs(ctx, query, category, limit)
}

// TopIDsByAuthor returns up to limit post IDs by an author ordered by total
// score descending.
func (s *PostgresStore) TopIDsByAuthor(ctx context.Context, authorID int64, limit int) ([]int64, error) {
	query := `SELECT post_id FROM post_scores WHERE author_id = $1
		ORDER BY total_score DESC, post_id ASC LIMIT $2`
	return s.queryIDs(ctx, query, authorID, limit)
}

// All returns every score record ordered by post ID.
func (s *PostgresStore) All(ctx context.Context) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM post_scores ORDER BY post_id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list score records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRecords(rows)
}

// queryRecords runs a record query with arguments and collects the results.
func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query score records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRecords(rows)
}

// queryIDs runs a post-ID query with arguments and collects the results.
func (s *PostgresStore) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query post ids: %w", err)
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
		return nil, fmt.Errorf("failed to iterate post ids: %w", err)
	}
	return ids, nil
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate score records: %w", err)
	}
	return records, nil
}
