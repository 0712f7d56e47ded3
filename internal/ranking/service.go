package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studysync/feedrank/internal/score"
)

// Service keeps the ranking index in step with the score store and serves
// top-N reads with a store fallback when the index is empty or unreachable.
type Service struct {
	index  Index
	store  score.Store
	logger *slog.Logger
}

// NewService creates a ranking service.
func NewService(index Index, store score.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		index:  index,
		store:  store,
		logger: logger,
	}
}

// Sync writes a score record's current total into the index facets.
func (s *Service) Sync(ctx context.Context, rec *score.Record) error {
	return s.index.SetScore(ctx, rec.PostID, rec.TotalScore, rec.Category, rec.AuthorID)
}

// BumpTrending adds an interaction's score delta to the trending facet.
// Trending tracks recent activity volume, so deltas accumulate instead of
// overwriting.
func (s *Service) BumpTrending(ctx context.Context, postID int64, delta float64) error {
	if delta == 0 {
		return nil
	}
	return s.index.IncrTrending(ctx, postID, delta)
}

// Remove deletes a post from every facet after its score record is gone.
func (s *Service) Remove(ctx context.Context, rec *score.Record) error {
	return s.index.Remove(ctx, rec.PostID, rec.Category, rec.AuthorID)
}

// ChangeCategory moves a post between category facets after a metadata
// update changed its category.
func (s *Service) ChangeCategory(ctx context.Context, rec *score.Record, oldCategory string) error {
	if oldCategory == rec.Category {
		return nil
	}
	return s.index.MoveCategory(ctx, rec.PostID, oldCategory, rec.Category, rec.TotalScore)
}

// Top returns up to limit posts for the facet, highest score first. When the
// index errors or comes back empty while the store still has records, the
// read falls back to the store so rankings survive a cold or lost index.
func (s *Service) Top(ctx context.Context, facet Facet, limit int) ([]RankedPost, error) {
	if limit <= 0 {
		return nil, nil
	}
	posts, err := s.index.Top(ctx, facet, limit)
	if err != nil {
		s.logger.Warn("ranking index read failed, falling back to score store",
			slog.String("facet", facet.String()),
			slog.String("error", err.Error()))
		return s.topFromStore(ctx, facet, limit)
	}
	if len(posts) == 0 {
		return s.topFromStore(ctx, facet, limit)
	}
	return posts, nil
}

// topFromStore serves a facet read directly from the durable score store.
// The trending facet has no durable counterpart and degrades to lifetime
// score order.
func (s *Service) topFromStore(ctx context.Context, facet Facet, limit int) ([]RankedPost, error) {
	switch facet.Kind {
	case KindGlobal, KindTrending:
		records, err := s.store.TopByScore(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("ranking fallback failed: %w", err)
		}
		posts := make([]RankedPost, 0, len(records))
		for _, rec := range records {
			posts = append(posts, RankedPost{PostID: rec.PostID, Score: rec.TotalScore})
		}
		return posts, nil
	case KindCategory:
		ids, err := s.store.TopIDsByCategory(ctx, facet.Category, limit)
		if err != nil {
			return nil, fmt.Errorf("ranking fallback failed: %w", err)
		}
		return s.hydrateScores(ctx, ids)
	case KindAuthor:
		ids, err := s.store.TopIDsByAuthor(ctx, facet.AuthorID, limit)
		if err != nil {
			return nil, fmt.Errorf("ranking fallback failed: %w", err)
		}
		return s.hydrateScores(ctx, ids)
	default:
		return nil, fmt.Errorf("unknown facet kind %d", facet.Kind)
	}
}

// hydrateScores attaches stored totals to an ordered ID list. A record that
// vanishes between the two reads is skipped rather than failing the page.
func (s *Service) hydrateScores(ctx context.Context, ids []int64) ([]RankedPost, error) {
	posts := make([]RankedPost, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.Get(ctx, id)
		if errors.Is(err, score.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ranking fallback failed: %w", err)
		}
		posts = append(posts, RankedPost{PostID: id, Score: rec.TotalScore})
	}
	return posts, nil
}

// Rebuild clears the index and repopulates the score-derived facets from
// every record in the store. Trending data is velocity, not derivable from
// lifetime counters, so it restarts empty and refills as events arrive.
// Returns the number of records indexed.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	if err := s.index.Clear(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear ranking index: %w", err)
	}
	records, err := s.store.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load score records for rebuild: %w", err)
	}
	for i, rec := range records {
		if err := s.Sync(ctx, rec); err != nil {
			return i, fmt.Errorf("failed to index post %d during rebuild: %w", rec.PostID, err)
		}
	}
	s.logger.Info("rebuilt ranking index",
		slog.Int("records", len(records)))
	return len(records), nil
}
