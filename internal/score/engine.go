package score

import (
	"context"
	"errors"
	"log/slog"

	"github.com/studysync/feedrank/internal/event"
)

// Engine applies interaction deltas and lifecycle transitions to the durable
// score store. All mutations run through Store.Update so concurrent events
// for the same post serialize on the row.
type Engine struct {
	store   Store
	weights Weights
	logger  *slog.Logger
}

// NewEngine creates a score engine with the given store and weights.
func NewEngine(store Store, weights Weights, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   store,
		weights: weights,
		logger:  logger,
	}
}

// Weights returns the active weight configuration.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Store returns the backing score store.
func (e *Engine) Store() Store {
	return e.store
}

// Apply applies one interaction event to the post's counters and recomputes
// the total score. The returned record reflects the post-update state.
//
// CLICK events influence user preferences only and leave scores untouched;
// Apply returns (nil, nil) for them without creating a record.
func (e *Engine) Apply(ctx context.Context, ev *event.InteractionEvent) (*Record, error) {
	if ev.InteractionType == event.InteractionClick {
		return nil, nil
	}

	rec, err := e.store.Update(ctx, ev.PostID, func(rec *Record) error {
		switch ev.InteractionType {
		case event.InteractionLike:
			rec.LikeCount++
		case event.InteractionUnlike:
			// Floor at zero so replayed or unmatched unlikes cannot drive
			// a counter negative.
			if rec.LikeCount > 0 {
				rec.LikeCount--
			}
		case event.InteractionComment:
			rec.CommentCount++
		case event.InteractionShare:
			rec.ShareCount++
		case event.InteractionView:
			rec.ViewCount++
		case event.InteractionBookmark:
			rec.BookmarkCount++
		default:
			return event.ErrInvalidInteractionType
		}

		if category := ev.Category(); category != "" && rec.Category == "" {
			rec.Category = category
		}
		rec.TotalScore = e.weights.Total(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("applied interaction to score",
		slog.Int64("post_id", rec.PostID),
		slog.String("interaction_type", string(ev.InteractionType)),
		slog.Float64("total_score", rec.TotalScore))
	return rec, nil
}

// Initialize ensures a score record exists for a newly created or published
// post, attaching author and category metadata. Counters already accumulated
// by earlier interaction events are preserved.
func (e *Engine) Initialize(ctx context.Context, postID, authorID int64, category string) (*Record, error) {
	return e.store.Update(ctx, postID, func(rec *Record) error {
		if authorID > 0 {
			rec.AuthorID = authorID
		}
		if category != "" {
			rec.Category = category
		}
		rec.TotalScore = e.weights.Total(rec)
		return nil
	})
}

// UpdateMetadata applies changed post metadata to an existing record. It
// returns the updated record and the category the record carried before the
// change so the caller can move the post between category rankings.
func (e *Engine) UpdateMetadata(ctx context.Context, postID, authorID int64, category string) (*Record, string, error) {
	var oldCategory string
	rec, err := e.store.Update(ctx, postID, func(rec *Record) error {
		oldCategory = rec.Category
		if authorID > 0 {
			rec.AuthorID = authorID
		}
		if category != "" {
			rec.Category = category
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return rec, oldCategory, nil
}

// Remove deletes the score record for a post and returns the removed record
// so the caller can clear derived rankings. Returns (nil, nil) when the post
// had no record.
func (e *Engine) Remove(ctx context.Context, postID int64) (*Record, error) {
	rec, err := e.store.Get(ctx, postID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := e.store.Delete(ctx, postID); err != nil {
		return nil, err
	}
	e.logger.Info("removed score record",
		slog.Int64("post_id", postID),
		slog.Float64("total_score", rec.TotalScore))
	return rec, nil
}
