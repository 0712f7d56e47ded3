// Package preference tracks per-user category affinities. Affinities are
// derived from interaction history and serve as a read-only personalization
// signal for the recommendation scorer.
package preference

import (
	"context"
	"time"

	"github.com/studysync/feedrank/internal/event"
)

// Record is one (user, category) affinity row. Score stays in [0,1].
type Record struct {
	UserID           int64     `json:"userId"`
	Category         string    `json:"category"`
	Score            float64   `json:"score"`
	InteractionCount int64     `json:"interactionCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// increments maps interaction types to affinity deltas. Stronger engagement
// moves the affinity more; UNLIKE walks it back slightly.
var increments = map[event.InteractionType]float64{
	event.InteractionLike:     0.05,
	event.InteractionComment:  0.10,
	event.InteractionShare:    0.15,
	event.InteractionView:     0.01,
	event.InteractionBookmark: 0.12,
	event.InteractionUnlike:   -0.03,
}

// Increment returns the affinity delta for an interaction type. Types with
// no preference signal (CLICK) return 0.
func Increment(t event.InteractionType) float64 {
	return increments[t]
}

// clamp keeps an affinity score inside [0,1].
func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Store persists user preference affinities.
type Store interface {
	// Apply adjusts the user's affinity for a category according to the
	// interaction type, creating the row when absent. Zero-delta types and
	// empty categories are a no-op.
	Apply(ctx context.Context, userID int64, category string, t event.InteractionType) error

	// Get returns the user's affinity for one category, or nil when the
	// user has none.
	Get(ctx context.Context, userID int64, category string) (*Record, error)

	// TopByUser returns the user's affinities ordered by score descending,
	// up to limit.
	TopByUser(ctx context.Context, userID int64, limit int) ([]*Record, error)
}
