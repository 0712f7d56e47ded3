// Package interaction persists the per-user interaction history used for
// recommendation exclusion and engagement stats.
package interaction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/studysync/feedrank/internal/event"
)

// Interaction is one stored user interaction row.
type Interaction struct {
	ID        uuid.UUID             `json:"id"`
	UserID    int64                 `json:"userId"`
	PostID    int64                 `json:"postId"`
	Type      event.InteractionType `json:"interactionType"`
	Category  string                `json:"category,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
}

// FromEvent builds a storable interaction from a stream event.
func FromEvent(ev *event.InteractionEvent) *Interaction {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Interaction{
		ID:        uuid.New(),
		UserID:    ev.UserID,
		PostID:    ev.PostID,
		Type:      ev.InteractionType,
		Category:  ev.Category(),
		CreatedAt: ts,
	}
}

// Stats summarizes one user's interaction counts by type.
type Stats struct {
	UserID int64                         `json:"userId"`
	Total  int64                         `json:"total"`
	ByType map[event.InteractionType]int `json:"byType"`
}

// Store persists interaction history.
type Store interface {
	// Record appends one interaction.
	Record(ctx context.Context, in *Interaction) error

	// SeenPostIDs returns the distinct post IDs the user has interacted
	// with using any of the given types. Used to exclude already-consumed
	// posts from recommendations.
	SeenPostIDs(ctx context.Context, userID int64, types []event.InteractionType) ([]int64, error)

	// StatsForUser returns the user's interaction counts by type.
	StatsForUser(ctx context.Context, userID int64) (*Stats, error)

	// RecentCategories returns the distinct categories of the user's most
	// recent interactions, newest first, up to limit.
	RecentCategories(ctx context.Context, userID int64, limit int) ([]string, error)
}
