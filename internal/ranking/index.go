// Package ranking maintains the fast, rebuildable ranking index derived from
// the durable score store. The index serves top-N reads for four facets:
// global, per-category, per-author, and trending.
package ranking

import (
	"context"
	"fmt"
	"strconv"
)

// FacetKind identifies which ranking dimension a facet addresses.
type FacetKind int

const (
	KindGlobal FacetKind = iota
	KindCategory
	KindAuthor
	KindTrending
)

// Facet addresses one sorted ranking within the index.
type Facet struct {
	Kind     FacetKind
	Category string
	AuthorID int64
}

// Global addresses the all-posts ranking.
func Global() Facet { return Facet{Kind: KindGlobal} }

// Category addresses the ranking of posts within one category.
func Category(category string) Facet {
	return Facet{Kind: KindCategory, Category: category}
}

// Author addresses the ranking of one author's posts.
func Author(authorID int64) Facet {
	return Facet{Kind: KindAuthor, AuthorID: authorID}
}

// Trending addresses the recent-activity ranking. Unlike the other facets it
// tracks engagement velocity, not lifetime score.
func Trending() Facet { return Facet{Kind: KindTrending} }

// Key returns the storage key for the facet.
func (f Facet) Key() string {
	switch f.Kind {
	case KindCategory:
		return "post_rankings:category:" + f.Category
	case KindAuthor:
		return "post_rankings:author:" + strconv.FormatInt(f.AuthorID, 10)
	case KindTrending:
		return "post_rankings:trending"
	default:
		return "post_rankings:global"
	}
}

// String implements fmt.Stringer for logging.
func (f Facet) String() string {
	switch f.Kind {
	case KindCategory:
		return fmt.Sprintf("category:%s", f.Category)
	case KindAuthor:
		return fmt.Sprintf("author:%d", f.AuthorID)
	case KindTrending:
		return "trending"
	default:
		return "global"
	}
}

// RankedPost is one entry returned from a facet read, highest score first.
type RankedPost struct {
	PostID int64   `json:"postId"`
	Score  float64 `json:"score"`
}

// Index is the low-level sorted-score store behind the ranking service. It
// holds derived data only; losing it entirely is recoverable by a rebuild
// from the score store.
type Index interface {
	// SetScore writes the post's score into the global facet and, when the
	// record carries them, its category and author facets.
	SetScore(ctx context.Context, postID int64, totalScore float64, category string, authorID int64) error

	// IncrTrending adds delta to the post's trending score.
	IncrTrending(ctx context.Context, postID int64, delta float64) error

	// Remove deletes the post from all facets it appears in.
	Remove(ctx context.Context, postID int64, category string, authorID int64) error

	// MoveCategory removes the post from oldCategory's facet and writes it
	// into newCategory's facet with the given score.
	MoveCategory(ctx context.Context, postID int64, oldCategory, newCategory string, totalScore float64) error

	// Top returns up to limit posts from the facet, highest score first.
	Top(ctx context.Context, facet Facet, limit int) ([]RankedPost, error)

	// Clear drops every facet. Used before a rebuild.
	Clear(ctx context.Context) error
}
