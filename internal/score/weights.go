package score

import (
	"fmt"
	"log/slog"

	"github.com/studysync/feedrank/internal/event"
)

// Weights defines the contribution of each interaction counter to the total
// score. Values come from configuration, not from code.
type Weights struct {
	Like    float64 `koanf:"like"`    // Weight per like (default: 1.0)
	Comment float64 `koanf:"comment"` // Weight per comment (default: 2.0)
	Share   float64 `koanf:"share"`   // Weight per share (default: 3.0)
	View    float64 `koanf:"view"`    // Weight per view (default: 0.1)
}

// DefaultWeights returns the default scoring weight configuration.
//
// Formula: total = like*1.0 + comment*2.0 + share*3.0 + view*0.1 + bookmark*3.0
//   - Comments and shares signal stronger engagement than likes
//   - Views are cheap and weighted accordingly
func DefaultWeights() Weights {
	return Weights{
		Like:    1.0,
		Comment: 2.0,
		Share:   3.0,
		View:    0.1,
	}
}

// Merge overlays non-zero values from override onto base, allowing partial
// weight overrides in configuration files.
func Merge(base, override Weights) Weights {
	result := base
	if override.Like != 0 {
		result.Like = override.Like
	}
	if override.Comment != 0 {
		result.Comment = override.Comment
	}
	if override.Share != 0 {
		result.Share = override.Share
	}
	if override.View != 0 {
		result.View = override.View
	}
	return result
}

// Total computes the weighted total score for a record's current counters.
//
// Bookmarks reuse the share weight. This mirrors the upstream scoring
// formula exactly; flagged for confirmation before introducing a dedicated
// bookmark weight.
func (w Weights) Total(r *Record) float64 {
	return float64(r.LikeCount)*w.Like +
		float64(r.CommentCount)*w.Comment +
		float64(r.ShareCount)*w.Share +
		float64(r.ViewCount)*w.View +
		float64(r.BookmarkCount)*w.Share
}

// Delta returns the signed score contribution of one interaction of the
// given type. UNLIKE subtracts the like weight; CLICK contributes nothing.
func (w Weights) Delta(t event.InteractionType) float64 {
	switch t {
	case event.InteractionLike:
		return w.Like
	case event.InteractionUnlike:
		return -w.Like
	case event.InteractionComment:
		return w.Comment
	case event.InteractionShare:
		return w.Share
	case event.InteractionView:
		return w.View
	case event.InteractionBookmark:
		return w.Share
	}
	return 0
}

// LogSummary logs the active weights at INFO level for startup diagnostics.
func (w Weights) LogSummary(logger *slog.Logger) {
	logger.Info("scoring weights loaded",
		"like", fmt.Sprintf("%.2f", w.Like),
		"comment", fmt.Sprintf("%.2f", w.Comment),
		"share", fmt.Sprintf("%.2f", w.Share),
		"view", fmt.Sprintf("%.2f", w.View),
		"bookmark", fmt.Sprintf("%.2f (reuses share)", w.Share),
	)
}
