// Package score maintains the durable per-post engagement score records and
// the engine that applies interaction deltas to them.
package score

import "time"

// Record is the durable score row for one post. It is the source of truth
// for ranking; the fast ranking index is derived from it and can always be
// rebuilt by replaying every record.
type Record struct {
	PostID        int64     `json:"postId"`
	AuthorID      int64     `json:"authorId"`
	Category      string    `json:"category"`
	TotalScore    float64   `json:"totalScore"`
	LikeCount     int       `json:"likeCount"`
	CommentCount  int       `json:"commentCount"`
	ShareCount    int       `json:"shareCount"`
	ViewCount     int       `json:"viewCount"`
	BookmarkCount int       `json:"bookmarkCount"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Clone returns a copy of the record to prevent external mutation.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	copied := *r
	return &copied
}
