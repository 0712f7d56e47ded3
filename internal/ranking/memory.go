package ranking

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory Index for tests and single-process setups.
type MemoryIndex struct {
	mu     sync.Mutex
	facets map[string]map[int64]float64
}

// NewMemoryIndex creates an empty in-memory ranking index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{facets: make(map[string]map[int64]float64)}
}

func (x *MemoryIndex) setLocked(key string, postID int64, score float64) {
	facet, ok := x.facets[key]
	if !ok {
		facet = make(map[int64]float64)
		x.facets[key] = facet
	}
	facet[postID] = score
}

// SetScore writes the post's score into the global, category, and author facets.
func (x *MemoryIndex) SetScore(ctx context.Context, postID int64, totalScore float64, category string, authorID int64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.setLocked(Global().Key(), postID, totalScore)
	if category != "" {
		x.setLocked(Category(category).Key(), postID, totalScore)
	}
	if authorID > 0 {
		x.setLocked(Author(authorID).Key(), postID, totalScore)
	}
	return nil
}

// IncrTrending adds delta to the post's trending score.
func (x *MemoryIndex) IncrTrending(ctx context.Context, postID int64, delta float64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	key := Trending().Key()
	facet, ok := x.facets[key]
	if !ok {
		facet = make(map[int64]float64)
		x.facets[key] = facet
	}
	facet[postID] += delta
	return nil
}

// Remove deletes the post from all facets it appears in.
func (x *MemoryIndex) Remove(ctx context.Context, postID int64, category string, authorID int64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.facets[Global().Key()], postID)
	delete(x.facets[Trending().Key()], postID)
	if category != "" {
		delete(x.facets[Category(category).Key()], postID)
	}
	if authorID > 0 {
		delete(x.facets[Author(authorID).Key()], postID)
	}
	return nil
}

// MoveCategory moves the post between category facets.
func (x *MemoryIndex) MoveCategory(ctx context.Context, postID int64, oldCategory, newCategory string, totalScore float64) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if oldCategory != "" {
		delete(x.facets[Category(oldCategory).Key()], postID)
	}
	if newCategory != "" {
		x.setLocked(Category(newCategory).Key(), postID, totalScore)
	}
	return nil
}

// Top returns up to limit posts from the facet, highest score first with
// post ID ascending on ties.
func (x *MemoryIndex) Top(ctx context.Context, facet Facet, limit int) ([]RankedPost, error) {
	if limit <= 0 {
		return nil, nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	entries := x.facets[facet.Key()]
	posts := make([]RankedPost, 0, len(entries))
	for id, score := range entries {
		posts = append(posts, RankedPost{PostID: id, Score: score})
	}
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Score != posts[j].Score {
			return posts[i].Score > posts[j].Score
		}
		return posts[i].PostID < posts[j].PostID
	})
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// Clear drops every facet.
func (x *MemoryIndex) Clear(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.facets = make(map[string]map[int64]float64)
	return nil
}
