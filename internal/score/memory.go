package score

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]*Record
}

// NewMemoryStore creates an empty in-memory score store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]*Record),
	}
}

// Get retrieves the score record for a post.
func (s *MemoryStore) Get(ctx context.Context, postID int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[postID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Save inserts or fully replaces a score record.
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	stored := rec.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.LastUpdated = now
	s.records[stored.PostID] = stored
	return nil
}

// Delete removes the score record for a post.
func (s *MemoryStore) Delete(ctx context.Context, postID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, postID)
	return nil
}

// Update atomically applies fn to the record for postID, creating a zeroed
// record first when none exists. The store mutex serializes all updates.
func (s *MemoryStore) Update(ctx context.Context, postID int64, fn func(rec *Record) error) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Mutate a detached copy so a failing fn leaves the store untouched
	// (no phantom zeroed records, no partial mutations).
	var rec *Record
	if stored, ok := s.records[postID]; ok {
		rec = stored.Clone()
	} else {
		now := time.Now().UTC()
		rec = &Record{PostID: postID, CreatedAt: now, LastUpdated: now}
	}

	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.LastUpdated = time.Now().UTC()
	s.records[postID] = rec
	return rec.Clone(), nil
}

// TopByScore returns up to limit records ordered by total score descending.
func (s *MemoryStore) TopByScore(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := s.sortedLocked()
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]*Record, len(sorted))
	for i, rec := range sorted {
		out[i] = rec.Clone()
	}
	return out, nil
}

// TopIDsByScore returns up to limit post IDs ordered by total score descending.
func (s *MemoryStore) TopIDsByScore(ctx context.Context, limit int) ([]int64, error) {
	return s.filteredIDs(limit, func(*Record) bool { return true })
}

// TopIDsByCategory returns up to limit post IDs in a category ordered by
// total score descending.
func (s *MemoryStore) TopIDsByCategory(ctx context.Context, category string, limit int) ([]int64, error) {
	return s.filteredIDs(limit, func(rec *Record) bool { return rec.Category == category })
}

// TopIDsByAuthor returns up to limit post IDs by an author ordered by total
// score descending.
func (s *MemoryStore) TopIDsByAuthor(ctx context.Context, authorID int64, limit int) ([]int64, error) {
	return s.filteredIDs(limit, func(rec *Record) bool { return rec.AuthorID == authorID })
}

// All returns every score record ordered by post ID.
func (s *MemoryStore) All(ctx context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	return out, nil
}

func (s *MemoryStore) filteredIDs(limit int, keep func(*Record) bool) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, rec := range s.sortedLocked() {
		if !keep(rec) {
			continue
		}
		ids = append(ids, rec.PostID)
		if limit >= 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// sortedLocked returns records ordered by total score descending with
// post ID ascending on ties. Caller must hold the mutex.
func (s *MemoryStore) sortedLocked() []*Record {
	sorted := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		sorted = append(sorted, rec)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TotalScore != sorted[j].TotalScore {
			return sorted[i].TotalScore > sorted[j].TotalScore
		}
		return sorted[i].PostID < sorted[j].PostID
	})
	return sorted
}
