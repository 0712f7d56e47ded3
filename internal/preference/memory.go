package preference

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studysync/feedrank/internal/event"
)

type prefKey struct {
	userID   int64
	category string
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[prefKey]*Record
}

// NewMemoryStore creates an empty in-memory preference store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[prefKey]*Record)}
}

// Apply adjusts the user's affinity for a category.
func (s *MemoryStore) Apply(ctx context.Context, userID int64, category string, t event.InteractionType) error {
	delta := Increment(t)
	if delta == 0 || category == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	key := prefKey{userID: userID, category: category}
	rec, ok := s.records[key]
	if !ok {
		rec = &Record{UserID: userID, Category: category, CreatedAt: now}
		s.records[key] = rec
	}
	rec.Score = clamp(rec.Score + delta)
	rec.InteractionCount++
	rec.UpdatedAt = now
	return nil
}

// Get returns the user's affinity for one category, or nil when absent.
func (s *MemoryStore) Get(ctx context.Context, userID int64, category string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[prefKey{userID: userID, category: category}]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

// TopByUser returns the user's affinities ordered by score descending.
func (s *MemoryStore) TopByUser(ctx context.Context, userID int64, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []*Record
	for key, rec := range s.records {
		if key.userID != userID {
			continue
		}
		copied := *rec
		records = append(records, &copied)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].Category < records[j].Category
	})
	if limit >= 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
