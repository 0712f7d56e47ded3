package interaction

import (
	"context"
	"sort"
	"sync"

	"github.com/studysync/feedrank/internal/event"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	rows []*Interaction
}

// NewMemoryStore creates an empty in-memory interaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends one interaction.
func (s *MemoryStore) Record(ctx context.Context, in *Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *in
	s.rows = append(s.rows, &copied)
	return nil
}

// SeenPostIDs returns the distinct post IDs the user has interacted with
// using any of the given types, ordered ascending for determinism.
func (s *MemoryStore) SeenPostIDs(ctx context.Context, userID int64, types []event.InteractionType) ([]int64, error) {
	if len(types) == 0 {
		return nil, nil
	}
	wanted := make(map[event.InteractionType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]bool)
	for _, row := range s.rows {
		if row.UserID == userID && wanted[row.Type] {
			seen[row.PostID] = true
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// StatsForUser returns the user's interaction counts by type.
func (s *MemoryStore) StatsForUser(ctx context.Context, userID int64) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &Stats{UserID: userID, ByType: make(map[event.InteractionType]int)}
	for _, row := range s.rows {
		if row.UserID == userID {
			stats.ByType[row.Type]++
			stats.Total++
		}
	}
	return stats, nil
}

// RecentCategories returns the distinct categories of the user's most recent
// interactions, newest first.
func (s *MemoryStore) RecentCategories(ctx context.Context, userID int64, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := make(map[string]int)
	for i, row := range s.rows {
		if row.UserID != userID || row.Category == "" {
			continue
		}
		// Later rows win; insertion order stands in for created_at since
		// Record appends in arrival order.
		latest[row.Category] = i
	}

	categories := make([]string, 0, len(latest))
	for c := range latest {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		return latest[categories[i]] > latest[categories[j]]
	})
	if limit >= 0 && len(categories) > limit {
		categories = categories[:limit]
	}
	return categories, nil
}
