package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is an in-memory Guard for tests and single-process setups.
// Expired markers are pruned lazily on access.
type MemoryGuard struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewMemoryGuard creates an in-memory guard. A non-positive retention falls
// back to DefaultRetention.
func NewMemoryGuard(retention time.Duration) *MemoryGuard {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryGuard{
		seen:      make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// Seen reports whether eventID was marked within the retention window.
func (g *MemoryGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	expiry, ok := g.seen[eventID]
	if !ok {
		return false, nil
	}
	if g.now().After(expiry) {
		delete(g.seen, eventID)
		return false, nil
	}
	return true, nil
}

// Mark records eventID as processed.
func (g *MemoryGuard) Mark(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[eventID] = g.now().Add(g.retention)
	return nil
}
