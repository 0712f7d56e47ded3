package dedup

import (
	"context"
	"testing"
	"time"
)

func TestDeriveInteractionIDDeterministic(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	a := DeriveInteractionID(1, 2, "LIKE", ts)
	b := DeriveInteractionID(1, 2, "LIKE", ts)
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("ID length = %d, want 64 hex chars", len(a))
	}
}

func TestDeriveInteractionIDFieldBoundaries(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		a    string
		b    string
	}{
		{
			name: "different type",
			a:    DeriveInteractionID(1, 2, "LIKE", ts),
			b:    DeriveInteractionID(1, 2, "VIEW", ts),
		},
		{
			name: "different timestamp",
			a:    DeriveInteractionID(1, 2, "LIKE", ts),
			b:    DeriveInteractionID(1, 2, "LIKE", ts.Add(time.Millisecond)),
		},
		{
			name: "id digits must not bleed across fields",
			a:    DeriveInteractionID(12, 3, "LIKE", ts),
			b:    DeriveInteractionID(1, 23, "LIKE", ts),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a == tt.b {
				t.Errorf("distinct inputs produced the same ID %s", tt.a)
			}
		})
	}
}

func TestDeriveLifecycleID(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	a := DeriveLifecycleID("POST_CREATED", 5, ts)
	b := DeriveLifecycleID("POST_DELETED", 5, ts)
	if a == b {
		t.Errorf("distinct event types produced the same ID")
	}
	if a != DeriveLifecycleID("POST_CREATED", 5, ts) {
		t.Errorf("derivation not deterministic")
	}
}

func TestMemoryGuardSeenMark(t *testing.T) {
	guard := NewMemoryGuard(time.Hour)
	ctx := context.Background()

	seen, err := guard.Seen(ctx, "ev-1")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Error("Seen() = true before Mark")
	}

	if err := guard.Mark(ctx, "ev-1"); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	seen, err = guard.Seen(ctx, "ev-1")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if !seen {
		t.Error("Seen() = false after Mark")
	}

	// A different ID is unaffected.
	if seen, _ := guard.Seen(ctx, "ev-2"); seen {
		t.Error("Seen(other) = true, want false")
	}
}

func TestMemoryGuardRetentionExpiry(t *testing.T) {
	guard := NewMemoryGuard(time.Hour)
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	guard.now = func() time.Time { return current }
	ctx := context.Background()

	if err := guard.Mark(ctx, "ev-1"); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}

	current = current.Add(59 * time.Minute)
	if seen, _ := guard.Seen(ctx, "ev-1"); !seen {
		t.Error("Seen() = false inside retention window")
	}

	current = current.Add(2 * time.Minute)
	if seen, _ := guard.Seen(ctx, "ev-1"); seen {
		t.Error("Seen() = true after retention expired")
	}
}
