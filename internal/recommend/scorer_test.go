package recommend

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/studysync/feedrank/internal/event"
	"github.com/studysync/feedrank/internal/interaction"
	"github.com/studysync/feedrank/internal/preference"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/score"
)

type scorerFixture struct {
	scorer       *Scorer
	scores       *score.MemoryStore
	interactions *interaction.MemoryStore
	preferences  *preference.MemoryStore
	publisher    *capturePublisher
	now          time.Time
}

type capturePublisher struct {
	mu     sync.Mutex
	events []*event.RecommendationEvent
	done   chan struct{}
}

func (p *capturePublisher) PublishRecommendations(_ context.Context, ev *event.RecommendationEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	close(p.done)
	return nil
}

func newScorerFixture(t *testing.T, cfg Config) *scorerFixture {
	t.Helper()
	scores := score.NewMemoryStore()
	interactions := interaction.NewMemoryStore()
	preferences := preference.NewMemoryStore()
	rankings := ranking.NewService(ranking.NewMemoryIndex(), scores, nil)
	publisher := &capturePublisher{done: make(chan struct{})}

	scorer := NewScorer(rankings, scores, interactions, preferences, publisher, cfg, nil)
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	scorer.now = func() time.Time { return now }
	scorer.cache.now = scorer.now

	return &scorerFixture{
		scorer:       scorer,
		scores:       scores,
		interactions: interactions,
		preferences:  preferences,
		publisher:    publisher,
		now:          now,
	}
}

// seedPost stores a score record created daysAgo days before the fixture's
// frozen clock.
func (f *scorerFixture) seedPost(t *testing.T, postID int64, total float64, category string, daysAgo int) {
	t.Helper()
	err := f.scores.Save(context.Background(), &score.Record{
		PostID:     postID,
		AuthorID:   1,
		Category:   category,
		TotalScore: total,
		CreatedAt:  f.now.AddDate(0, 0, -daysAgo),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func (f *scorerFixture) recordInteraction(t *testing.T, userID, postID int64, typ event.InteractionType) {
	t.Helper()
	err := f.interactions.Record(context.Background(), interaction.FromEvent(&event.InteractionEvent{
		UserID:          userID,
		PostID:          postID,
		InteractionType: typ,
		Timestamp:       f.now,
	}))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
}

func TestRecommendExcludesConsumedPosts(t *testing.T) {
	f := newScorerFixture(t, Config{})
	ctx := context.Background()

	f.seedPost(t, 1, 100, "golang", 0)
	f.seedPost(t, 2, 50, "golang", 0)
	f.seedPost(t, 3, 25, "golang", 0)
	f.seedPost(t, 4, 10, "golang", 0)

	// Liked, viewed, and commented posts are consumed; shares are not.
	f.recordInteraction(t, 7, 1, event.InteractionLike)
	f.recordInteraction(t, 7, 2, event.InteractionView)
	f.recordInteraction(t, 7, 3, event.InteractionShare)

	recs, err := f.scorer.Recommend(ctx, 7)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(recs), recs)
	}
	if recs[0].PostID != 3 || recs[1].PostID != 4 {
		t.Errorf("order = [%d %d], want [3 4]", recs[0].PostID, recs[1].PostID)
	}
}

func TestRecommendAppliesRecencyDecay(t *testing.T) {
	f := newScorerFixture(t, Config{DecayFactor: 0.5})
	ctx := context.Background()

	// Same raw score; the two-day-old post decays to a quarter.
	f.seedPost(t, 1, 100, "", 2)
	f.seedPost(t, 2, 100, "", 0)

	recs, err := f.scorer.Recommend(ctx, 7)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 2 || recs[0].PostID != 2 {
		t.Fatalf("recs = %v, want fresh post first", recs)
	}
	if recs[0].Score != 100 {
		t.Errorf("fresh score = %v, want 100", recs[0].Score)
	}
	if recs[1].Score != 25 {
		t.Errorf("decayed score = %v, want 25", recs[1].Score)
	}
}

func TestRecommendBoostsPreferredCategory(t *testing.T) {
	f := newScorerFixture(t, Config{})
	ctx := context.Background()

	f.seedPost(t, 1, 100, "history", 0)
	f.seedPost(t, 2, 90, "golang", 0)

	// Build a golang affinity: 0.15 per share.
	for i := 0; i < 2; i++ {
		if err := f.preferences.Apply(ctx, 7, "golang", event.InteractionShare); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	recs, err := f.scorer.Recommend(ctx, 7)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	// 90 × 1.3 = 117 beats the unboosted 100.
	if recs[0].PostID != 2 {
		t.Fatalf("recs = %v, want boosted golang post first", recs)
	}
	if got := recs[0].Score; got < 116.9 || got > 117.1 {
		t.Errorf("boosted score = %v, want 117", got)
	}
	if recs[0].Reason != "Matches your interest in golang" {
		t.Errorf("Reason = %q", recs[0].Reason)
	}
	if recs[1].Reason != "Popular post" {
		t.Errorf("Reason = %q, want Popular post", recs[1].Reason)
	}
	if len(recs[0].Categories) != 1 || recs[0].Categories[0] != "golang" {
		t.Errorf("Categories = %v", recs[0].Categories)
	}
}

func TestRecommendTruncatesToLimit(t *testing.T) {
	f := newScorerFixture(t, Config{MaxRecommendations: 3})
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		f.seedPost(t, i, float64(100-i), "", 0)
	}

	recs, err := f.scorer.Recommend(ctx, 7)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	for i, want := range []int64{1, 2, 3} {
		if recs[i].PostID != want {
			t.Errorf("recs[%d].PostID = %d, want %d", i, recs[i].PostID, want)
		}
	}
}

func TestRecommendCachesPerUser(t *testing.T) {
	f := newScorerFixture(t, Config{})
	ctx := context.Background()

	f.seedPost(t, 1, 10, "", 0)
	first, err := f.scorer.Recommend(ctx, 7)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	// A new high scorer appears, but the cached list is still served.
	f.seedPost(t, 2, 999, "", 0)
	cached, err := f.scorer.Recommend(ctx, 7)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(cached) != len(first) || cached[0].PostID != 1 {
		t.Errorf("cached = %v, want original list", cached)
	}

	// Another user sees the fresh state.
	other, err := f.scorer.Recommend(ctx, 8)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(other) != 2 || other[0].PostID != 2 {
		t.Errorf("other user recs = %v, want fresh list", other)
	}
}

func TestRecommendCacheExpires(t *testing.T) {
	f := newScorerFixture(t, Config{})
	ctx := context.Background()

	f.seedPost(t, 1, 10, "", 0)
	if _, err := f.scorer.Recommend(ctx, 7); err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	f.seedPost(t, 2, 999, "", 0)
	later := f.now.Add(DefaultCacheTTL + time.Second)
	f.scorer.cache.now = func() time.Time { return later }

	recs, err := f.scorer.Recommend(ctx, 7)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) != 2 || recs[0].PostID != 2 {
		t.Errorf("recs after expiry = %v, want regenerated list", recs)
	}
}

func TestGenerateAndPublish(t *testing.T) {
	f := newScorerFixture(t, Config{})
	f.seedPost(t, 1, 10, "golang", 0)

	f.scorer.GenerateAndPublish(7)

	select {
	case <-f.publisher.done:
	case <-time.After(5 * time.Second):
		t.Fatal("recommendation event not published")
	}

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	ev := f.publisher.events[0]
	if ev.UserID != 7 {
		t.Errorf("UserID = %d, want 7", ev.UserID)
	}
	if ev.Algorithm != Algorithm {
		t.Errorf("Algorithm = %q, want %q", ev.Algorithm, Algorithm)
	}
	if len(ev.Recommendations) != 1 || ev.Recommendations[0].PostID != 1 {
		t.Errorf("Recommendations = %v", ev.Recommendations)
	}
	if ev.GeneratedAt.IsZero() {
		t.Error("GeneratedAt is zero")
	}
}
