package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/studysync/feedrank/internal/event"
	"github.com/studysync/feedrank/internal/interaction"
	"github.com/studysync/feedrank/internal/preference"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/score"
)

type interactionFixture struct {
	handler      *InteractionHandler
	scores       *score.MemoryStore
	interactions *interaction.MemoryStore
	preferences  *preference.MemoryStore
	index        *ranking.MemoryIndex
}

func newInteractionFixture(t *testing.T) *interactionFixture {
	t.Helper()
	scores := score.NewMemoryStore()
	interactions := interaction.NewMemoryStore()
	preferences := preference.NewMemoryStore()
	index := ranking.NewMemoryIndex()
	engine := score.NewEngine(scores, score.DefaultWeights(), nil)
	rankings := ranking.NewService(index, scores, nil)
	return &interactionFixture{
		handler:      NewInteractionHandler(interactions, engine, rankings, preferences, nil),
		scores:       scores,
		interactions: interactions,
		preferences:  preferences,
		index:        index,
	}
}

func interactionPayload(t *testing.T, userID, postID int64, typ event.InteractionType, metadata map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(event.InteractionEvent{
		UserID:          userID,
		PostID:          postID,
		InteractionType: typ,
		Timestamp:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Metadata:        metadata,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestInteractionHandlerDecode(t *testing.T) {
	f := newInteractionFixture(t)

	t.Run("valid payload", func(t *testing.T) {
		ev, err := f.handler.Decode(interactionPayload(t, 1, 2, event.InteractionLike, nil))
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if ev.(*event.InteractionEvent).PostID != 2 {
			t.Errorf("Decode() = %+v", ev)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := f.handler.Decode([]byte("{not json")); err == nil {
			t.Error("Decode() error = nil, want error")
		}
	})

	t.Run("unknown interaction type", func(t *testing.T) {
		if _, err := f.handler.Decode(interactionPayload(t, 1, 2, "UPVOTE", nil)); err == nil {
			t.Error("Decode() error = nil, want error")
		}
	})

	t.Run("missing user id", func(t *testing.T) {
		if _, err := f.handler.Decode(interactionPayload(t, 0, 2, event.InteractionLike, nil)); err == nil {
			t.Error("Decode() error = nil, want error")
		}
	})
}

func TestInteractionHandlerEventID(t *testing.T) {
	f := newInteractionFixture(t)

	withExplicit, _ := f.handler.Decode(interactionPayload(t, 1, 2, event.InteractionLike,
		map[string]any{"eventId": "explicit-id"}))
	if id := f.handler.EventID(withExplicit); id != "explicit-id" {
		t.Errorf("EventID() = %q, want explicit-id", id)
	}

	derived, _ := f.handler.Decode(interactionPayload(t, 1, 2, event.InteractionLike, nil))
	id := f.handler.EventID(derived)
	if id == "" || id == "explicit-id" {
		t.Errorf("EventID() = %q, want derived hash", id)
	}
	// Derivation is stable for identical events.
	if again := f.handler.EventID(derived); again != id {
		t.Errorf("EventID() unstable: %q vs %q", id, again)
	}
}

func TestInteractionHandlerProcess(t *testing.T) {
	f := newInteractionFixture(t)
	ctx := context.Background()

	ev, _ := f.handler.Decode(interactionPayload(t, 1, 42, event.InteractionShare,
		map[string]any{"category": "golang"}))
	if err := f.handler.Process(ctx, ev); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// Score record updated.
	rec, err := f.scores.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.ShareCount != 1 || rec.TotalScore != 3.0 || rec.Category != "golang" {
		t.Errorf("score record = %+v", rec)
	}

	// History row recorded.
	stats, _ := f.interactions.StatsForUser(ctx, 1)
	if stats.Total != 1 || stats.ByType[event.InteractionShare] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// Ranking synced and trending bumped by the share weight.
	top, _ := f.index.Top(ctx, ranking.Global(), 10)
	if len(top) != 1 || top[0].PostID != 42 || top[0].Score != 3.0 {
		t.Errorf("global ranking = %v", top)
	}
	trending, _ := f.index.Top(ctx, ranking.Trending(), 10)
	if len(trending) != 1 || trending[0].Score != 3.0 {
		t.Errorf("trending = %v", trending)
	}

	// Preference nudged for the category.
	pref, _ := f.preferences.Get(ctx, 1, "golang")
	if pref == nil || pref.Score != 0.15 {
		t.Errorf("preference = %+v", pref)
	}
}

func TestInteractionHandlerProcessClick(t *testing.T) {
	// CLICK leaves scores and rankings alone but still lands in history.
	f := newInteractionFixture(t)
	ctx := context.Background()

	ev, _ := f.handler.Decode(interactionPayload(t, 1, 42, event.InteractionClick, nil))
	if err := f.handler.Process(ctx, ev); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if _, err := f.scores.Get(ctx, 42); err != score.ErrNotFound {
		t.Errorf("score record created for click: err = %v", err)
	}
	stats, _ := f.interactions.StatsForUser(ctx, 1)
	if stats.Total != 1 {
		t.Errorf("stats = %+v, want click in history", stats)
	}
}

func TestInteractionHandlerUnlikeLowersTrending(t *testing.T) {
	f := newInteractionFixture(t)
	ctx := context.Background()

	like, _ := f.handler.Decode(interactionPayload(t, 1, 7, event.InteractionLike, nil))
	if err := f.handler.Process(ctx, like); err != nil {
		t.Fatalf("Process(like) error = %v", err)
	}
	unlike, _ := f.handler.Decode(interactionPayload(t, 1, 7, event.InteractionUnlike, nil))
	if err := f.handler.Process(ctx, unlike); err != nil {
		t.Fatalf("Process(unlike) error = %v", err)
	}

	trending, _ := f.index.Top(ctx, ranking.Trending(), 10)
	if len(trending) != 1 || trending[0].Score != 0 {
		t.Errorf("trending = %v, want net zero after like+unlike", trending)
	}
}
