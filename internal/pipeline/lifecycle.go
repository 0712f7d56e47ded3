package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studysync/feedrank/internal/dedup"
	"github.com/studysync/feedrank/internal/event"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/score"
)

// LifecycleHandler applies post lifecycle events: creation and publication
// initialize score records, updates re-home category facets, deletion and
// unpublication remove the post everywhere.
type LifecycleHandler struct {
	engine   *score.Engine
	rankings *ranking.Service
	logger   *slog.Logger
}

// NewLifecycleHandler creates the handler for the lifecycle stream.
func NewLifecycleHandler(engine *score.Engine, rankings *ranking.Service, logger *slog.Logger) *LifecycleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleHandler{
		engine:   engine,
		rankings: rankings,
		logger:   logger,
	}
}

// Name identifies the handler.
func (h *LifecycleHandler) Name() string { return "lifecycle" }

// Decode parses and validates a lifecycle event.
func (h *LifecycleHandler) Decode(data []byte) (any, error) {
	ev, err := event.DecodeLifecycle(data)
	if err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// EventID returns the explicit eventId when present, otherwise a
// deterministic derivation from the event fields.
func (h *LifecycleHandler) EventID(v any) string {
	ev := v.(*event.LifecycleEvent)
	if ev.EventID != "" {
		return ev.EventID
	}
	return dedup.DeriveLifecycleID(ev.EventType, ev.PostID, ev.Timestamp)
}

// Process applies one lifecycle event. Unknown event types are acknowledged
// as a no-op so new upstream types never wedge the stream.
func (h *LifecycleHandler) Process(ctx context.Context, v any) error {
	ev := v.(*event.LifecycleEvent)

	switch {
	case ev.IsCreation():
		rec, err := h.engine.Initialize(ctx, ev.PostID, ev.AuthorID, ev.Category())
		if err != nil {
			return fmt.Errorf("failed to initialize score record: %w", err)
		}
		h.syncRanking(ctx, rec)

	case ev.Type() == event.LifecycleUpdated:
		rec, oldCategory, err := h.engine.UpdateMetadata(ctx, ev.PostID, ev.AuthorID, ev.Category())
		if err != nil {
			return fmt.Errorf("failed to update score metadata: %w", err)
		}
		if err := h.rankings.ChangeCategory(ctx, rec, oldCategory); err != nil {
			h.logger.Warn("failed to move post between category rankings",
				slog.Int64("post_id", rec.PostID),
				slog.String("error", err.Error()))
		}
		h.syncRanking(ctx, rec)

	case ev.IsDeletion():
		rec, err := h.engine.Remove(ctx, ev.PostID)
		if err != nil {
			return fmt.Errorf("failed to remove score record: %w", err)
		}
		if rec != nil {
			if err := h.rankings.Remove(ctx, rec); err != nil {
				h.logger.Warn("failed to remove post from rankings",
					slog.Int64("post_id", rec.PostID),
					slog.String("error", err.Error()))
			}
		}

	default:
		h.logger.Info("ignoring unknown lifecycle event type",
			slog.String("event_type", ev.EventType),
			slog.Int64("post_id", ev.PostID))
	}
	return nil
}

func (h *LifecycleHandler) syncRanking(ctx context.Context, rec *score.Record) {
	if err := h.rankings.Sync(ctx, rec); err != nil {
		h.logger.Warn("failed to sync ranking index",
			slog.Int64("post_id", rec.PostID),
			slog.String("error", err.Error()))
	}
}
