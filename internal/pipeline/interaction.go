package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studysync/feedrank/internal/dedup"
	"github.com/studysync/feedrank/internal/event"
	"github.com/studysync/feedrank/internal/interaction"
	"github.com/studysync/feedrank/internal/preference"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/score"
)

// InteractionHandler applies interaction events: history row, score delta,
// ranking sync, trending bump, preference update.
//
// The durable writes (history, score) gate acknowledgement; ranking and
// preference updates are derived or advisory state and fail open.
type InteractionHandler struct {
	interactions interaction.Store
	engine       *score.Engine
	rankings     *ranking.Service
	preferences  preference.Store
	logger       *slog.Logger
}

// NewInteractionHandler creates the handler for the interaction stream.
func NewInteractionHandler(
	interactions interaction.Store,
	engine *score.Engine,
	rankings *ranking.Service,
	preferences preference.Store,
	logger *slog.Logger,
) *InteractionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InteractionHandler{
		interactions: interactions,
		engine:       engine,
		rankings:     rankings,
		preferences:  preferences,
		logger:       logger,
	}
}

// Name identifies the handler.
func (h *InteractionHandler) Name() string { return "interaction" }

// Decode parses and validates an interaction event.
func (h *InteractionHandler) Decode(data []byte) (any, error) {
	ev, err := event.DecodeInteraction(data)
	if err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// EventID returns the explicit eventId from metadata when present, otherwise
// a deterministic derivation from the event fields.
func (h *InteractionHandler) EventID(v any) string {
	ev := v.(*event.InteractionEvent)
	if id := ev.ExplicitEventID(); id != "" {
		return id
	}
	return dedup.DeriveInteractionID(ev.UserID, ev.PostID, string(ev.InteractionType), ev.Timestamp)
}

// Process applies one interaction event.
func (h *InteractionHandler) Process(ctx context.Context, v any) error {
	ev := v.(*event.InteractionEvent)

	if err := h.interactions.Record(ctx, interaction.FromEvent(ev)); err != nil {
		return fmt.Errorf("failed to record interaction history: %w", err)
	}

	rec, err := h.engine.Apply(ctx, ev)
	if err != nil {
		return fmt.Errorf("failed to apply score update: %w", err)
	}

	// rec is nil for types with no score effect (CLICK).
	if rec != nil {
		if err := h.rankings.Sync(ctx, rec); err != nil {
			h.logger.Warn("failed to sync ranking index",
				slog.Int64("post_id", rec.PostID),
				slog.String("error", err.Error()))
		}
		delta := h.engine.Weights().Delta(ev.InteractionType)
		if err := h.rankings.BumpTrending(ctx, rec.PostID, delta); err != nil {
			h.logger.Warn("failed to bump trending score",
				slog.Int64("post_id", rec.PostID),
				slog.String("error", err.Error()))
		}
	}

	if err := h.preferences.Apply(ctx, ev.UserID, ev.Category(), ev.InteractionType); err != nil {
		h.logger.Warn("failed to update user preference",
			slog.Int64("user_id", ev.UserID),
			slog.String("error", err.Error()))
	}
	return nil
}
