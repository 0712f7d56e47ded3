package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/studysync/feedrank/internal/dedup"
	"github.com/studysync/feedrank/internal/event"
	"github.com/studysync/feedrank/internal/interaction"
	"github.com/studysync/feedrank/internal/middleware"
	"github.com/studysync/feedrank/internal/preference"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/recommend"
	"github.com/studysync/feedrank/internal/score"
)

// InteractionPublisher republishes recorded interactions for downstream
// consumers.
type InteractionPublisher interface {
	PublishInteraction(ctx context.Context, ev *event.InteractionEvent, eventID string) error
}

// CreateInteractionRequest is the request body for recording an interaction.
type CreateInteractionRequest struct {
	UserID          int64          `json:"userId"`
	PostID          int64          `json:"postId"`
	InteractionType string         `json:"interactionType"`
	Category        string         `json:"category,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// InteractionHandlers serves the write entry point and interaction stats.
type InteractionHandlers struct {
	interactions interaction.Store
	engine       *score.Engine
	rankings     *ranking.Service
	preferences  preference.Store
	guard        dedup.Guard
	publisher    InteractionPublisher
	scorer       *recommend.Scorer
	logger       *slog.Logger
}

// NewInteractionHandlers creates the interaction handler set. publisher and
// scorer may be nil; the corresponding steps are then skipped.
func NewInteractionHandlers(
	interactions interaction.Store,
	engine *score.Engine,
	rankings *ranking.Service,
	preferences preference.Store,
	guard dedup.Guard,
	publisher InteractionPublisher,
	scorer *recommend.Scorer,
	logger *slog.Logger,
) *InteractionHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &InteractionHandlers{
		interactions: interactions,
		engine:       engine,
		rankings:     rankings,
		preferences:  preferences,
		guard:        guard,
		publisher:    publisher,
		scorer:       scorer,
		logger:       logger,
	}
}

// CreateInteraction handles POST /api/v1/interactions. This is the single
// synchronous write path: persist the interaction, apply the score delta,
// sync rankings and preferences, mark the event processed, republish it for
// other consumers, and trigger async recommendation regeneration. Only the
// durable writes can fail the request; everything downstream is best-effort.
func (h *InteractionHandlers) CreateInteraction(w http.ResponseWriter, r *http.Request) {
	var req CreateInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	typ := event.InteractionType(req.InteractionType)
	if !typ.Valid() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidInteraction)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidInteraction,
			"Unknown interaction type: "+req.InteractionType)
		return
	}
	if req.UserID <= 0 || req.PostID <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation,
			"userId and postId must be positive")
		return
	}

	metadata := req.Metadata
	if req.Category != "" {
		if metadata == nil {
			metadata = make(map[string]any, 1)
		}
		metadata["category"] = req.Category
	}
	ev := &event.InteractionEvent{
		UserID:          req.UserID,
		PostID:          req.PostID,
		InteractionType: typ,
		Timestamp:       time.Now().UTC(),
		Metadata:        metadata,
	}

	ctx := r.Context()
	in := interaction.FromEvent(ev)
	if err := h.interactions.Record(ctx, in); err != nil {
		h.logger.Error("failed to record interaction", slog.String("error", err.Error()))
		errCtx := middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, errCtx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record interaction")
		return
	}

	rec, err := h.engine.Apply(ctx, ev)
	if err != nil {
		h.logger.Error("failed to apply score update", slog.String("error", err.Error()))
		errCtx := middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, errCtx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update score")
		return
	}

	// Ranking and preference sync are cache-layer concerns; failures degrade
	// to a stale index, not a failed request.
	if rec != nil {
		if err := h.rankings.Sync(ctx, rec); err != nil {
			h.logger.Warn("ranking sync failed", slog.String("error", err.Error()))
		}
		if delta := h.engine.Weights().Delta(typ); delta != 0 {
			if err := h.rankings.BumpTrending(ctx, rec.PostID, delta); err != nil {
				h.logger.Warn("trending bump failed", slog.String("error", err.Error()))
			}
		}
	}
	if category := ev.Category(); category != "" {
		if err := h.preferences.Apply(ctx, ev.UserID, category, typ); err != nil {
			h.logger.Warn("preference update failed", slog.String("error", err.Error()))
		}
	}

	// Mark the event processed so the consumer skips the republished copy.
	eventID := eventIDFor(ev)
	if h.guard != nil {
		if err := h.guard.Mark(ctx, eventID); err != nil {
			h.logger.Warn("failed to mark event processed", slog.String("error", err.Error()))
		}
	}
	if h.publisher != nil {
		if err := h.publisher.PublishInteraction(ctx, ev, eventID); err != nil {
			h.logger.Warn("failed to republish interaction event", slog.String("error", err.Error()))
		}
	}
	if h.scorer != nil {
		h.scorer.GenerateAndPublish(ev.UserID)
	}

	WriteJSON(w, http.StatusCreated, in)
}

func eventIDFor(ev *event.InteractionEvent) string {
	if id := ev.ExplicitEventID(); id != "" {
		return id
	}
	return dedup.DeriveInteractionID(ev.UserID, ev.PostID, string(ev.InteractionType), ev.Timestamp)
}

// UserStats handles GET /api/v1/interactions/user/{id}/stats.
func (h *InteractionHandlers) UserStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	stats, err := h.interactions.StatsForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load user stats", slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load user stats")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"userId":               stats.UserID,
		"totalInteractions":    stats.Total,
		"interactionBreakdown": stats.ByType,
	})
}

// PostStats handles GET /api/v1/interactions/post/{id}/stats. A post with
// no score record yields "no data", not an error.
func (h *InteractionHandlers) PostStats(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	rec, err := h.engine.Store().Get(r.Context(), postID)
	if err != nil {
		if errors.Is(err, score.ErrNotFound) {
			WriteJSON(w, http.StatusOK, map[string]any{
				"postId":     postID,
				"engagement": "No data available",
			})
			return
		}
		h.logger.Error("failed to load post stats", slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load post stats")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"postId":      rec.PostID,
		"totalScore":  rec.TotalScore,
		"likes":       rec.LikeCount,
		"comments":    rec.CommentCount,
		"shares":      rec.ShareCount,
		"views":       rec.ViewCount,
		"bookmarks":   rec.BookmarkCount,
		"lastUpdated": rec.LastUpdated,
	})
}

// pathID parses a positive int64 path parameter, writing a validation error
// on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid id in path")
		return 0, false
	}
	return id, true
}
