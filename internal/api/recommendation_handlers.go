package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/studysync/feedrank/internal/event"
	"github.com/studysync/feedrank/internal/hydration"
	"github.com/studysync/feedrank/internal/middleware"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/recommend"
	"github.com/studysync/feedrank/internal/score"
)

// HydratedRecommendation is one recommendation enriched with display
// metadata when the content backend could supply it.
type HydratedRecommendation struct {
	event.RecommendedPost
	Title      string `json:"title,omitempty"`
	AuthorName string `json:"authorName,omitempty"`
}

// RecommendationHandlers serves recommendation and trending reads.
type RecommendationHandlers struct {
	scorer   *recommend.Scorer
	rankings *ranking.Service
	scores   score.Store
	hydrator *hydration.Client
	logger   *slog.Logger
}

// NewRecommendationHandlers creates the recommendation handler set.
// hydrator may be nil; responses then carry IDs and scores only.
func NewRecommendationHandlers(
	scorer *recommend.Scorer,
	rankings *ranking.Service,
	scores score.Store,
	hydrator *hydration.Client,
	logger *slog.Logger,
) *RecommendationHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecommendationHandlers{
		scorer:   scorer,
		rankings: rankings,
		scores:   scores,
		hydrator: hydrator,
		logger:   logger,
	}
}

// GetRecommendations handles GET /api/v1/recommendations/user/{id}.
func (h *RecommendationHandlers) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	recs, err := h.scorer.Recommend(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to generate recommendations",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to generate recommendations")
		return
	}

	WriteJSON(w, http.StatusOK, h.hydrate(r, recs))
}

// hydrate attaches display metadata to each recommendation. Hydration is
// best-effort; missing backend data leaves the extra fields empty.
func (h *RecommendationHandlers) hydrate(r *http.Request, recs []event.RecommendedPost) []HydratedRecommendation {
	out := make([]HydratedRecommendation, len(recs))
	for i, rec := range recs {
		out[i] = HydratedRecommendation{RecommendedPost: rec}
	}
	if h.hydrator == nil || len(recs) == 0 {
		return out
	}

	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.PostID
	}
	posts := h.hydrator.BatchPostInfo(r.Context(), ids)
	for i := range out {
		if post, ok := posts[out[i].PostID]; ok {
			out[i].Title = post.Title
			out[i].AuthorName = post.AuthorName
		}
	}
	return out
}

// Generate handles POST /api/v1/recommendations/user/{id}/generate. The
// work happens asynchronously; the response only acknowledges the trigger.
func (h *RecommendationHandlers) Generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	h.scorer.GenerateAndPublish(userID)
	WriteJSON(w, http.StatusAccepted, map[string]any{
		"status": "generation started",
		"userId": userID,
	})
}

// Trending handles GET /api/v1/recommendations/trending?limit=N.
func (h *RecommendationHandlers) Trending(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 10)

	ranked, err := h.rankings.Top(r.Context(), ranking.Trending(), limit)
	if err != nil {
		h.logger.Error("failed to load trending posts", slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load trending posts")
		return
	}

	// Hydrate trending entries with their score records; entries whose
	// record vanished are dropped rather than failing the read.
	records := make([]*score.Record, 0, len(ranked))
	for _, entry := range ranked {
		rec, err := h.scores.Get(r.Context(), entry.PostID)
		if err != nil {
			if !errors.Is(err, score.ErrNotFound) {
				h.logger.Warn("failed to load score record for trending post",
					slog.Int64("post_id", entry.PostID),
					slog.String("error", err.Error()))
			}
			continue
		}
		records = append(records, rec)
	}

	WriteJSON(w, http.StatusOK, records)
}

// parseLimit reads the limit query parameter, clamped to [1, 100].
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > 100 {
		return 100
	}
	return limit
}
