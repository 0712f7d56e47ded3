package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/studysync/feedrank/internal/middleware"
	"github.com/studysync/feedrank/internal/ranking"
)

// RankingHandlers serves ranking reads and the rebuild recovery operation.
type RankingHandlers struct {
	rankings   *ranking.Service
	adminToken string
	logger     *slog.Logger
}

// NewRankingHandlers creates the ranking handler set. When adminToken is
// empty the rebuild endpoint is open; otherwise callers must present it as
// a bearer token.
func NewRankingHandlers(rankings *ranking.Service, adminToken string, logger *slog.Logger) *RankingHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RankingHandlers{
		rankings:   rankings,
		adminToken: adminToken,
		logger:     logger,
	}
}

// Top handles GET /api/v1/rankings/top?facet=global|trending&category=...&author=...&limit=N.
func (h *RankingHandlers) Top(w http.ResponseWriter, r *http.Request) {
	facet, ok := h.parseFacet(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r, 10)

	ranked, err := h.rankings.Top(r.Context(), facet, limit)
	if err != nil {
		h.logger.Error("failed to load ranking",
			slog.String("facet", facet.String()),
			slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load ranking")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"facet": facet.String(),
		"posts": ranked,
	})
}

// parseFacet resolves the requested facet from query parameters.
func (h *RankingHandlers) parseFacet(w http.ResponseWriter, r *http.Request) (ranking.Facet, bool) {
	query := r.URL.Query()
	if category := query.Get("category"); category != "" {
		return ranking.Category(category), true
	}
	if author := query.Get("author"); author != "" {
		authorID, err := strconv.ParseInt(author, 10, 64)
		if err != nil || authorID <= 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid author id")
			return ranking.Facet{}, false
		}
		return ranking.Author(authorID), true
	}

	switch query.Get("facet") {
	case "", "global":
		return ranking.Global(), true
	case "trending":
		return ranking.Trending(), true
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidFacet)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidFacet,
			"Unknown facet: "+query.Get("facet"))
		return ranking.Facet{}, false
	}
}

// Rebuild handles POST /api/v1/rankings/rebuild. It clears the index and
// replays every durable score record into it.
func (h *RankingHandlers) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.adminToken != "" {
		token := bearerToken(r)
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Invalid admin token")
			return
		}
	}

	count, err := h.rankings.Rebuild(r.Context())
	if err != nil {
		h.logger.Error("ranking rebuild failed", slog.String("error", err.Error()))
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Ranking rebuild failed")
		return
	}

	h.logger.Info("ranking index rebuilt", slog.Int("posts", count))
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "rebuilt",
		"posts":  count,
	})
}

// bearerToken extracts the bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
