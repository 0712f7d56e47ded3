package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studysync/feedrank/internal/middleware"
)

// Handlers bundles the handler sets the router mounts.
type Handlers struct {
	Interactions    *InteractionHandlers
	Recommendations *RecommendationHandlers
	Rankings        *RankingHandlers
	DeadLetters     *DeadLetterHandlers
	Health          *HealthHandlers
	Metrics         http.Handler
	// Auth guards the write and admin endpoints; nil means open.
	Auth func(http.Handler) http.Handler
}

// NewRouter builds the API route table.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	guard := h.Auth
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}

	// Write path and stats.
	mux.Handle("POST /api/v1/interactions", guard(http.HandlerFunc(h.Interactions.CreateInteraction)))
	mux.HandleFunc("GET /api/v1/interactions/user/{id}/stats", h.Interactions.UserStats)
	mux.HandleFunc("GET /api/v1/interactions/post/{id}/stats", h.Interactions.PostStats)

	// Recommendations.
	mux.HandleFunc("GET /api/v1/recommendations/user/{id}", h.Recommendations.GetRecommendations)
	mux.Handle("POST /api/v1/recommendations/user/{id}/generate", guard(http.HandlerFunc(h.Recommendations.Generate)))
	mux.HandleFunc("GET /api/v1/recommendations/trending", h.Recommendations.Trending)

	// Rankings.
	mux.HandleFunc("GET /api/v1/rankings/top", h.Rankings.Top)
	mux.HandleFunc("POST /api/v1/rankings/rebuild", h.Rankings.Rebuild)

	// Dead-letter observability.
	mux.HandleFunc("GET /api/v1/deadletters/watch", h.DeadLetters.Watch)

	// Probes and metrics.
	mux.HandleFunc("GET /health", h.Health.Health)
	mux.HandleFunc("GET /ready", h.Health.Ready)
	if h.Metrics == nil {
		h.Metrics = promhttp.Handler()
	}
	mux.Handle("GET /metrics", h.Metrics)

	// Root service descriptor; everything else is a structured 404.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{
			"service": "feedrank-api",
			"version": "0.1.0",
		})
	})

	return mux
}
