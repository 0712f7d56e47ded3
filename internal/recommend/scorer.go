// Package recommend generates personalized post recommendations from the
// ranking index, score records, interaction history, and category affinities.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/studysync/feedrank/internal/event"
	"github.com/studysync/feedrank/internal/interaction"
	"github.com/studysync/feedrank/internal/preference"
	"github.com/studysync/feedrank/internal/ranking"
	"github.com/studysync/feedrank/internal/score"
)

// Algorithm tags the recommendation events this scorer produces.
const Algorithm = "collaborative-content-hybrid"

// excludedTypes are the interaction types that mark a post as already
// consumed. Posts the user liked, viewed, or commented on are never
// recommended again, no matter how high they rank.
var excludedTypes = []event.InteractionType{
	event.InteractionLike,
	event.InteractionView,
	event.InteractionComment,
}

// Config holds the scorer's tuning knobs.
type Config struct {
	// MaxRecommendations is the list length N. The candidate pool fetched
	// from the ranking index is 2N.
	MaxRecommendations int `koanf:"max_recommendations"`
	// DecayFactor is the per-day multiplicative recency decay, in (0,1].
	DecayFactor float64 `koanf:"decay_factor"`
	// PreferenceLimit caps how many of the user's top category affinities
	// feed the boost.
	PreferenceLimit int           `koanf:"preference_limit"`
	CacheTTL        time.Duration `koanf:"cache_ttl"`
	// GenerateTimeout bounds one asynchronous generate-and-publish pass.
	GenerateTimeout time.Duration `koanf:"generate_timeout"`
}

// DefaultConfig returns the default scorer settings.
func DefaultConfig() Config {
	return Config{
		MaxRecommendations: 10,
		DecayFactor:        0.95,
		PreferenceLimit:    5,
		CacheTTL:           DefaultCacheTTL,
		GenerateTimeout:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRecommendations <= 0 {
		c.MaxRecommendations = d.MaxRecommendations
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		c.DecayFactor = d.DecayFactor
	}
	if c.PreferenceLimit <= 0 {
		c.PreferenceLimit = d.PreferenceLimit
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = d.GenerateTimeout
	}
	return c
}

// Publisher emits generated recommendation sets downstream.
type Publisher interface {
	PublishRecommendations(ctx context.Context, ev *event.RecommendationEvent) error
}

// Scorer produces personalized ranked lists. Results are cached per user
// for a short TTL; generation failures in the async path are logged and
// never surface to the caller that triggered them.
type Scorer struct {
	rankings     *ranking.Service
	scores       score.Store
	interactions interaction.Store
	preferences  preference.Store
	publisher    Publisher
	cache        *cache
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time
}

// NewScorer creates a scorer. publisher may be nil when nothing downstream
// consumes recommendation events.
func NewScorer(
	rankings *ranking.Service,
	scores score.Store,
	interactions interaction.Store,
	preferences preference.Store,
	publisher Publisher,
	cfg Config,
	logger *slog.Logger,
) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Scorer{
		rankings:     rankings,
		scores:       scores,
		interactions: interactions,
		preferences:  preferences,
		publisher:    publisher,
		cache:        newCache(cfg.CacheTTL),
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Recommend returns up to MaxRecommendations posts for the user, best first.
// Cached results are served until their TTL expires.
func (s *Scorer) Recommend(ctx context.Context, userID int64) ([]event.RecommendedPost, error) {
	if cached := s.cache.get(userID); cached != nil {
		return cached, nil
	}

	affinities := s.loadAffinities(ctx, userID)

	seen, err := s.interactions.SeenPostIDs(ctx, userID, excludedTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to load interaction history for user %d: %w", userID, err)
	}
	seenSet := make(map[int64]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	candidates, err := s.rankings.Top(ctx, ranking.Global(), s.cfg.MaxRecommendations*2)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate posts: %w", err)
	}

	recs := make([]event.RecommendedPost, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seenSet[candidate.PostID]; ok {
			continue
		}
		rec, err := s.scores.Get(ctx, candidate.PostID)
		if err != nil {
			if !errors.Is(err, score.ErrNotFound) {
				s.logger.Warn("failed to load score record for candidate",
					slog.Int64("post_id", candidate.PostID),
					slog.String("error", err.Error()))
			}
			continue
		}
		recs = append(recs, s.personalize(rec, affinities))
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].PostID < recs[j].PostID
	})
	if len(recs) > s.cfg.MaxRecommendations {
		recs = recs[:s.cfg.MaxRecommendations]
	}

	s.cache.put(userID, recs)
	s.logger.Info("generated recommendations",
		slog.Int64("user_id", userID),
		slog.Int("count", len(recs)))
	return recs, nil
}

// loadAffinities returns the user's top category affinities keyed by
// category. Preference lookups are a soft dependency; failures degrade to
// unpersonalized scoring.
func (s *Scorer) loadAffinities(ctx context.Context, userID int64) map[string]float64 {
	prefs, err := s.preferences.TopByUser(ctx, userID, s.cfg.PreferenceLimit)
	if err != nil {
		s.logger.Warn("failed to load user preferences",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()))
		return nil
	}
	affinities := make(map[string]float64, len(prefs))
	for _, p := range prefs {
		affinities[p.Category] = p.Score
	}
	return affinities
}

// personalize computes the final score for one candidate:
// totalScore × decay^daysSinceCreated × preferenceBoost.
func (s *Scorer) personalize(rec *score.Record, affinities map[string]float64) event.RecommendedPost {
	decay := 1.0
	if !rec.CreatedAt.IsZero() {
		days := math.Floor(s.now().Sub(rec.CreatedAt).Hours() / 24)
		if days > 0 {
			decay = math.Pow(s.cfg.DecayFactor, days)
		}
	}

	boost := 1.0
	reason := "Popular post"
	var categories []string
	if rec.Category != "" {
		categories = []string{rec.Category}
		if affinity, ok := affinities[rec.Category]; ok && affinity > 0 {
			boost = 1.0 + affinity
			reason = "Matches your interest in " + rec.Category
		}
	}

	return event.RecommendedPost{
		PostID:     rec.PostID,
		Score:      rec.TotalScore * decay * boost,
		Reason:     reason,
		Categories: categories,
	}
}

// GenerateAndPublish regenerates the user's recommendations in the
// background and publishes the result. It is fire-and-forget: the caller
// gets no completion signal and failures are only logged.
func (s *Scorer) GenerateAndPublish(userID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GenerateTimeout)
		defer cancel()

		recs, err := s.Recommend(ctx, userID)
		if err != nil {
			s.logger.Error("failed to generate recommendations",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()))
			return
		}
		if s.publisher == nil {
			return
		}
		ev := &event.RecommendationEvent{
			UserID:          userID,
			Recommendations: recs,
			Algorithm:       Algorithm,
			GeneratedAt:     s.now().UTC(),
		}
		if err := s.publisher.PublishRecommendations(ctx, ev); err != nil {
			s.logger.Error("failed to publish recommendations",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()))
		}
	}()
}
