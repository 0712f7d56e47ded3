package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces processed-event markers in Redis.
const keyPrefix = "processed_event:"

// RedisGuard implements Guard on Redis with TTL-based retention.
type RedisGuard struct {
	client    *redis.Client
	retention time.Duration
	logger    *slog.Logger
}

// NewRedisGuard creates a Redis-backed guard. A non-positive retention falls
// back to DefaultRetention.
func NewRedisGuard(client *redis.Client, retention time.Duration, logger *slog.Logger) *RedisGuard {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisGuard{
		client:    client,
		retention: retention,
		logger:    logger,
	}
}

// Seen reports whether eventID was marked within the retention window.
// Redis errors fail open: the event is treated as unseen and processed.
func (g *RedisGuard) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := g.client.Exists(ctx, keyPrefix+eventID).Result()
	if err != nil {
		g.logger.Warn("dedup check failed, processing event anyway",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()))
		return false, nil
	}
	return n > 0, nil
}

// Mark records eventID as processed with the retention TTL. Redis errors are
// logged and swallowed; losing a marker means at worst one extra reprocess.
func (g *RedisGuard) Mark(ctx context.Context, eventID string) error {
	if err := g.client.Set(ctx, keyPrefix+eventID, "1", g.retention).Err(); err != nil {
		g.logger.Warn("failed to mark event as processed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()))
	}
	return nil
}
