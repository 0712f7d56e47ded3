package ranking

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// keyPattern matches every ranking key for Clear.
const keyPattern = "post_rankings:*"

// RedisIndex implements Index on Redis sorted sets, one ZSET per facet.
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex creates a Redis-backed ranking index.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func member(postID int64) string {
	return strconv.FormatInt(postID, 10)
}

// SetScore writes the post's score into the global facet plus its category
// and author facets when present. The writes share one pipeline round trip.
func (x *RedisIndex) SetScore(ctx context.Context, postID int64, totalScore float64, category string, authorID int64) error {
	z := redis.Z{Score: totalScore, Member: member(postID)}
	pipe := x.client.Pipeline()
	pipe.ZAdd(ctx, Global().Key(), z)
	if category != "" {
		pipe.ZAdd(ctx, Category(category).Key(), z)
	}
	if authorID > 0 {
		pipe.ZAdd(ctx, Author(authorID).Key(), z)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write ranking score: %w", err)
	}
	return nil
}

// IncrTrending adds delta to the post's trending score.
func (x *RedisIndex) IncrTrending(ctx context.Context, postID int64, delta float64) error {
	if err := x.client.ZIncrBy(ctx, Trending().Key(), delta, member(postID)).Err(); err != nil {
		return fmt.Errorf("failed to bump trending score: %w", err)
	}
	return nil
}

// Remove deletes the post from all facets it appears in.
func (x *RedisIndex) Remove(ctx context.Context, postID int64, category string, authorID int64) error {
	m := member(postID)
	pipe := x.client.Pipeline()
	pipe.ZRem(ctx, Global().Key(), m)
	pipe.ZRem(ctx, Trending().Key(), m)
	if category != "" {
		pipe.ZRem(ctx, Category(category).Key(), m)
	}
	if authorID > 0 {
		pipe.ZRem(ctx, Author(authorID).Key(), m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove post from rankings: %w", err)
	}
	return nil
}

// MoveCategory moves the post between category facets.
func (x *RedisIndex) MoveCategory(ctx context.Context, postID int64, oldCategory, newCategory string, totalScore float64) error {
	m := member(postID)
	pipe := x.client.Pipeline()
	if oldCategory != "" {
		pipe.ZRem(ctx, Category(oldCategory).Key(), m)
	}
	if newCategory != "" {
		pipe.ZAdd(ctx, Category(newCategory).Key(), redis.Z{Score: totalScore, Member: m})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move post between categories: %w", err)
	}
	return nil
}

// Top returns up to limit posts from the facet, highest score first.
func (x *RedisIndex) Top(ctx context.Context, facet Facet, limit int) ([]RankedPost, error) {
	if limit <= 0 {
		return nil, nil
	}
	zs, err := x.client.ZRevRangeWithScores(ctx, facet.Key(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s ranking: %w", facet, err)
	}
	posts := make([]RankedPost, 0, len(zs))
	for _, z := range zs {
		s, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		posts = append(posts, RankedPost{PostID: id, Score: z.Score})
	}
	return posts, nil
}

// Clear drops every ranking key via SCAN so large keyspaces do not block
// the server the way KEYS would.
func (x *RedisIndex) Clear(ctx context.Context) error {
	iter := x.client.Scan(ctx, 0, keyPattern, 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 200 {
			if err := x.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to clear ranking keys: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan ranking keys: %w", err)
	}
	if len(keys) > 0 {
		if err := x.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to clear ranking keys: %w", err)
		}
	}
	return nil
}
