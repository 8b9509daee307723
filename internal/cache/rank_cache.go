// Package cache stores ranked recommendation lists in Redis.
//
// Lists are JSON-encoded under "<prefix>:recs:<gen>:<userID>" with a TTL,
// where gen is a counter kept at "<prefix>:recs:gen". Every profile write
// increments the counter, so lists ranked against older profiles are never
// read again and simply expire. A missing key is a cache miss, not an error.
// The cache is advisory; callers recompute on any failure.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-mealmate-backend/internal/matching"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient builds a pooled Redis client. It does not dial; use Ping to
// check connectivity.
func NewClient(o Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
		// Connection pool settings
		PoolSize:     10,
		MinIdleConns: 2,
		// Timeout settings
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// RankCache implements services.RankCache on top of a Redis client.
type RankCache struct {
	rdb    redis.Cmdable
	prefix string
}

// NewRankCache wraps rdb. An empty prefix defaults to "mealmate".
func NewRankCache(rdb redis.Cmdable, prefix string) *RankCache {
	if prefix == "" {
		prefix = "mealmate"
	}
	return &RankCache{rdb: rdb, prefix: prefix}
}

// Ping checks that the server answers.
func (c *RankCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Generation returns the current profile generation; 0 before the first
// Bump.
func (c *RankCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", c.genKey(), err)
	}
	return gen, nil
}

// Bump advances the generation, orphaning every cached list.
func (c *RankCache) Bump(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("incr %s: %w", c.genKey(), err)
	}
	return nil
}

// GetRanked returns the list cached for userID under gen and whether it was
// present.
func (c *RankCache) GetRanked(ctx context.Context, gen int64, userID string) ([]matching.Ranked, bool, error) {
	key := c.key(gen, userID)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	items, err := decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, true, nil
}

// SetRanked stores items for userID under gen with the given TTL.
func (c *RankCache) SetRanked(ctx context.Context, gen int64, userID string, items []matching.Ranked, ttl time.Duration) error {
	raw, err := encode(items)
	if err != nil {
		return err
	}
	key := c.key(gen, userID)
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *RankCache) genKey() string {
	return c.prefix + ":recs:gen"
}

func (c *RankCache) key(gen int64, userID string) string {
	return c.prefix + ":recs:" + strconv.FormatInt(gen, 10) + ":" + userID
}

func encode(items []matching.Ranked) ([]byte, error) {
	if items == nil {
		items = []matching.Ranked{}
	}
	return json.Marshal(items)
}

func decode(raw []byte) ([]matching.Ranked, error) {
	var items []matching.Ranked
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []matching.Ranked{}
	}
	return items, nil
}
