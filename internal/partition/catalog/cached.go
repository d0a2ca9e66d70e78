package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "voterstore:catalog:"

// Source is anything that produces the selectable list.
type Source interface {
	ListSelectable(ctx context.Context) []Summary
}

// Cached is a Redis read-through cache in front of a Source. Redis failures
// fall through to the source; degraded (empty) results are not stored.
type Cached struct {
	source   Source
	client   redis.Cmdable
	database string
	ttl      time.Duration
	options
}

// NewCached wraps source with a cache entry per logical database.
func NewCached(source Source, client redis.Cmdable, database string, ttl time.Duration, opts ...Option) *Cached {
	return &Cached{
		source:   source,
		client:   client,
		database: database,
		ttl:      ttl,
		options:  applyOptions(opts),
	}
}

// ListSelectable serves the cached list when present.
func (c *Cached) ListSelectable(ctx context.Context) []Summary {
	key := cacheKeyPrefix + c.database

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []Summary
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			c.observe("hit")
			return cached
		}
		c.logger.WarnContext(ctx, "discarding corrupt catalog cache entry", "key", key)
		c.observe("error")
	case errors.Is(err, redis.Nil):
		c.observe("miss")
	default:
		c.logger.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
		c.observe("error")
	}

	list := c.source.ListSelectable(ctx)
	if len(list) == 0 {
		return list
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return list
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
	}
	return list
}

// Invalidate removes the cached list so the next read goes to the source.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, cacheKeyPrefix+c.database).Err()
}

func (c *Cached) observe(result string) {
	if c.metrics != nil {
		c.metrics.IncrementCatalogCache(result)
	}
}
