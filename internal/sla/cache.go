package sla

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis snapshot cache in front of another Source.
// It is best effort: any Redis failure falls back to the underlying source,
// and negative results (unknown scope, invalid config) are never cached.
type Cache struct {
	Src Source
	R   *redis.Client
	TTL time.Duration
}

func cacheKey(sc Scope) string { return "sla:calendar:" + sc.key() }

func (c *Cache) Calendar(ctx context.Context, sc Scope) (*Calendar, error) {
	if b, err := c.R.Get(ctx, cacheKey(sc)).Bytes(); err == nil {
		var cal Calendar
		if json.Unmarshal(b, &cal) == nil {
			return &cal, nil
		}
	}
	cal, err := c.Src.Calendar(ctx, sc)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(cal); err == nil {
		c.R.Set(ctx, cacheKey(sc), b, c.TTL)
	}
	return cal, nil
}

// Invalidate drops the cached snapshot for a scope, for use after calendar
// edits by the admin tooling.
func (c *Cache) Invalidate(ctx context.Context, sc Scope) error {
	return c.R.Del(ctx, cacheKey(sc)).Err()
}
