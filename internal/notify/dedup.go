package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL bounds how long processed event ids are remembered.
const DefaultDedupTTL = 48 * time.Hour

// RedisDeduper implements Deduper with SET NX and a TTL.
type RedisDeduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisDeduper creates a RedisDeduper. A non-positive ttl uses
// DefaultDedupTTL.
func NewRedisDeduper(rdb redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, key).Err()
}
