package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// GoroutineCountCheck fails when the process runs more than threshold
// goroutines.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports p's Ping result.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// RedisCheck issues PING against the redis client.
func RedisCheck(c redis.Cmdable) CheckFunc {
	return func(ctx context.Context) error {
		if err := c.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "redis ping")
		}
		return nil
	}
}
