package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-key token bucket limiter.
type RateLimitConfig struct {
	// Max is the bucket size: requests allowed in a burst, refilled evenly
	// over Window.
	Max int
	// Window is the time needed to refill a drained bucket.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	cfg   RateLimitConfig
	every rate.Limit

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	return &rateLimiter{
		cfg:     cfg,
		every:   rate.Every(cfg.Window / time.Duration(cfg.Max)),
		buckets: make(map[string]*bucket),
	}
}

func (rl *rateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.every, rl.cfg.Max)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// evict drops buckets idle for longer than a window; they would be full again.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.cfg.Window {
			delete(rl.buckets, key)
		}
	}
}

func (rl *rateLimiter) startEviction(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.evict(now)
			}
		}
	}()
}

// RateLimit limits requests per key. Rejected requests get 429 with a
// Retry-After header. Every response carries X-RateLimit-Limit and
// X-RateLimit-Remaining.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle keys
// until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startEviction(ctx)
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := rl.cfg.Now()
		lim := rl.limiter(rl.cfg.KeyFunc(r), now)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
		if !lim.AllowN(now, 1) {
			res := lim.ReserveN(now, 1)
			wait := res.DelayFrom(now)
			res.CancelAt(now)

			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		remaining := int(math.Floor(lim.TokensAt(now)))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))

		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// address host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
