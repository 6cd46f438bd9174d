// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the origin-scoped abuse-control layer: a per-IP
// submission cap enforced in front of the store-backed email limiter. Two
// counter stores are provided:
//
//   - an in-memory token bucket (golang.org/x/time/rate) with opportunistic
//     eviction of idle buckets; process-local, resets on restart;
//   - a Redis fixed-TTL counter for horizontally scaled deployments where a
//     single shared limit is wanted.
//
// Either way this layer is defense in depth, not a correctness guarantee:
// the durable per-email limit lives in the intake service against the
// submission store. On store errors the middleware fails open so a counter
// outage cannot take the signup form down.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// CounterStore answers whether the identity behind key may submit again.
type CounterStore interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// visitor holds a single rate limiter and the last time it was seen.
// Used to opportunistically evict idle buckets.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore is a per-key token-bucket counter. Buckets refill at
// limit/window tokens per second with a burst of limit, which approximates a
// rolling window for bursty form traffic. Safe for concurrent use.
type MemoryStore struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewMemoryStore builds a MemoryStore allowing limit events per window.
func NewMemoryStore(limit int, window time.Duration) *MemoryStore {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &MemoryStore{
		rps:      rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		visitors: make(map[string]*visitor),
		ttl:      2 * window, // evict idle entries well past the window
	}
}

// Allow implements CounterStore. It never returns an error.
func (s *MemoryStore) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	// Opportunistic cleanup after a threshold of lookups, run BEFORE touching
	// the requested visitor so an old bucket can be evicted even when it is
	// the one being fetched.
	s.cleanupN++
	if s.cleanupN >= 5000 {
		for k, vv := range s.visitors {
			if now.Sub(vv.lastSeen) >= s.ttl {
				delete(s.visitors, k)
			}
		}
		s.cleanupN = 0
	}

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.rps, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	lim := v.limiter
	s.mu.Unlock()

	return lim.Allow(), nil
}

// RedisStore counts events in Redis under a fixed TTL per key, so all
// instances behind a load balancer share one limit. The window is a fixed
// bucket rather than rolling, which is acceptable for this best-effort layer.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisStore builds a RedisStore allowing limit events per window.
func NewRedisStore(rdb *redis.Client, limit int, window time.Duration) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		prefix: "waitlist:ratelimit:",
		limit:  limit,
		window: window,
	}
}

// Allow implements CounterStore via INCR + EXPIRE on first increment.
func (s *RedisStore) Allow(ctx context.Context, key string) (bool, error) {
	k := s.prefix + key
	n, err := s.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, k, s.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(s.limit), nil
}

// IPRateLimit returns a Gin middleware that checks the client IP against the
// given counter store before the request reaches the intake handler.
//
// On denial it answers 429 with the standard envelope and a minimal
// Retry-After header; the remaining allowance is never revealed. On store
// errors it logs and lets the request through.
func IPRateLimit(store CounterStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := store.Allow(c.Request.Context(), "ip:"+c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Msg("rate limit store unavailable, failing open")
			c.Next()
			return
		}
		if allowed {
			c.Next()
			return
		}

		c.Header("Retry-After", "60")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success":    false,
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "too_many_requests",
			"message":    "Too many requests. Please try again later.",
		})
	}
}
