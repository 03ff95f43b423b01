package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fertility/cds/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// tokenBucket implements a token bucket rate limiter.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *tokenBucket) retryAfter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refillRate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.refillRate) + 1
}

// Limiter decides whether the caller identified by key may proceed. When it
// refuses, retryAfter is the suggested wait in seconds.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retryAfter int, err error)
}

// rateLimiterStore holds per-key token buckets. It is the in-process Limiter.
type rateLimiterStore struct {
	buckets map[string]*tokenBucket
	mu      sync.RWMutex
	config  RateLimitConfig
}

// NewMemoryLimiter returns a Limiter with one token bucket per key. Limits
// are per replica.
func NewMemoryLimiter(cfg RateLimitConfig) Limiter {
	return newRateLimiterStore(cfg)
}

func newRateLimiterStore(cfg RateLimitConfig) *rateLimiterStore {
	return &rateLimiterStore{
		buckets: make(map[string]*tokenBucket),
		config:  cfg,
	}
}

func (s *rateLimiterStore) getBucket(key string) *tokenBucket {
	s.mu.RLock()
	bucket, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return bucket
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring write lock
	if bucket, ok := s.buckets[key]; ok {
		return bucket
	}
	bucket = newTokenBucket(s.config.RequestsPerSecond, s.config.BurstSize)
	s.buckets[key] = bucket
	return bucket
}

func (s *rateLimiterStore) Allow(_ context.Context, key string) (bool, int, error) {
	bucket := s.getBucket(key)
	if bucket.allow() {
		return true, 0, nil
	}
	return false, bucket.retryAfter(), nil
}

// redisLimiter counts requests per key in one-second fixed windows shared by
// every replica. The window allows RequestsPerSecond plus the burst.
type redisLimiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisLimiter returns a Limiter backed by INCR/EXPIRE counters.
func NewRedisLimiter(client redis.UniversalClient, cfg RateLimitConfig) Limiter {
	limit := int64(cfg.RequestsPerSecond) + int64(cfg.BurstSize)
	if limit <= 0 {
		limit = 1
	}
	return &redisLimiter{client: client, limit: limit, window: time.Second, prefix: "cds:ratelimit:"}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	windowKey := l.prefix + key + ":" + strconv.FormatInt(time.Now().Unix(), 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	if incr.Val() > l.limit {
		return false, 1, nil
	}
	return true, 0, nil
}

// rateLimitKey combines the client IP with the authenticated user, if any.
func rateLimitKey(c echo.Context) string {
	key := c.RealIP()
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		key = uid + ":" + key
	}
	return key
}

// RateLimit rejects requests refused by limiter with 429. Limiter errors
// are logged and the request is let through.
func RateLimit(limiter Limiter, cfg RateLimitConfig, logger zerolog.Logger) echo.MiddlewareFunc {
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retryAfter, err := limiter.Allow(c.Request().Context(), rateLimitKey(c))
			if err != nil {
				logger.Warn().Err(err).Str("request_id", requestID(c)).Msg("rate limiter unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
