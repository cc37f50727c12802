package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long a client's limiter is kept after its last request.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore holds one limiter per client key and drops idle ones.
type rateLimiterStore struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	config    RateLimitConfig
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiterStore(cfg RateLimitConfig) *rateLimiterStore {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimitConfig().IdleTTL
	}
	return &rateLimiterStore{
		clients:   make(map[string]*clientLimiter),
		config:    cfg,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (s *rateLimiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.config.IdleTTL {
		for k, cl := range s.clients {
			if now.Sub(cl.lastSeen) >= s.config.IdleTTL {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.BurstSize)}
		s.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (s *rateLimiterStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// retryAfter returns the whole seconds until lim admits one more request.
func retryAfter(lim *rate.Limiter) int {
	if lim.Limit() <= 0 {
		return 1
	}
	r := lim.Reserve()
	defer r.Cancel()
	if !r.OK() {
		return 1
	}
	secs := int(math.Ceil(r.Delay().Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// RateLimit returns a per-client rate limiting middleware keyed on the
// client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newRateLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lim := store.get(c.RealIP())
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)

			if !lim.Allow() {
				h.Set("Retry-After", strconv.Itoa(retryAfter(lim)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
