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
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client, e.g. by authenticated user. Defaults to
	// ClientIP.
	KeyFunc func(*http.Request) string
}

// counter holds the request counts of the current and the previous window.
type counter struct {
	prev, curr float64
	start      time.Time
}

type limiter struct {
	max    float64
	window time.Duration
	key    func(*http.Request) string

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.KeyFunc
	if key == nil {
		key = ClientIP
	}
	return &limiter{
		max:      float64(cfg.Max),
		window:   cfg.Window,
		key:      key,
		counters: make(map[string]*counter),
	}
}

// take records a request for key at now. The previous window is weighted by
// how much of it still overlaps the sliding window ending at now.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &counter{start: now.Truncate(l.window)}
		l.counters[key] = c
	}
	if elapsed := now.Sub(c.start); elapsed >= l.window {
		c.prev = c.curr
		if elapsed >= 2*l.window {
			c.prev = 0
		}
		c.curr = 0
		c.start = now.Truncate(l.window)
	}

	overlap := math.Max(0, 1-now.Sub(c.start).Seconds()/l.window.Seconds())
	used := c.prev*overlap + c.curr
	reset = c.start.Add(l.window)
	if used >= l.max {
		return 0, reset, false
	}
	c.curr++
	return int(math.Max(0, l.max-used-1)), reset, true
}

// evict drops counters idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

// RateLimit returns a middleware that enforces a per-key sliding window limit.
// Rejected requests get a JSON 429. Every response carries the
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware(time.Now)
}

// RateLimitWithCleanup is like RateLimit but evicts idle counters in the
// background until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.middleware(time.Now)
}

func (l *limiter) middleware(now func() time.Time) Middleware {
	limit := strconv.Itoa(int(l.max))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := now()
			remaining, reset, ok := l.take(l.key(r), t)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				retry := math.Ceil(math.Max(0, reset.Sub(t).Seconds()))
				h.Set("Retry-After", strconv.Itoa(int(retry)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP from the request, checking X-Forwarded-For
// first, then X-Real-IP, then falling back to RemoteAddr.
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
