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

// RateLimitConfig configures a sliding window limiter.
type RateLimitConfig struct {
	// Max requests per Window for one key.
	Max    int
	Window time.Duration
	// KeyFunc picks the limited subject. Nil means the client IP.
	KeyFunc func(*http.Request) string
	// Match restricts limiting to matching requests. Nil limits everything.
	Match func(*http.Request) bool
}

// window counts requests of one key in the current and previous fixed
// windows; the sliding estimate weights the previous one by its overlap.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

// Limiter is a per-key sliding window rate limiter.
type Limiter struct {
	cfg RateLimitConfig

	mu   sync.Mutex
	keys map[string]*window
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &Limiter{cfg: cfg, keys: make(map[string]*window)}
}

// Allow records a request for key at now. It reports whether the request is
// within the limit, how many requests remain and when the window resets.
func (l *Limiter) Allow(key string, now time.Time) (allowed bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.cfg.Window)
	win, ok := l.keys[key]
	switch {
	case !ok:
		win = &window{start: start}
		l.keys[key] = win
	case start.Sub(win.start) == l.cfg.Window:
		win.prev, win.curr, win.start = win.curr, 0, start
	case start.Sub(win.start) > l.cfg.Window:
		win.prev, win.curr, win.start = 0, 0, start
	}

	reset = start.Add(l.cfg.Window)
	overlap := 1 - float64(now.Sub(start))/float64(l.cfg.Window)
	used := win.prev*overlap + win.curr
	if used >= float64(l.cfg.Max) {
		return false, 0, reset
	}
	win.curr++
	return true, max(0, l.cfg.Max-int(math.Ceil(used+1))), reset
}

// Evict drops keys idle for two windows.
func (l *Limiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, win := range l.keys {
		if now.Sub(win.start) >= 2*l.cfg.Window {
			delete(l.keys, key)
		}
	}
}

// RunEviction calls Evict every two windows until ctx is done.
func (l *Limiter) RunEviction(ctx context.Context) {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Evict(now)
		}
	}
}

// Middleware enforces the limit, answering 429 with the API error body and
// Retry-After when exceeded.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.cfg.Match != nil && !l.cfg.Match(r) {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			allowed, remaining, reset := l.Allow(l.cfg.KeyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(reset.Sub(now).Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CookieOrIP keys requests by the named cookie, falling back to the client
// IP for requests that do not carry it yet.
func CookieOrIP(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return "cookie:" + c.Value
		}
		return "ip:" + ClientIP(r)
	}
}

// PathPrefix matches requests whose path starts with prefix.
func PathPrefix(prefix string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		return strings.HasPrefix(r.URL.Path, prefix)
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
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
