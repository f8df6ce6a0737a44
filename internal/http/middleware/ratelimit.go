package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/potholewatch/backend/internal/metrics"
)

// RateLimiter keeps one token bucket per key and forgets idle keys. Name
// labels rejections in the rate_limited_total metric.
type RateLimiter struct {
	name   string
	limit  rate.Limit
	burst  int
	mu     sync.Mutex
	store  map[string]*limiterEntry
	maxAge time.Duration
	swept  time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	updated time.Time
}

// NewRateLimiter creates a keyed limiter.
func NewRateLimiter(name string, reqPerSec float64, burst int) *RateLimiter {
	return &RateLimiter{
		name:   name,
		limit:  rate.Limit(reqPerSec),
		burst:  burst,
		store:  make(map[string]*limiterEntry),
		maxAge: 10 * time.Minute,
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.store[key]; ok {
		entry.updated = time.Now()
		return entry.limiter
	}

	now := time.Now()
	lim := rate.NewLimiter(r.limit, r.burst)
	r.store[key] = &limiterEntry{limiter: lim, updated: now}

	if now.Sub(r.swept) > time.Minute {
		for k, entry := range r.store {
			if now.Sub(entry.updated) > r.maxAge {
				delete(r.store, k)
			}
		}
		r.swept = now
	}

	return lim
}

// LimitByKey rate limits by the key returned from keyFunc. Requests without
// a key pass through.
func (r *RateLimiter) LimitByKey(next http.Handler, keyFunc func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key, ok := keyFunc(req)
		if !ok || key == "" {
			next.ServeHTTP(w, req)
			return
		}

		res := r.get(key).Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			metrics.RateLimited.WithLabelValues(r.name).Inc()
			w.Header().Set("Retry-After", retryAfter(delay))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, req)
	})
}

// IPRateLimit keys on the client IP.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			return realIPFromRequest(r), true
		})
	}
}

// UserRateLimit keys on the authenticated subject.
func UserRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			subject := GetSubject(r.Context())
			if subject == "" {
				return "", false
			}
			return subject, true
		})
	}
}

func realIPFromRequest(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryAfter rounds up to whole seconds, minimum one.
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
