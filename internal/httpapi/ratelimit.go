package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"photobox/internal/metrics"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	IPPerMinute    int
	IPBurst        int
	OwnerPerMinute int
	OwnerBurst     int
}

// RateLimiter keeps one token bucket per client IP and one per signed-in owner.
type RateLimiter struct {
	service string
	ip      *keyedLimiter
	owner   *keyedLimiter
}

func NewRateLimiter(service string, cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		service: service,
		ip:      newKeyedLimiter(cfg.IPPerMinute, cfg.IPBurst),
		owner:   newKeyedLimiter(cfg.OwnerPerMinute, cfg.OwnerBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := clientIP(r); ip != "" && !l.ip.allow(ip) {
			metrics.APIRateLimitHits.WithLabelValues(l.service, "ip").Inc()
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OwnerMiddleware must run after authentication.
func (l *RateLimiter) OwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if ok && p.UserID != "" && !l.owner.allow(p.UserID) {
			metrics.APIRateLimitHits.WithLabelValues(l.service, "owner").Inc()
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type keyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	lastGC   time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

const limiterIdle = 10 * time.Minute

func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &keyedLimiter{
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		lastGC:   time.Now(),
	}
}

func (l *keyedLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastGC) > limiterIdle {
		for k, entry := range l.limiters {
			if now.Sub(entry.seen) > limiterIdle {
				delete(l.limiters, k)
			}
		}
		l.lastGC = now
	}
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.seen = now
	return entry.limiter.AllowN(now, 1)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
