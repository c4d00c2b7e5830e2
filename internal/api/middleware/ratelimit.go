package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/example/ec-storefront/internal/metrics"
)

type keyedLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// RateLimiter hands out one token bucket per caller: the user id when the
// request is authenticated, the remote IP otherwise.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	metrics *metrics.Metrics

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	now      func() time.Time
}

func NewRateLimiter(rps float64, burst int, m *metrics.Metrics) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  30 * time.Minute,
		metrics:  m,
		limiters: make(map[string]*keyedLimiter),
		now:      time.Now,
	}
}

func (l *RateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kl, ok := l.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = kl
	}
	kl.last = now
	return kl.limiter
}

// Prune drops limiters idle for longer than the TTL.
func (l *RateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleTTL)
	n := 0
	for key, kl := range l.limiters {
		if kl.last.Before(cutoff) {
			delete(l.limiters, key)
			n++
		}
	}
	return n
}

func clientKey(r *http.Request) string {
	if c := CallerFromContext(r.Context()); c.Authenticated() {
		return "user:" + c.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.rps <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !l.limiterFor(clientKey(r)).Allow() {
			if l.metrics != nil {
				l.metrics.RateLimited.Inc()
			}
			w.Header().Set("Retry-After", "1")
			RespondError(w, "too many requests", "rate_limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
