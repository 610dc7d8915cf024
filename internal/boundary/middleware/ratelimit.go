package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/freezegate/freezegate/internal/apierrors"
)

// Limiter is the REST boundary's per-client token-bucket rate limiter.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewLimiter builds a Limiter allowing requestsPerMinute per client, with
// the given burst capacity.
func NewLimiter(requestsPerMinute, burst int) *Limiter {
	return &Limiter{
		limiters: map[string]*rate.Limiter{},
		rps:      rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

func (l *Limiter) get(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[clientID]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[clientID] = lim
	}
	return lim
}

// Cleanup drops limiters that have been idle long enough to refill fully,
// bounding memory growth across distinct client identifiers.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for key, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, key)
		}
	}
}

// RateLimit enforces Limiter per client, identified by the authenticated
// principal (set by Auth) or else remote address.
func RateLimit(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.RemoteAddr
			if principal, ok := PrincipalFromContext(r.Context()); ok {
				clientID = principal.Identity
			}
			if !limiter.get(clientID).Allow() {
				apierrors.Write(w, apierrors.RateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
