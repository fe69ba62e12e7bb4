package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/MrRuperto3/TAO-App/internal/errors"
)

// maxTrackedClients bounds the limiter map; idle clients are swept past it
const maxTrackedClients = 10000

// clientIdleTimeout is how long an unused limiter is kept
const clientIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages rate limiting for API requests, one token bucket per client
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex

	limit     rate.Limit
	burstSize int
	now       func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		limit:     rate.Limit(requestsPerSecond),
		burstSize: burst,
		now:       time.Now,
	}
}

// getLimiter returns the limiter for a client, creating it on first use
func (rl *RateLimiter) getLimiter(clientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if v, ok := rl.visitors[clientID]; ok {
		v.lastSeen = now
		return v.limiter
	}

	if len(rl.visitors) >= maxTrackedClients {
		rl.sweepLocked(now)
	}

	limiter := rate.NewLimiter(rl.limit, rl.burstSize)
	rl.visitors[clientID] = &visitor{limiter: limiter, lastSeen: now}
	return limiter
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for id, v := range rl.visitors {
		if now.Sub(v.lastSeen) > clientIdleTimeout {
			delete(rl.visitors, id)
		}
	}
}

// clientID identifies the caller by its first forwarded address, else the peer IP
func clientID(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := rl.getLimiter(clientID(r))

			res := limiter.Reserve()
			if delay := res.Delay(); !res.OK() || delay > 0 {
				res.Cancel()
				respondServiceError(w, r, apperrors.NewRateLimitError(delay))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
