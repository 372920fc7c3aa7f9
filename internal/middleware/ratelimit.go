package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per caller. Callers are keyed on the
// resolved actor when there is one and on the remote address otherwise, so it
// should sit behind RequireActor on authenticated routes.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	onReject func()

	mu       sync.Mutex
	visitors map[string]*visitor
	swept    time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per caller with the given burst.
// onReject, when not nil, is called for every rejected request.
func NewRateLimiter(rps float64, burst int, onReject func()) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
		onReject: onReject,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether key may make a request now.
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.swept) > l.idle {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.visitors, k)
			}
		}
		l.swept = now
	}
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Handler returns the middleware. Rejected requests get 429 with Retry-After.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	retryAfter := "1"
	if l.limit > 0 && l.limit < 1 {
		retryAfter = strconv.Itoa(int(1/float64(l.limit) + 0.5))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(callerKey(r)) {
			if l.onReject != nil {
				l.onReject()
			}
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if a, ok := ActorFrom(r.Context()); ok {
		return "actor:" + a.UserID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
