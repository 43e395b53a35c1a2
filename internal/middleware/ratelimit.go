package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/affordindia/affordindia-sub004/internal/respond"
)

const maxTrackedClients = 10000

// ClientLimiter hands out one token bucket per client address.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewClientLimiter(perMinute int) *ClientLimiter {
	return &ClientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[client]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.prune()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[client] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// prune drops clients whose bucket has refilled; they would get the same
// fresh bucket on their next request anyway. Callers hold l.mu.
func (l *ClientLimiter) prune() {
	for client, lim := range l.limiters {
		if lim.Tokens() >= float64(l.burst) {
			delete(l.limiters, client)
		}
	}
}

// RateLimit answers 429 once a client exhausts its bucket.
func RateLimit(l *ClientLimiter) Middleware {
	return func(h http.Handler, sugar *zap.SugaredLogger) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := remoteIP(r)
			if !l.Allow(client) {
				sugar.Warnw("rate limited", "client", client, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				respond.Failure(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many attempts, try again later.", sugar)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

// remoteIP is the socket peer. Behind a trusted proxy the server installs
// chi's RealIP first, which rewrites RemoteAddr from the forwarded headers.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
