package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter rate limits per client IP. This is transport-level protection
// for the HTTP surface; the answer engine's admission window separately
// protects the model quota.
type ipLimiter struct {
	mu         sync.Mutex
	clients    map[string]*clientLimiter
	rps        rate.Limit
	burst      int
	staleAfter time.Duration
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newIPLimiter(rps rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{
		clients:    make(map[string]*clientLimiter),
		rps:        rps,
		burst:      burst,
		staleAfter: 10 * time.Minute,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneStale()

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.seen = time.Now()
	return c.limiter.Allow()
}

// pruneStale drops clients not seen within staleAfter so the map stays
// bounded by the active client set. Caller holds l.mu. Done inline rather
// than from a background goroutine so the limiter needs no lifecycle of
// its own.
func (l *ipLimiter) pruneStale() {
	now := time.Now()
	for ip, c := range l.clients {
		if now.Sub(c.seen) > l.staleAfter {
			delete(l.clients, ip)
		}
	}
}

// rateLimit rejects clients that exceed their per-IP budget with a 429.
func rateLimit(l *ipLimiter) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !l.allow(ip) {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
