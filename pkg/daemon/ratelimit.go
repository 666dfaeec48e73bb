package daemon

import (
	"sync"

	"golang.org/x/time/rate"
)

// clientRateLimiter keeps one token bucket per client key.
type clientRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	r       rate.Limit
	b       int
}

func newClientRateLimiter(r rate.Limit, b int) *clientRateLimiter {
	return &clientRateLimiter{
		clients: make(map[string]*rate.Limiter),
		r:       r,
		b:       b,
	}
}

func (l *clientRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.clients[key]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.clients[key] = lim
	}
	return lim
}

// Allow reports whether key may make a request now. A non-positive rate
// disables limiting.
func (l *clientRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	disabled := l.r <= 0
	l.mu.Unlock()
	if disabled {
		return true
	}
	return l.limiter(key).Allow()
}

// Reset applies new limits and forgets every client bucket.
func (l *clientRateLimiter) Reset(r rate.Limit, b int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.r = r
	l.b = b
	l.clients = make(map[string]*rate.Limiter)
}
