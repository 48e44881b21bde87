package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/transactions/internal/metrics"
)

const visitorTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	name     string
	interval time.Duration
	burst    int
	reject   http.HandlerFunc

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per address per minute, with
// bursts up to perMinute. reject writes the response for limited requests.
func NewRateLimiter(name string, perMinute int, reject http.HandlerFunc) *RateLimiter {
	perMinute = max(perMinute, 1)
	return &RateLimiter{
		name:     name,
		interval: time.Minute / time.Duration(perMinute),
		burst:    perMinute,
		reject:   reject,
		visitors: make(map[string]*visitor),
	}
}

// Allow consumes a token for addr.
func (rl *RateLimiter) Allow(addr string, now time.Time) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(rl.interval), rl.burst)}
		rl.visitors[addr] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Sweep drops addresses idle since before cutoff.
func (rl *RateLimiter) Sweep(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := 0
	for addr, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, addr)
			n++
		}
	}
	return n
}

// Run sweeps idle addresses every minute until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Sweep(now.Add(-visitorTTL))
		}
	}
}

// Handler limits requests by r.RemoteAddr, which TrustedRealIP has
// already resolved.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientAddr(r.RemoteAddr), time.Now()) {
			metrics.RateLimited.WithLabelValues(rl.name).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			rl.reject(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) retryAfter() int {
	return max(int(rl.interval.Round(time.Second)/time.Second), 1)
}

// clientAddr strips the port so one client maps to one bucket.
func clientAddr(remote string) string {
	if a, ok := parseAddr(remote); ok {
		return a.String()
	}
	return remote
}
