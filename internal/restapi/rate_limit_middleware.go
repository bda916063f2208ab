package restapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"rentmap.hu/internal/metrics"
	"rentmap.hu/internal/models"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per API key, or per client address for requests
// without one. Idle buckets are dropped by Serve.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rateLimit rate.Limit
	burstSize int
	idleTTL   time.Duration
	exempt    map[string]bool
}

// NewRateLimiter allows ratePerInterval requests per interval per key. A
// non-positive rate disables limiting.
func NewRateLimiter(ratePerInterval int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		idleTTL:  5 * time.Minute,
		exempt: map[string]bool{
			"/healthz": true,
			"/metrics": true,
		},
	}
	if ratePerInterval <= 0 {
		rl.rateLimit = rate.Inf
	} else {
		rl.rateLimit = rate.Every(interval / time.Duration(ratePerInterval))
		rl.burstSize = ratePerInterval
	}
	return rl
}

func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rateLimit, rl.burstSize)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.rateLimit == rate.Inf || rl.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.limiterFor(clientKey(r), time.Now()).Allow() {
			rl.sendRateLimitExceeded(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if key := r.URL.Query().Get("key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

func (rl *RateLimiter) sendRateLimitExceeded(w http.ResponseWriter) {
	metrics.HTTPRateLimited.Inc()

	retryAfter := time.Duration(float64(time.Second) / float64(rl.rateLimit))
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burstSize))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	body, _ := json.Marshal(models.NewErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later."))
	_, _ = w.Write(body)
}

// Serve evicts idle buckets until ctx ends.
func (rl *RateLimiter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) String() string { return "rate-limiter" }

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}
