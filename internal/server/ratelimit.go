package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/conductor-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained runs per second allowed per caller.
	defaultRateLimit = 10
	// defaultRateBurst is the burst allowed per caller.
	defaultRateBurst = 20

	// callerIdleTTL is how long an unused bucket is kept.
	callerIdleTTL = 5 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter hands out one token bucket per caller. A caller is its bearer
// token when one is sent and its remote IP otherwise, so clients sharing a
// NAT but holding different keys do not starve each other.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	// rejected may be nil.
	rejected prometheus.Counter
}

// newRateLimiter starts the eviction loop and returns the limiter with a
// stop function for it.
func newRateLimiter(rps float64, burst int, rejected prometheus.Counter) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets:  make(map[string]*bucket),
		rps:      rate.Limit(rps),
		burst:    burst,
		rejected: rejected,
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				rl.evict(now.Add(-callerIdleTTL))
			}
		}
	}()
	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

func (rl *rateLimiter) limiter(caller string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[caller]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[caller] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

// evict drops buckets not used since cutoff.
func (rl *rateLimiter) evict(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, k)
		}
	}
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// middleware rejects callers over their budget with 429 and a Retry-After
// header rounded up to whole seconds.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerKey(r)
		res := rl.limiter(caller).Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			if rl.rejected != nil {
				rl.rejected.Inc()
			}
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("caller", caller),
				slog.Duration("retry_after", delay),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) int {
	if d == rate.InfDuration {
		return 60
	}
	return max(1, int(math.Ceil(d.Seconds())))
}

// callerKey identifies the caller without keeping the token in memory.
func callerKey(r *http.Request) string {
	if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && tok != "" {
		return "key:" + strconv.FormatUint(xxhash.Sum64String(tok), 16)
	}
	return "ip:" + clientIP(r)
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
