package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/conductor-go/internal/orchestrator"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func limitedRequest(remote, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	req.RemoteAddr = remote
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRateLimit_AllowsBurst(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(100, 5, nil)
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, limitedRequest("127.0.0.1:12345", ""))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	t.Parallel()

	rejected := prometheus.NewCounter(prometheus.CounterOpts{Name: "rejected"})
	rl, stop := newRateLimiter(0.001, 2, rejected)
	defer stop()
	h := rl.middleware(okHandler)

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, limitedRequest("10.0.0.1:9999", ""))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
			if err != nil || secs < 1 {
				t.Errorf("Retry-After: got %q", w.Header().Get("Retry-After"))
			}
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 200, 200, 429; got %v", codes)
	}
	if got := testutil.ToFloat64(rejected); got != 1 {
		t.Errorf("rejected counter: got %v, want 1", got)
	}
}

func TestRateLimit_CallersAreIndependent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		first *http.Request
		other *http.Request
	}{
		{
			name:  "different IPs",
			first: limitedRequest("192.168.1.1:1111", ""),
			other: limitedRequest("192.168.1.2:2222", ""),
		},
		{
			name:  "different tokens behind one IP",
			first: limitedRequest("192.168.1.1:1111", "alpha"),
			other: limitedRequest("192.168.1.1:1111", "beta"),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rl, stop := newRateLimiter(0.001, 1, nil)
			defer stop()
			h := rl.middleware(okHandler)

			h.ServeHTTP(httptest.NewRecorder(), tc.first)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, tc.other)
			if w.Code != http.StatusOK {
				t.Errorf("second caller: expected 200, got %d", w.Code)
			}
		})
	}
}

func TestRateLimit_Evict(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, nil)
	defer stop()
	rl.limiter("ip:10.0.0.1")
	rl.limiter("ip:10.0.0.2")

	rl.evict(time.Now().Add(-time.Hour))
	if n := rl.size(); n != 2 {
		t.Fatalf("fresh buckets evicted: %d left", n)
	}
	rl.evict(time.Now().Add(time.Second))
	if n := rl.size(); n != 0 {
		t.Errorf("stale buckets kept: %d left", n)
	}
}

func TestCallerKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		remote string
		token  string
		want   string
	}{
		{"ipv4", "127.0.0.1:54321", "", "ip:127.0.0.1"},
		{"ipv6", "[::1]:8080", "", "ip:::1"},
		{"no port", "noport", "", "ip:noport"},
	}
	for _, tc := range cases {
		if got := callerKey(limitedRequest(tc.remote, tc.token)); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}

	a := callerKey(limitedRequest("1.2.3.4:1", "secret"))
	b := callerKey(limitedRequest("5.6.7.8:1", "secret"))
	if a != b {
		t.Errorf("same token should map to one caller: %q vs %q", a, b)
	}
	if a == "key:secret" || len(a) <= len("key:") {
		t.Errorf("token key should be hashed, got %q", a)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]int{
		10 * time.Millisecond:   1,
		1500 * time.Millisecond: 2,
		3 * time.Second:         3,
	}
	for d, want := range cases {
		if got := retryAfterSeconds(d); got != want {
			t.Errorf("%v: got %d, want %d", d, got, want)
		}
	}
}

func TestRateLimit_RoutedRunCountsRejections(t *testing.T) {
	t.Parallel()

	s, h, _ := newRoutedServer(t, &fakeRunner{res: &orchestrator.Result{}}, Config{RateLimit: 0.001, RateBurst: 1})

	if w := postRun(t, h, `{"task":"Fix bugs"}`, ""); w.Code != http.StatusOK {
		t.Fatalf("first run: got %d", w.Code)
	}
	if w := postRun(t, h, `{"task":"Fix bugs"}`, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second run: got %d, want 429", w.Code)
	}
	if got := testutil.ToFloat64(s.metrics.rateLimitedTotal); got != 1 {
		t.Errorf("rate limited counter: got %v, want 1", got)
	}
}
