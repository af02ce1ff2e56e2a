package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func limitedRequest(remoteAddr, owner string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/insights/query", nil)
	req.RemoteAddr = remoteAddr
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	return req
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(100, 5, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for i := range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, limitedRequest("127.0.0.1:12345", "1"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestRateLimit_BlocksOverLimitWithRetryAfter(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	h.ServeHTTP(httptest.NewRecorder(), limitedRequest("10.0.0.2:1234", "9"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, limitedRequest("10.0.0.2:1234", "9"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429 response")
	}
}

// One owner exhausting its bucket must not throttle another owner behind the
// same gateway address.
func TestRateLimit_PerOwnerIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.Default())
	defer stop()
	h := rl.middleware(okHandler)

	for range 5 {
		h.ServeHTTP(httptest.NewRecorder(), limitedRequest("192.168.1.1:1111", "alice"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, limitedRequest("192.168.1.1:1111", "bob"))
	if w.Code != http.StatusOK {
		t.Errorf("bob: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, limitedRequest("192.168.1.1:1111", ""))
	if w.Code != http.StatusOK {
		t.Errorf("anonymous request falls back to the IP bucket: expected 200, got %d", w.Code)
	}
}

func TestRateLimit_EvictsIdleKeys(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, slog.Default())
	defer stop()

	rl.getLimiter("owner:1")
	rl.evict(time.Now().Add(limiterIdleTTL + time.Second))

	rl.mu.Lock()
	n := len(rl.limiters)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("want idle limiter evicted, %d remain", n)
	}
}

func TestLimitKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		owner      string
		want       string
	}{
		{"127.0.0.1:54321", "", "ip:127.0.0.1"},
		{"[::1]:8080", "", "ip:::1"},
		{"noport", "", "ip:noport"},
		{"10.0.0.1:80", "42", "owner:42"},
	}
	for _, tc := range cases {
		if got := limitKey(limitedRequest(tc.remoteAddr, tc.owner)); got != tc.want {
			t.Errorf("remoteAddr=%q owner=%q: expected %q, got %q", tc.remoteAddr, tc.owner, tc.want, got)
		}
	}
}
