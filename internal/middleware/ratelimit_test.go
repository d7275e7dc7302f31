package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestLimiterCacheReusesLimiters(t *testing.T) {
	lc := newLimiterCache[string](1, 1)

	a := lc.get("10.0.0.1")
	b := lc.get("10.0.0.1")
	if a != b {
		t.Error("same key should return the same limiter")
	}
	if lc.get("10.0.0.2") == a {
		t.Error("different keys should get different limiters")
	}
}

func TestLimiterCacheConcurrent(t *testing.T) {
	lc := newLimiterCache[string](100, 100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lc.get("shared").Allow()
		}()
	}
	wg.Wait()
}

func TestLimiterCacheClearIfExceeds(t *testing.T) {
	lc := newLimiterCache[string](1, 1)
	lc.get("a")
	lc.get("b")
	lc.get("c")

	if lc.clearIfExceeds(5) {
		t.Error("cache below the limit should not clear")
	}
	if !lc.clearIfExceeds(2) {
		t.Error("cache above the limit should clear")
	}
	if len(lc.limiters) != 0 {
		t.Errorf("limiters after clear = %d, want 0", len(lc.limiters))
	}
}

func TestGlobalRateLimiterMiddleware(t *testing.T) {
	rl := NewGlobalRateLimiter(1, 2)
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	status := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Burst of two passes, the third is throttled.
	if got := status(); got != http.StatusOK {
		t.Fatalf("first request = %d", got)
	}
	if got := status(); got != http.StatusOK {
		t.Fatalf("second request = %d", got)
	}
	if got := status(); got != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", got)
	}

	// A different IP has its own budget.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other IP = %d, want 200", rec.Code)
	}
}

func TestLoginProtectionLockout(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{
		IPRateLimit:       100,
		IPBurst:           100,
		MaxFailedAttempts: 3,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Minute,
	})

	email := "victim@example.com"
	if locked, _ := lp.IsAccountLocked(email); locked {
		t.Fatal("fresh account should not be locked")
	}

	if locked, _ := lp.RecordFailedAttempt(email); locked {
		t.Fatal("locked after 1 failure")
	}
	if locked, _ := lp.RecordFailedAttempt(email); locked {
		t.Fatal("locked after 2 failures")
	}
	locked, dur := lp.RecordFailedAttempt(email)
	if !locked {
		t.Fatal("not locked after reaching the limit")
	}
	if dur != time.Minute {
		t.Errorf("first lockout duration = %v, want 1m", dur)
	}

	if locked, remaining := lp.IsAccountLocked(email); !locked || remaining <= 0 {
		t.Errorf("IsAccountLocked = %v, %v", locked, remaining)
	}

	// A successful login clears everything, including the lock.
	lp.RecordSuccessfulLogin(email)
	if locked, _ := lp.IsAccountLocked(email); locked {
		t.Error("account still locked after successful login")
	}
}

func TestLoginProtectionBackoffDoubles(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{
		IPRateLimit:       100,
		IPBurst:           100,
		MaxFailedAttempts: 2,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Hour,
	})

	email := "repeat@example.com"
	fail := func() (bool, time.Duration) {
		t.Helper()
		return lp.RecordFailedAttempt(email)
	}

	fail()
	_, first := fail()
	if first != time.Minute {
		t.Fatalf("first lockout = %v, want 1m", first)
	}

	// Second lockout doubles.
	fail()
	locked, second := fail()
	if !locked {
		t.Fatal("expected second lockout")
	}
	if second != 2*time.Minute {
		t.Errorf("second lockout = %v, want 2m", second)
	}
}

func TestLoginProtectionMiddlewareOnlyLimitsPosts(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{
		IPRateLimit: 0.001, // effectively one POST per IP
		IPBurst:     1,
	})
	handler := lp.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method string) int {
		req := httptest.NewRequest(method, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := do(http.MethodPost); got != http.StatusOK {
		t.Fatalf("first POST = %d", got)
	}
	if got := do(http.MethodPost); got != http.StatusTooManyRequests {
		t.Fatalf("second POST = %d, want 429", got)
	}
	// GETs pass through regardless.
	for i := 0; i < 5; i++ {
		if got := do(http.MethodGet); got != http.StatusOK {
			t.Fatalf("GET %d = %d, want 200", i, got)
		}
	}
}
