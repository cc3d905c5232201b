package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("usr_a") {
			t.Errorf("request %d within burst should be allowed", i+1)
		}
	}
	if limiter.Allow("usr_a") {
		t.Error("request beyond burst should be denied")
	}

	// Separate holders have independent budgets.
	if !limiter.Allow("usr_b") {
		t.Error("fresh holder should be allowed")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	if !limiter.Allow("usr_a") {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow("usr_a") {
		t.Fatal("second request should be denied")
	}

	limiter.Reset()
	if !limiter.Allow("usr_a") {
		t.Error("request after reset should be allowed")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	id := Identity{HolderID: "usr_a", Label: "Alice", Role: RoleAdmin}

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/locks", nil)
		req = req.WithContext(WithContext(req.Context(), id))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusOK {
		t.Errorf("first request status = %d, want 200", code)
	}
	if code := send(); code != http.StatusOK {
		t.Errorf("second request status = %d, want 200", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", code)
	}
}
