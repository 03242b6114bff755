package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterBlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/rpc/GetBalance", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes[rec.Code]++
	}
	if codes[http.StatusOK] != 2 {
		t.Fatalf("allowed = %d, want burst of 2", codes[http.StatusOK])
	}
	if codes[http.StatusTooManyRequests] != 3 {
		t.Fatalf("limited = %d, want 3", codes[http.StatusTooManyRequests])
	}

	// A different caller has its own budget.
	req := httptest.NewRequest(http.MethodPost, "/rpc/GetBalance", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fresh caller got %d, want 200", rec.Code)
	}
}

func TestCallerIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	if got := CallerIP(req); got != "192.0.2.7" {
		t.Fatalf("CallerIP = %q, want 192.0.2.7", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.7")
	if got := CallerIP(req); got != "203.0.113.9" {
		t.Fatalf("CallerIP = %q, want first forwarded address", got)
	}
}
