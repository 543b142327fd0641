package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoginLimiter_Allow(t *testing.T) {
	l := newLoginLimiter(2, time.Hour)
	defer l.stop()
	now := time.Now()

	for i := 0; i < 2; i++ {
		if ok, _ := l.allow("10.0.0.1", now); !ok {
			t.Fatalf("attempt %d should pass", i)
		}
	}
	ok, wait := l.allow("10.0.0.1", now)
	if ok || wait <= 0 {
		t.Fatalf("expected rejection with wait, got ok=%v wait=%v", ok, wait)
	}
	if ok, _ := l.allow("10.0.0.2", now); !ok {
		t.Error("other address should pass")
	}

	if n := l.sweep(now.Add(time.Second)); n != 2 {
		t.Errorf("expected 2 buckets swept, got %d", n)
	}
	if ok, _ := l.allow("10.0.0.1", now); !ok {
		t.Error("expected fresh bucket after sweep")
	}
}

func TestMiddleware_ThrottleLogins(t *testing.T) {
	mw := NewMiddleware(nil, "", nil, zap.NewNop(), nil)
	defer mw.Stop()
	h := mw.ThrottleLogins(1)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(fwd string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", nil)
		req.Header.Set("X-Forwarded-For", fwd)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	expectStatus(t, send("203.0.113.7"), http.StatusOK)
	rec := send("203.0.113.7, 10.0.0.1")
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	expectStatus(t, send("198.51.100.4"), http.StatusOK)
	mw.Stop()
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "192.0.2.1:5555", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "192.0.2.1:5555", "198.51.100.4"},
		{"garbage header ignored", map[string]string{"X-Forwarded-For": "not-an-ip"}, "192.0.2.1:5555", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := realIP(req); got != tt.want {
				t.Errorf("realIP = %q, want %q", got, tt.want)
			}
		})
	}
}
