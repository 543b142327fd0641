package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestQuotaRegistry_CheckAPIRate(t *testing.T) {
	r := NewQuotaRegistry(2)
	id := uuid.New()
	now := time.Now()

	for i := 0; i < 2; i++ {
		if ok, _ := r.CheckAPIRate(id, now); !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	ok, wait := r.CheckAPIRate(id, now)
	if ok {
		t.Fatal("third request should be rejected")
	}
	if wait <= 0 || wait > 30*time.Second {
		t.Errorf("expected wait in (0, 30s], got %v", wait)
	}

	// Other tenants have their own bucket.
	if ok, _ := r.CheckAPIRate(uuid.New(), now); !ok {
		t.Error("other tenant should be allowed")
	}

	// One token refills every 30s at 2/min.
	if ok, _ := r.CheckAPIRate(id, now.Add(31*time.Second)); !ok {
		t.Error("expected refill after 31s")
	}
}

func TestQuotaRegistry_Disabled(t *testing.T) {
	r := NewQuotaRegistry(0)
	id := uuid.New()
	for i := 0; i < 100; i++ {
		if ok, _ := r.CheckAPIRate(id, time.Now()); !ok {
			t.Fatal("disabled registry should never reject")
		}
	}
}

func TestQuotaRegistry_Remove(t *testing.T) {
	r := NewQuotaRegistry(1)
	id := uuid.New()
	now := time.Now()
	r.CheckAPIRate(id, now)
	if ok, _ := r.CheckAPIRate(id, now); ok {
		t.Fatal("expected rejection")
	}
	r.Remove(id)
	if ok, _ := r.CheckAPIRate(id, now); !ok {
		t.Fatal("expected fresh bucket after Remove")
	}
}

func TestQuotaEnforcerMiddleware(t *testing.T) {
	m := metrics.New()
	enforcer := NewQuotaEnforcer(NewQuotaRegistry(1), m)
	handler := enforcer.Process(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	acme := &store.Tenant{ID: uuid.New(), Subdomain: "acme", Active: true}

	t.Run("no tenant passes through", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
		}
	})

	t.Run("rate limited after budget", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req = req.WithContext(WithTenant(req.Context(), acme))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}
		if got := testutil.ToFloat64(m.QuotaRejections.WithLabelValues("acme")); got != 1 {
			t.Errorf("expected 1 rejection, got %v", got)
		}
	})
}
