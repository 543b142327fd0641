package tenant

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultAPIRequestsPerMinute is applied when no explicit rate is configured.
const DefaultAPIRequestsPerMinute = 1000

// QuotaRegistry keeps one token bucket per tenant.
type QuotaRegistry struct {
	mu       sync.Mutex
	rpm      int
	limiters map[uuid.UUID]*rate.Limiter
}

// NewQuotaRegistry creates a registry allowing rpm API requests per minute
// per tenant. rpm <= 0 disables limiting.
func NewQuotaRegistry(rpm int) *QuotaRegistry {
	return &QuotaRegistry{
		rpm:      rpm,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (r *QuotaRegistry) limiter(tenantID uuid.UUID) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(r.rpm)/60), r.rpm)
		r.limiters[tenantID] = l
	}
	return l
}

// CheckAPIRate consumes one token for tenantID. When the bucket is empty it
// returns false and the wait until the next token.
func (r *QuotaRegistry) CheckAPIRate(tenantID uuid.UUID, now time.Time) (bool, time.Duration) {
	if r.rpm <= 0 {
		return true, 0
	}
	res := r.limiter(tenantID).ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Remove drops the bucket for tenantID.
func (r *QuotaRegistry) Remove(tenantID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, tenantID)
}

// QuotaEnforcer is an HTTP middleware that enforces per-tenant API rate
// limits. It runs after Gate.Middleware.
type QuotaEnforcer struct {
	Registry *QuotaRegistry
	metrics  *metrics.Collector
}

// NewQuotaEnforcer creates a new quota enforcer middleware.
func NewQuotaEnforcer(registry *QuotaRegistry, m *metrics.Collector) *QuotaEnforcer {
	return &QuotaEnforcer{Registry: registry, metrics: m}
}

// Process wraps an HTTP handler with quota enforcement.
func (q *QuotaEnforcer) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t := FromContext(r.Context())
		if t == nil {
			next.ServeHTTP(w, r)
			return
		}

		ok, wait := q.Registry.CheckAPIRate(t.ID, time.Now())
		if !ok {
			q.metrics.RecordQuotaRejection(t.Subdomain)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "tenant " + t.Subdomain + " exceeded API rate limit (" + strconv.Itoa(q.Registry.rpm) + "/min)",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
