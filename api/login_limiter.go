package api

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultLoginsPerMinute bounds token requests per client address when
// Config.AuthRateLimit is zero.
const DefaultLoginsPerMinute = 10

// loginLimiter throttles token requests per client address. Buckets idle for
// longer than idle are swept by a background janitor.
type loginLimiter struct {
	perMinute int
	idle      time.Duration

	mu      sync.Mutex
	buckets map[string]*loginBucket

	done     chan struct{}
	stopOnce sync.Once
}

type loginBucket struct {
	limiter *rate.Limiter
	touched time.Time
}

func newLoginLimiter(perMinute int, idle time.Duration) *loginLimiter {
	l := &loginLimiter{
		perMinute: perMinute,
		idle:      idle,
		buckets:   make(map[string]*loginBucket),
		done:      make(chan struct{}),
	}
	go l.janitor(idle / 2)
	return l
}

// allow consumes one token for addr. On rejection it returns the wait until
// the next token.
func (l *loginLimiter) allow(addr string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	b, ok := l.buckets[addr]
	if !ok {
		b = &loginBucket{limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.perMinute)}
		l.buckets[addr] = b
	}
	b.touched = now
	l.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep drops buckets untouched since before cutoff.
func (l *loginLimiter) sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for addr, b := range l.buckets {
		if b.touched.Before(cutoff) {
			delete(l.buckets, addr)
			n++
		}
	}
	return n
}

func (l *loginLimiter) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			l.sweep(now.Add(-l.idle))
		case <-l.done:
			return
		}
	}
}

func (l *loginLimiter) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Stop ends the login limiter's janitor. Safe to call more than once.
func (m *Middleware) Stop() {
	if m.logins != nil {
		m.logins.stop()
	}
}

// ThrottleLogins limits requests per client address to perMinute, using
// DefaultLoginsPerMinute when perMinute is not positive.
func (m *Middleware) ThrottleLogins(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = DefaultLoginsPerMinute
	}
	if m.logins == nil {
		m.logins = newLoginLimiter(perMinute, 10*time.Minute)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := realIP(r)
			ok, wait := m.logins.allow(addr, time.Now())
			if !ok {
				m.logger.Warn("login throttled", zap.String("addr", addr), zap.Duration("retry_after", wait))
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
				WriteError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
