package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/store"
	"go.uber.org/zap"
)

// Resolution failures. Each maps to a fixed HTTP status via StatusCode.
var (
	ErrNoSubdomain    = errors.New("no tenant subdomain in host")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrTenantInactive = errors.New("tenant is inactive")
)

type contextKey string

const tenantKey contextKey = "tenant"

// FromContext returns the tenant resolved by Gate.Middleware, or nil when the
// request was exempt.
func FromContext(ctx context.Context) *store.Tenant {
	if t, ok := ctx.Value(tenantKey).(*store.Tenant); ok {
		return t
	}
	return nil
}

// WithTenant returns a context carrying the resolved tenant.
func WithTenant(ctx context.Context, t *store.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidSubdomain reports whether s is a single DNS label.
func ValidSubdomain(s string) bool {
	return labelPattern.MatchString(s)
}

// Config controls how hosts map to tenants.
type Config struct {
	// BaseDomain is the shared suffix, e.g. "projecthub.io". When empty the
	// first label of any host with at least three labels is used.
	BaseDomain string
	// ExemptPrefixes are path prefixes that bypass resolution entirely.
	ExemptPrefixes []string
}

// DefaultConfig returns the exempt prefixes used by the HTTP surface.
func DefaultConfig() Config {
	return Config{
		ExemptPrefixes: []string{"/admin/", "/api/v1/auth/", "/healthz", "/metrics"},
	}
}

// Gate resolves exactly one active tenant per request from the host name.
type Gate struct {
	cfg         Config
	tenants     store.TenantStore
	memberships store.TenantMembershipStore
	cache       *Cache
	logger      *zap.Logger
	metrics     *metrics.Collector
}

// NewGate creates a gate over the tenant stores. cache may be nil.
func NewGate(cfg Config, stores store.Stores, cache *Cache, logger *zap.Logger, m *metrics.Collector) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		cfg:         cfg,
		tenants:     stores.Tenants,
		memberships: stores.TenantMemberships,
		cache:       cache,
		logger:      logger,
		metrics:     m,
	}
}

// Exempt reports whether path bypasses tenant resolution.
func (g *Gate) Exempt(path string) bool {
	for _, prefix := range g.cfg.ExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Subdomain extracts the tenant label from host. It returns "" when the host
// carries no usable subdomain.
func (g *Gate) Subdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}

	var sub string
	if base := strings.ToLower(g.cfg.BaseDomain); base != "" {
		if !strings.HasSuffix(host, "."+base) {
			return ""
		}
		sub = strings.TrimSuffix(host, "."+base)
	} else {
		labels := strings.Split(host, ".")
		if len(labels) < 3 {
			return ""
		}
		sub = labels[0]
	}
	if !ValidSubdomain(sub) {
		return ""
	}
	return sub
}

// Resolve maps host to an active tenant. Exempt paths return (nil, nil).
func (g *Gate) Resolve(ctx context.Context, host, path string) (*store.Tenant, error) {
	if g.Exempt(path) {
		g.metrics.RecordTenantResolution("exempt")
		return nil, nil
	}
	t, err := g.resolve(ctx, host)
	g.metrics.RecordTenantResolution(outcome(err))
	return t, err
}

func (g *Gate) resolve(ctx context.Context, host string) (*store.Tenant, error) {
	sub := g.Subdomain(host)
	if sub == "" {
		return nil, ErrNoSubdomain
	}

	t, err := g.lookup(ctx, sub)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve tenant %q: %w", sub, err)
	}
	if !t.Active {
		return nil, ErrTenantInactive
	}
	return t, nil
}

func (g *Gate) lookup(ctx context.Context, sub string) (*store.Tenant, error) {
	if g.cache != nil {
		id, ok, err := g.cache.Get(ctx, sub)
		if err != nil {
			g.logger.Warn("tenant cache read failed", zap.String("subdomain", sub), zap.Error(err))
		}
		g.metrics.RecordTenantCache(ok)
		if ok {
			t, err := g.tenants.Get(ctx, id)
			if err == nil && t.Subdomain == sub {
				return t, nil
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			// Stale entry: the tenant was deleted or renamed.
			_ = g.cache.Invalidate(ctx, sub)
		}
	}

	t, err := g.tenants.GetBySubdomain(ctx, sub)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		if err := g.cache.Set(ctx, sub, t.ID); err != nil {
			g.logger.Warn("tenant cache write failed", zap.String("subdomain", sub), zap.Error(err))
		}
	}
	return t, nil
}

// Admit confirms that actor belongs to t. Anonymous actors and platform
// admins pass; authentication is enforced by the policy layer.
func (g *Gate) Admit(ctx context.Context, actor *store.User, t *store.Tenant) error {
	if actor == nil || t == nil || actor.IsAdmin {
		return nil
	}
	_, err := g.memberships.GetForUser(ctx, t.ID, actor.ID)
	if errors.Is(err, store.ErrNotFound) {
		g.metrics.RecordTenantResolution("not_member")
		return ErrTenantNotFound
	}
	if err != nil {
		return fmt.Errorf("tenant membership: %w", err)
	}
	return nil
}

// Middleware resolves the tenant once and stores it in the request context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t, err := g.Resolve(r.Context(), r.Host, r.URL.Path)
		if err != nil {
			g.reject(w, r, err)
			return
		}
		if t != nil {
			r = r.WithContext(WithTenant(r.Context(), t))
		}
		next.ServeHTTP(w, r)
	})
}

// Admission rejects authenticated actors that are not members of the
// resolved tenant. It must run after authentication.
func (g *Gate) Admission(actor func(*http.Request) *store.User) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := g.Admit(r.Context(), actor(r), FromContext(r.Context())); err != nil {
				g.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("tenant resolution failed", zap.String("host", r.Host), zap.Error(err))
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	g.logger.Debug("tenant rejected", zap.String("host", r.Host), zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// StatusCode maps a resolution error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNoSubdomain):
		return http.StatusBadRequest
	case errors.Is(err, ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTenantInactive):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, ErrNoSubdomain):
		return "no_subdomain"
	case errors.Is(err, ErrTenantNotFound):
		return "not_found"
	case errors.Is(err, ErrTenantInactive):
		return "inactive"
	default:
		return "error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
