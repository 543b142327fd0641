// Package metrics exposes the Prometheus instruments used across the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds configuration for the Collector.
type Config struct {
	Namespace string `yaml:"namespace" json:"namespace"`
	Subsystem string `yaml:"subsystem" json:"subsystem"`
	Path      string `yaml:"path" json:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace: "projecthub",
		Path:      "/metrics",
	}
}

// Collector wraps Prometheus metrics with its own registry. All Record
// methods are safe to call on a nil *Collector.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	AuthzDecisions      *prometheus.CounterVec
	RoleAssignments     *prometheus.CounterVec
	Demotions           *prometheus.CounterVec
	TenantResolutions   *prometheus.CounterVec
	TenantCacheLookups  *prometheus.CounterVec
	QuotaRejections     *prometheus.CounterVec
	ProjectsArchived    prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Collector with the default configuration.
func New() *Collector {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Collector with the given config.
func NewWithConfig(cfg Config) *Collector {
	reg := prometheus.NewRegistry()
	ns, sub := cfg.Namespace, cfg.Subsystem

	c := &Collector{config: cfg, registry: reg}

	c.AuthzDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "authz_decisions_total",
		Help:      "Authorization guard decisions by guard, level and outcome",
	}, []string{"guard", "level", "outcome"})

	c.RoleAssignments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "role_assignments_total",
		Help:      "Project role assignments by requested role and outcome",
	}, []string{"role", "outcome"})

	c.Demotions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "role_demotions_total",
		Help:      "Automatic demotions applied by the role cascade",
	}, []string{"from", "to"})

	c.TenantResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "tenant_resolutions_total",
		Help:      "Tenant gate resolutions by outcome",
	}, []string{"outcome"})

	c.TenantCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "tenant_cache_lookups_total",
		Help:      "Tenant cache lookups by result",
	}, []string{"result"})

	c.QuotaRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "tenant_quota_rejections_total",
		Help:      "Requests rejected by the per-tenant rate limit",
	}, []string{"tenant"})

	c.ProjectsArchived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "projects_archived_total",
		Help:      "Projects archived by housekeeping after their end date",
	})

	c.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status_code"})

	c.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: sub,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	reg.MustRegister(
		c.AuthzDecisions,
		c.RoleAssignments,
		c.Demotions,
		c.TenantResolutions,
		c.TenantCacheLookups,
		c.QuotaRejections,
		c.ProjectsArchived,
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
	)
	return c
}

// Path returns the configured metrics endpoint path.
func (c *Collector) Path() string { return c.config.Path }

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns an HTTP handler that serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordAuthz counts one guard decision.
func (c *Collector) RecordAuthz(guard, level, outcome string) {
	if c == nil {
		return
	}
	c.AuthzDecisions.WithLabelValues(guard, level, outcome).Inc()
}

// RecordRoleAssignment counts one role assignment attempt.
func (c *Collector) RecordRoleAssignment(role, outcome string) {
	if c == nil {
		return
	}
	c.RoleAssignments.WithLabelValues(role, outcome).Inc()
}

// RecordDemotion counts one cascade demotion.
func (c *Collector) RecordDemotion(from, to string) {
	if c == nil {
		return
	}
	c.Demotions.WithLabelValues(from, to).Inc()
}

// RecordTenantResolution counts one tenant gate outcome.
func (c *Collector) RecordTenantResolution(outcome string) {
	if c == nil {
		return
	}
	c.TenantResolutions.WithLabelValues(outcome).Inc()
}

// RecordTenantCache counts a cache hit or miss.
func (c *Collector) RecordTenantCache(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.TenantCacheLookups.WithLabelValues(result).Inc()
}

// RecordQuotaRejection counts a rate-limited request.
func (c *Collector) RecordQuotaRejection(tenant string) {
	if c == nil {
		return
	}
	c.QuotaRejections.WithLabelValues(tenant).Inc()
}

// RecordArchived adds n archived projects.
func (c *Collector) RecordArchived(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.ProjectsArchived.Add(float64(n))
}

// RecordHTTPRequest records an HTTP request metric.
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
