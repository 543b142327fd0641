package api

import (
	"net/http"
	"time"

	"github.com/denusbtw/projecthub-sub000/audit"
	"github.com/denusbtw/projecthub-sub000/membership"
	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/denusbtw/projecthub-sub000/tenant"
	"go.uber.org/zap"
)

// Config holds configuration for the API layer.
type Config struct {
	JWTSecret string //nolint:gosec // G117: config field
	JWTIssuer string
	TokenTTL  time.Duration

	// AuthRateLimit is the maximum number of requests per minute per IP
	// allowed on the token endpoint. Defaults to DefaultLoginsPerMinute.
	AuthRateLimit int
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Stores  store.Stores
	Gate    *tenant.Gate
	Quota   *tenant.QuotaEnforcer // optional
	Cache   *tenant.Cache         // optional
	Metrics *metrics.Collector    // optional
	Logger  *zap.Logger
}

// Router is the complete HTTP surface.
type Router struct {
	handler http.Handler
	mw      *Middleware
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

// Stop releases background resources held by the middleware.
func (rt *Router) Stop() { rt.mw.Stop() }

// NewRouter registers every route. Requests pass through request logging,
// panic recovery, tenant resolution, authentication, tenant admission and
// quota enforcement before reaching a handler.
func NewRouter(cfg Config, deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := deps.Stores
	secret := []byte(cfg.JWTSecret)
	mw := NewMiddleware(secret, cfg.JWTIssuer, s.Users, logger, deps.Metrics)
	authz := policy.NewAuthorizer(logger.Named("authz"), deps.Metrics)

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, tagRoute(pattern, h))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		mux.Handle("GET "+deps.Metrics.Path(), deps.Metrics.Handler())
	}

	// --- Auth ---
	authH := NewAuthHandler(s.Users, audit.NewRecorder(s.Audit, logger), secret, cfg.JWTIssuer, cfg.TokenTTL, logger)
	authRL := mw.ThrottleLogins(cfg.AuthRateLimit)
	mux.Handle("POST /api/v1/auth/token", tagRoute("POST /api/v1/auth/token", authRL(http.HandlerFunc(authH.Token))))
	handle("GET /api/v1/auth/me", authH.Me)

	// --- Platform administration ---
	adminH := NewAdminHandler(s, deps.Cache, authz, logger)
	handle("POST /admin/tenants", adminH.CreateTenant)
	handle("PATCH /admin/tenants/{id}", adminH.UpdateTenant)
	handle("POST /admin/users", adminH.CreateUser)

	// --- Tenant members ---
	tmH := NewTenantMemberHandler(s, membership.NewTenantEngine(s, logger), authz, logger)
	handle("GET /api/v1/tenant/members", tmH.List)
	handle("POST /api/v1/tenant/members", tmH.Create)
	handle("GET /api/v1/tenant/members/{id}", tmH.Get)
	handle("PATCH /api/v1/tenant/members/{id}", tmH.Update)
	handle("DELETE /api/v1/tenant/members/{id}", tmH.Delete)

	// --- Projects ---
	projH := NewProjectHandler(s, authz, logger)
	handle("GET /api/v1/projects", projH.List)
	handle("POST /api/v1/projects", projH.Create)
	handle("GET /api/v1/projects/{project_id}", projH.Get)
	handle("PATCH /api/v1/projects/{project_id}", projH.Update)
	handle("DELETE /api/v1/projects/{project_id}", projH.Delete)

	// --- Project members ---
	memH := NewMemberHandler(s, membership.NewEngine(s, logger, deps.Metrics), authz, logger)
	handle("GET /api/v1/projects/{project_id}/members", memH.List)
	handle("POST /api/v1/projects/{project_id}/members", memH.Create)
	handle("GET /api/v1/projects/{project_id}/members/{id}", memH.Get)
	handle("PATCH /api/v1/projects/{project_id}/members/{id}", memH.Update)
	handle("DELETE /api/v1/projects/{project_id}/members/{id}", memH.Delete)

	// --- Tasks ---
	taskH := NewTaskHandler(s, authz, logger)
	handle("GET /api/v1/projects/{project_id}/tasks", taskH.List)
	handle("POST /api/v1/projects/{project_id}/tasks", taskH.Create)
	handle("GET /api/v1/projects/{project_id}/tasks/{task_id}", taskH.Get)
	handle("PATCH /api/v1/projects/{project_id}/tasks/{task_id}", taskH.Update)
	handle("DELETE /api/v1/projects/{project_id}/tasks/{task_id}", taskH.Delete)

	// --- Comments ---
	comH := NewCommentHandler(s, authz, logger)
	handle("GET /api/v1/projects/{project_id}/tasks/{task_id}/comments", comH.List)
	handle("POST /api/v1/projects/{project_id}/tasks/{task_id}/comments", comH.Create)
	handle("GET /api/v1/projects/{project_id}/tasks/{task_id}/comments/{id}", comH.Get)
	handle("PATCH /api/v1/projects/{project_id}/tasks/{task_id}/comments/{id}", comH.Update)
	handle("DELETE /api/v1/projects/{project_id}/tasks/{task_id}/comments/{id}", comH.Delete)

	// --- Attachments ---
	attH := NewAttachmentHandler(s, authz, logger)
	handle("GET /api/v1/projects/{project_id}/tasks/{task_id}/attachments", attH.List)
	handle("POST /api/v1/projects/{project_id}/tasks/{task_id}/attachments", attH.Create)
	handle("GET /api/v1/projects/{project_id}/tasks/{task_id}/attachments/{id}", attH.Get)
	handle("DELETE /api/v1/projects/{project_id}/tasks/{task_id}/attachments/{id}", attH.Delete)

	var h http.Handler = mux
	if deps.Quota != nil {
		h = deps.Quota.Process(h)
	}
	h = deps.Gate.Admission(userOf)(h)
	h = mw.Authenticate(h)
	h = deps.Gate.Middleware(h)
	h = mw.Recover(h)
	h = mw.Logging(h)

	return &Router{handler: h, mw: mw}
}
