package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
	"go.uber.org/zap"
)

// base carries what every resource handler needs to authorize and load.
type base struct {
	stores   store.Stores
	rules    *policy.Rules
	authz    *policy.Authorizer
	resolver *policy.Resolver
	logger   *zap.Logger
}

func newBase(stores store.Stores, authz *policy.Authorizer, logger *zap.Logger) base {
	lookup := policy.NewStoreLookup(stores)
	return base{
		stores:   stores,
		rules:    policy.NewRules(lookup),
		authz:    authz,
		resolver: policy.NewResolver(lookup),
		logger:   logger,
	}
}

// collection runs g's collection checks for r. On denial the response is
// written and ok is false.
func (b *base) collection(w http.ResponseWriter, r *http.Request, g *policy.Guard) (*policy.Request, bool) {
	req, err := authzRequest(r)
	if err == nil {
		err = b.authz.Collection(r.Context(), g, req)
	}
	if err != nil {
		b.fail(w, err)
		return nil, false
	}
	return req, true
}

// object runs g's full checks against a loaded resource.
func (b *base) object(w http.ResponseWriter, r *http.Request, g *policy.Guard, req *policy.Request, obj any) bool {
	if err := b.authz.Object(r.Context(), g, req, obj); err != nil {
		b.fail(w, err)
		return false
	}
	return true
}

func (b *base) fail(w http.ResponseWriter, err error) {
	writeServiceError(w, b.logger, err)
}

// project loads the routed project within the request tenant.
func (b *base) project(ctx context.Context, req *policy.Request) (*store.Project, error) {
	if req.ProjectID == nil {
		return nil, policy.ErrNotFound
	}
	return b.resolver.Project(ctx, req.Tenant, *req.ProjectID)
}

// task loads the routed task and checks it belongs to the routed project.
func (b *base) task(ctx context.Context, req *policy.Request) (*store.Task, error) {
	if req.TaskID == nil || req.ProjectID == nil {
		return nil, policy.ErrNotFound
	}
	t, err := b.stores.Tasks.Get(ctx, *req.TaskID)
	if err != nil {
		return nil, err
	}
	if t.ProjectID != *req.ProjectID {
		return nil, policy.ErrNotFound
	}
	return t, nil
}

// seesAllProjects reports whether the actor may list every project of the
// tenant rather than only those they belong to.
func (b *base) seesAllProjects(ctx context.Context, req *policy.Request) (bool, error) {
	if req.Actor.IsAdmin {
		return true, nil
	}
	m, err := b.stores.TenantMemberships.GetForUser(ctx, req.Tenant.ID, req.Actor.ID)
	if err != nil {
		return false, err
	}
	return m.Role == role.TenantOwner, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
