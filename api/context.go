package api

import (
	"context"
	"net/http"

	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/denusbtw/projecthub-sub000/tenant"
	"github.com/google/uuid"
)

type contextKey int

const contextKeyUser contextKey = iota

// SetUserContext returns a new context with the user attached.
func SetUserContext(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, u)
}

// UserFromContext extracts the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(contextKeyUser).(*store.User)
	return u
}

// userOf adapts UserFromContext for tenant.Gate.Admission.
func userOf(r *http.Request) *store.User {
	return UserFromContext(r.Context())
}

// authzRequest builds the authorization context of r from the authenticated
// user, the resolved tenant and the project_id / task_id route values. A
// malformed route id yields policy.ErrNotFound.
func authzRequest(r *http.Request) (*policy.Request, error) {
	req := &policy.Request{
		Actor:  UserFromContext(r.Context()),
		Tenant: tenant.FromContext(r.Context()),
		Method: r.Method,
	}
	var err error
	if req.ProjectID, err = pathID(r, "project_id"); err != nil {
		return nil, err
	}
	if req.TaskID, err = pathID(r, "task_id"); err != nil {
		return nil, err
	}
	return req, nil
}

// pathID parses the named route value. An absent value yields (nil, nil).
func pathID(r *http.Request, name string) (*uuid.UUID, error) {
	v := r.PathValue(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, policy.ErrNotFound
	}
	return &id, nil
}

// mustPathID is pathID for routes where the value is always present.
func mustPathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := pathID(r, name)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, policy.ErrNotFound
	}
	return *id, nil
}
