package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
)

// IsAuthenticated grants any identified actor. Anonymous actors get
// ErrAuthenticationRequired at both levels.
func IsAuthenticated() Policy {
	check := func(req *Request) (bool, error) {
		if req.Actor == nil {
			return false, ErrAuthenticationRequired
		}
		return true, nil
	}
	return &Predicate{
		Name:           "is_authenticated",
		CollectionFunc: func(_ context.Context, req *Request) (bool, error) { return check(req) },
		ObjectFunc:     func(_ context.Context, req *Request, _ any) (bool, error) { return check(req) },
	}
}

// IsPlatformAdmin grants actors carrying the global administrator flag.
func IsPlatformAdmin() Policy {
	check := func(req *Request) bool { return req.Actor != nil && req.Actor.IsAdmin }
	return &Predicate{
		Name:           "is_platform_admin",
		CollectionFunc: func(_ context.Context, req *Request) (bool, error) { return check(req), nil },
		ObjectFunc:     func(_ context.Context, req *Request, _ any) (bool, error) { return check(req), nil },
	}
}

// ReadOnly grants safe methods.
func ReadOnly() Policy {
	return &Predicate{
		Name:           "read_only",
		CollectionFunc: func(_ context.Context, req *Request) (bool, error) { return req.Safe(), nil },
		ObjectFunc:     func(_ context.Context, req *Request, _ any) (bool, error) { return req.Safe(), nil },
	}
}

// IsMembershipSelf grants object access to the user a membership belongs to.
// It does not restrict collection access.
func IsMembershipSelf() Policy {
	return &Predicate{
		Name: "is_membership_self",
		ObjectFunc: func(_ context.Context, req *Request, obj any) (bool, error) {
			if req.Actor == nil {
				return false, nil
			}
			switch v := obj.(type) {
			case *store.ProjectMembership:
				return v.UserID == req.Actor.ID, nil
			case *store.TenantMembership:
				return v.UserID == req.Actor.ID, nil
			}
			return false, nil
		},
	}
}

// IsAuthor grants object access to the author of a comment or the uploader
// of an attachment. It does not restrict collection access.
func IsAuthor() Policy {
	return &Predicate{
		Name: "is_author",
		ObjectFunc: func(_ context.Context, req *Request, obj any) (bool, error) {
			if req.Actor == nil {
				return false, nil
			}
			switch v := obj.(type) {
			case *store.Comment:
				return v.AuthorID == req.Actor.ID, nil
			case *store.Attachment:
				return v.UploadedBy == req.Actor.ID, nil
			}
			return false, nil
		},
	}
}

// Checks builds the primitives that need resource lookups.
type Checks struct {
	lookup   Lookup
	resolver *Resolver
}

// NewChecks creates Checks over lookup.
func NewChecks(lookup Lookup) *Checks {
	return &Checks{lookup: lookup, resolver: NewResolver(lookup)}
}

// IsTenantOwner grants the holder of the tenant OWNER role.
func (c *Checks) IsTenantOwner() Policy {
	return c.tenantRole("is_tenant_owner", func(m *store.TenantMembership) bool {
		return m.Role == role.TenantOwner
	})
}

// IsTenantMember grants any member of the request tenant.
func (c *Checks) IsTenantMember() Policy {
	return c.tenantRole("is_tenant_member", func(*store.TenantMembership) bool { return true })
}

func (c *Checks) tenantRole(name string, accept func(*store.TenantMembership) bool) Policy {
	check := func(ctx context.Context, req *Request) (bool, error) {
		if req.Actor == nil || req.Tenant == nil {
			return false, nil
		}
		m, err := c.lookup.TenantMembership(ctx, req.Tenant.ID, req.Actor.ID)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%s: %w", name, err)
		}
		return accept(m), nil
	}
	return &Predicate{
		Name:           name,
		CollectionFunc: check,
		ObjectFunc:     func(ctx context.Context, req *Request, _ any) (bool, error) { return check(ctx, req) },
	}
}

// InTenant grants when the routed project, or the resource, belongs to the
// request tenant. A resource of another tenant yields ErrNotFound so that it
// cannot be told apart from a missing one.
func (c *Checks) InTenant() Policy {
	return &Predicate{
		Name: "in_tenant",
		CollectionFunc: func(ctx context.Context, req *Request) (bool, error) {
			if req.Tenant == nil {
				return false, nil
			}
			if req.ProjectID != nil {
				if _, err := c.resolver.Project(ctx, req.Tenant, *req.ProjectID); err != nil {
					return false, err
				}
			}
			return true, nil
		},
		ObjectFunc: func(ctx context.Context, req *Request, obj any) (bool, error) {
			if req.Tenant == nil {
				return false, nil
			}
			if m, ok := obj.(*store.TenantMembership); ok {
				if m.TenantID != req.Tenant.ID {
					return false, ErrNotFound
				}
				return true, nil
			}
			p, err := c.resolver.ProjectOf(ctx, req.Tenant, obj)
			if err != nil {
				return false, err
			}
			return p != nil, nil
		},
	}
}

// IsProjectOwner grants the holder of the project OWNER role.
func (c *Checks) IsProjectOwner() Policy {
	return c.projectRole("is_project_owner", role.ProjectOwner)
}

// IsProjectStaff grants project roles of RESPONSIBLE and above.
func (c *Checks) IsProjectStaff() Policy {
	return c.projectRole("is_project_staff", role.ProjectResponsible)
}

// IsProjectMember grants any project membership.
func (c *Checks) IsProjectMember() Policy {
	return c.projectRole("is_project_member", role.ProjectReader)
}

// HasProjectRole grants project roles of min and above.
func (c *Checks) HasProjectRole(min role.Project) Policy {
	return c.projectRole("has_project_role("+string(min)+")", min)
}

// projectRole resolves the project from the route at collection level and
// from the resource at object level. Without a routed project id the
// collection check denies.
func (c *Checks) projectRole(name string, min role.Project) Policy {
	return &Predicate{
		Name: name,
		CollectionFunc: func(ctx context.Context, req *Request) (bool, error) {
			if req.Actor == nil || req.ProjectID == nil {
				return false, nil
			}
			p, err := c.resolver.Project(ctx, req.Tenant, *req.ProjectID)
			if err != nil {
				return false, err
			}
			return c.holds(ctx, p.ID, req.Actor.ID, min)
		},
		ObjectFunc: func(ctx context.Context, req *Request, obj any) (bool, error) {
			if req.Actor == nil {
				return false, nil
			}
			p, err := c.resolver.ProjectOf(ctx, req.Tenant, obj)
			if err != nil || p == nil {
				return false, err
			}
			return c.holds(ctx, p.ID, req.Actor.ID, min)
		},
	}
}

func (c *Checks) holds(ctx context.Context, projectID, userID uuid.UUID, min role.Project) (bool, error) {
	m, err := c.lookup.ProjectMembershipFor(ctx, projectID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("project membership lookup: %w", err)
	}
	return m.Role.AtLeast(min), nil
}

// IsTaskResponsible grants the responsible user of the routed task at
// collection level, and of the task a resource belongs to at object level.
// Without a routed task id the collection check denies.
func (c *Checks) IsTaskResponsible() Policy {
	return &Predicate{
		Name: "is_task_responsible",
		CollectionFunc: func(ctx context.Context, req *Request) (bool, error) {
			if req.Actor == nil || req.TaskID == nil {
				return false, nil
			}
			t, err := c.lookup.Task(ctx, *req.TaskID)
			if err != nil {
				return false, notFound(err)
			}
			return responsible(t, req.Actor.ID), nil
		},
		ObjectFunc: func(ctx context.Context, req *Request, obj any) (bool, error) {
			if req.Actor == nil {
				return false, nil
			}
			var taskID uuid.UUID
			switch v := obj.(type) {
			case *store.Task:
				return responsible(v, req.Actor.ID), nil
			case *store.Comment:
				taskID = v.TaskID
			case *store.Attachment:
				taskID = v.TaskID
			default:
				return false, nil
			}
			t, err := c.lookup.Task(ctx, taskID)
			if err != nil {
				return false, notFound(err)
			}
			return responsible(t, req.Actor.ID), nil
		},
	}
}

func responsible(t *store.Task, userID uuid.UUID) bool {
	return t.ResponsibleID != nil && *t.ResponsibleID == userID
}
