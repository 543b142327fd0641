package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
)

// Lookup loads the resources the primitives need.
type Lookup interface {
	Project(ctx context.Context, id uuid.UUID) (*store.Project, error)
	ProjectMembership(ctx context.Context, id uuid.UUID) (*store.ProjectMembership, error)
	// ProjectMembershipFor returns the user's membership in the project.
	ProjectMembershipFor(ctx context.Context, projectID, userID uuid.UUID) (*store.ProjectMembership, error)
	Task(ctx context.Context, id uuid.UUID) (*store.Task, error)
	Comment(ctx context.Context, id uuid.UUID) (*store.Comment, error)
	Attachment(ctx context.Context, id uuid.UUID) (*store.Attachment, error)
	// TenantMembership returns the user's membership in the tenant.
	TenantMembership(ctx context.Context, tenantID, userID uuid.UUID) (*store.TenantMembership, error)
}

type storeLookup struct {
	s store.Stores
}

// NewStoreLookup adapts s to Lookup.
func NewStoreLookup(s store.Stores) Lookup {
	return &storeLookup{s: s}
}

func (l *storeLookup) Project(ctx context.Context, id uuid.UUID) (*store.Project, error) {
	return l.s.Projects.Get(ctx, id)
}

func (l *storeLookup) ProjectMembership(ctx context.Context, id uuid.UUID) (*store.ProjectMembership, error) {
	return l.s.ProjectMemberships.Get(ctx, id)
}

func (l *storeLookup) ProjectMembershipFor(ctx context.Context, projectID, userID uuid.UUID) (*store.ProjectMembership, error) {
	return l.s.ProjectMemberships.GetForUser(ctx, projectID, userID)
}

func (l *storeLookup) Task(ctx context.Context, id uuid.UUID) (*store.Task, error) {
	return l.s.Tasks.Get(ctx, id)
}

func (l *storeLookup) Comment(ctx context.Context, id uuid.UUID) (*store.Comment, error) {
	return l.s.Comments.Get(ctx, id)
}

func (l *storeLookup) Attachment(ctx context.Context, id uuid.UUID) (*store.Attachment, error) {
	return l.s.Attachments.Get(ctx, id)
}

func (l *storeLookup) TenantMembership(ctx context.Context, tenantID, userID uuid.UUID) (*store.TenantMembership, error) {
	return l.s.TenantMemberships.GetForUser(ctx, tenantID, userID)
}

// Resolver maps project-scoped resources to their project.
type Resolver struct {
	lookup Lookup
}

// NewResolver creates a Resolver over lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// ProjectOf returns the project res belongs to. It understands Project,
// ProjectMembership, Task, Comment and Attachment; any other value yields
// (nil, nil). A project outside tenant is reported as ErrNotFound, as is a
// missing parent.
func (r *Resolver) ProjectOf(ctx context.Context, tenant *store.Tenant, res any) (*store.Project, error) {
	var (
		p   *store.Project
		err error
	)
	switch v := res.(type) {
	case *store.Project:
		p = v
	case *store.ProjectMembership:
		p, err = r.lookup.Project(ctx, v.ProjectID)
	case *store.Task:
		p, err = r.lookup.Project(ctx, v.ProjectID)
	case *store.Comment:
		p, err = r.projectOfTask(ctx, v.TaskID)
	case *store.Attachment:
		p, err = r.projectOfTask(ctx, v.TaskID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, notFound(err)
	}
	if tenant != nil && p.TenantID != tenant.ID {
		return nil, ErrNotFound
	}
	return p, nil
}

// Project loads a project by id and checks it belongs to tenant.
func (r *Resolver) Project(ctx context.Context, tenant *store.Tenant, id uuid.UUID) (*store.Project, error) {
	p, err := r.lookup.Project(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	if tenant != nil && p.TenantID != tenant.ID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *Resolver) projectOfTask(ctx context.Context, taskID uuid.UUID) (*store.Project, error) {
	t, err := r.lookup.Task(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return r.lookup.Project(ctx, t.ProjectID)
}

// notFound turns a missing row into ErrNotFound and wraps anything else.
func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("policy lookup: %w", err)
}
