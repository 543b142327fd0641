// Package membership applies project and tenant role changes: authority
// checks, single-occupancy roles and the demotion cascade.
package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/denusbtw/projecthub-sub000/audit"
	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssignRequest asks for TargetUserID to hold Role in Project. Existing is the
// target's current membership for a role change and nil for a new member.
type AssignRequest struct {
	Actor        *store.User
	Tenant       *store.Tenant
	Project      *store.Project
	TargetUserID uuid.UUID
	Role         role.Project
	Existing     *store.ProjectMembership
}

// AssignResult holds every membership the assignment wrote.
type AssignResult struct {
	Membership *store.ProjectMembership
	Demoted    []*store.ProjectMembership
}

// RemoveRequest asks for Membership to be deleted from Project.
type RemoveRequest struct {
	Actor      *store.User
	Tenant     *store.Tenant
	Project    *store.Project
	Membership *store.ProjectMembership
}

// demotion moves a singular-role holder one rank down.
type demotion struct {
	membership *store.ProjectMembership
	from, to   role.Project
}

// Engine validates and commits project role assignments.
type Engine struct {
	stores  store.Stores
	audit   *audit.Recorder
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewEngine creates an Engine. stores must provide TenantMemberships,
// ProjectMemberships, Audit and Tx. logger and m may be nil.
func NewEngine(stores store.Stores, logger *zap.Logger, m *metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		stores:  stores,
		audit:   audit.NewRecorder(stores.Audit, logger),
		logger:  logger.Named("membership"),
		metrics: m,
	}
}

// Assign validates req and commits the new role together with any cascade
// demotions in one transaction.
func (e *Engine) Assign(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	res, err := e.assign(ctx, req)
	e.metrics.RecordRoleAssignment(string(req.Role), outcome(err))
	if err != nil {
		e.logger.Debug("role assignment rejected",
			zap.String("role", string(req.Role)),
			zap.Stringer("target", req.TargetUserID),
			zap.Error(err))
		return nil, err
	}
	e.logger.Info("role assigned",
		zap.Stringer("project", res.Membership.ProjectID),
		zap.Stringer("user", res.Membership.UserID),
		zap.String("role", string(res.Membership.Role)),
		zap.Int("demoted", len(res.Demoted)))
	return res, nil
}

func (e *Engine) assign(ctx context.Context, req AssignRequest) (*AssignResult, error) {
	if err := checkScope(req.Actor, req.Tenant, req.Project); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, invalid("role", msgInvalidRole)
	}
	if req.Existing != nil {
		if req.Existing.ProjectID != req.Project.ID {
			return nil, invalid("user", msgWrongProject)
		}
		req.TargetUserID = req.Existing.UserID
		if req.Existing.Role == req.Role {
			cp := *req.Existing
			return &AssignResult{Membership: &cp}, nil
		}
	} else if err := e.checkCreate(ctx, req); err != nil {
		return nil, err
	}

	privileged, actorRole, err := e.standing(ctx, req.Actor, req.Tenant, req.Project)
	if err != nil {
		return nil, err
	}
	if !privileged {
		if actorRole.Rank() < req.Role.Rank() {
			return nil, invalid("role", msgHigherThanOwn)
		}
		if req.Existing != nil && actorRole.Rank() < req.Existing.Role.Rank() {
			return nil, invalid("role", msgOutranked)
		}
	}

	occupants, err := e.occupants(ctx, req.Project.ID)
	if err != nil {
		return nil, err
	}
	if holder := occupants[req.Role]; req.Role.Singular() && holder != nil && holder.UserID != req.TargetUserID && !privileged {
		return nil, invalid("role", msgFreeRoleFirst)
	}

	plan := planCascade(occupants, req.Role, req.TargetUserID)
	res, err := e.commit(ctx, req, occupants, plan)
	if err != nil {
		return nil, err
	}
	for _, d := range plan {
		e.metrics.RecordDemotion(string(d.from), string(d.to))
	}
	return res, nil
}

// checkCreate applies the guards for adding a new member.
func (e *Engine) checkCreate(ctx context.Context, req AssignRequest) error {
	tm, err := e.stores.TenantMemberships.GetForUser(ctx, req.Tenant.ID, req.TargetUserID)
	if errors.Is(err, store.ErrNotFound) {
		return invalid("user", msgNotTenantMember)
	}
	if err != nil {
		return fmt.Errorf("load tenant membership: %w", err)
	}
	if tm.Role == role.TenantOwner {
		return invalid("user", msgTenantOwner)
	}

	pm, err := e.stores.ProjectMemberships.GetForUser(ctx, req.Project.ID, req.TargetUserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("load project membership: %w", err)
	case pm.Role == role.ProjectOwner || pm.Role == role.ProjectSupervisor:
		return invalid("user", msgActingParty)
	default:
		return invalid("user", msgAlreadyMember)
	}
}

// standing reports whether actor takes the privileged path (platform admin,
// tenant owner or project owner) and the actor's own project role, which is
// empty when the actor has no membership.
func (e *Engine) standing(ctx context.Context, actor *store.User, tenant *store.Tenant, project *store.Project) (bool, role.Project, error) {
	var own role.Project
	pm, err := e.stores.ProjectMemberships.GetForUser(ctx, project.ID, actor.ID)
	switch {
	case err == nil:
		own = pm.Role
	case !errors.Is(err, store.ErrNotFound):
		return false, "", fmt.Errorf("load actor membership: %w", err)
	}
	if actor.IsAdmin || own == role.ProjectOwner {
		return true, own, nil
	}
	tm, err := e.stores.TenantMemberships.GetForUser(ctx, tenant.ID, actor.ID)
	switch {
	case err == nil:
		return tm.Role == role.TenantOwner, own, nil
	case errors.Is(err, store.ErrNotFound):
		return false, own, nil
	}
	return false, "", fmt.Errorf("load actor tenant membership: %w", err)
}

// occupants returns the current holder of each singular role.
func (e *Engine) occupants(ctx context.Context, projectID uuid.UUID) (map[role.Project]*store.ProjectMembership, error) {
	out := make(map[role.Project]*store.ProjectMembership, 3)
	for _, r := range role.SingularRoles() {
		m, err := e.stores.ProjectMemberships.GetByRole(ctx, projectID, r)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s holder: %w", r, err)
		}
		out[r] = m
	}
	return out, nil
}

// planCascade walks the demotion chain from r. Each displaced holder moves one
// rank down, displacing the next singular holder in turn, until a vacant or
// non-singular role is reached or the target's own slot is.
func planCascade(occupants map[role.Project]*store.ProjectMembership, r role.Project, target uuid.UUID) []demotion {
	var plan []demotion
	cur := r
	for cur.Singular() {
		holder := occupants[cur]
		if holder == nil || holder.UserID == target {
			break
		}
		next, ok := cur.Demoted()
		if !ok {
			break
		}
		plan = append(plan, demotion{membership: holder, from: cur, to: next})
		cur = next
	}
	return plan
}

// commit re-reads every slot the plan touches, then writes demotions bottom-up
// and the target last so the singular-role index never sees two holders.
func (e *Engine) commit(ctx context.Context, req AssignRequest, snapshot map[role.Project]*store.ProjectMembership, plan []demotion) (*AssignResult, error) {
	var result *AssignResult
	err := e.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		touched := []role.Project{req.Role}
		for _, d := range plan {
			touched = append(touched, d.to)
		}
		if req.Existing != nil {
			touched = append(touched, req.Existing.Role)
		}
		for _, r := range touched {
			if !r.Singular() {
				continue
			}
			if err := e.revalidate(ctx, req.Project.ID, r, snapshot[r]); err != nil {
				return err
			}
		}

		actorID := req.Actor.ID
		res := &AssignResult{}

		var from role.Project
		if req.Existing != nil && req.Existing.Role.Singular() {
			// Vacate the target's slot so a demotion may land in it.
			from = req.Existing.Role
			parked := *req.Existing
			parked.Role = role.ProjectUser
			parked.UpdatedBy = &actorID
			if err := e.stores.ProjectMemberships.Update(ctx, &parked); err != nil {
				return mapWriteError(req.Existing.Role, err)
			}
		} else if req.Existing != nil {
			from = req.Existing.Role
		}

		for i := len(plan) - 1; i >= 0; i-- {
			d := plan[i]
			m := *d.membership
			m.Role = d.to
			m.UpdatedBy = &actorID
			if err := e.stores.ProjectMemberships.Update(ctx, &m); err != nil {
				return mapWriteError(d.to, err)
			}
			if err := e.audit.RoleChange(ctx, req.Tenant.ID, actorID, audit.ActionRoleDemoted, &m, d.from); err != nil {
				return err
			}
			res.Demoted = append([]*store.ProjectMembership{&m}, res.Demoted...)
		}

		var target store.ProjectMembership
		if req.Existing != nil {
			target = *req.Existing
			target.Role = req.Role
			target.UpdatedBy = &actorID
			if err := e.stores.ProjectMemberships.Update(ctx, &target); err != nil {
				return mapWriteError(req.Role, err)
			}
		} else {
			target = store.ProjectMembership{
				ProjectID: req.Project.ID,
				UserID:    req.TargetUserID,
				Role:      req.Role,
				CreatedBy: &actorID,
				UpdatedBy: &actorID,
			}
			if err := e.stores.ProjectMemberships.Create(ctx, &target); err != nil {
				return mapWriteError(req.Role, err)
			}
		}
		if err := e.audit.RoleChange(ctx, req.Tenant.ID, actorID, audit.ActionRoleAssigned, &target, from); err != nil {
			return err
		}
		res.Membership = &target
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// revalidate fails with ConflictError when the holder of r is no longer the
// one observed before the transaction.
func (e *Engine) revalidate(ctx context.Context, projectID uuid.UUID, r role.Project, want *store.ProjectMembership) error {
	got, err := e.stores.ProjectMemberships.GetByRole(ctx, projectID, r)
	if errors.Is(err, store.ErrNotFound) {
		got, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("recheck %s holder: %w", r, err)
	}
	switch {
	case got == nil && want == nil:
		return nil
	case got == nil || want == nil, got.ID != want.ID, got.UserID != want.UserID:
		return &ConflictError{Role: r}
	}
	return nil
}

// mapWriteError turns a uniqueness violation at commit into a conflict. A
// second membership for the same user is a validation error instead.
func mapWriteError(r role.Project, err error) error {
	if errors.Is(err, store.ErrAlreadyMember) {
		return invalid("user", msgAlreadyMember)
	}
	if errors.Is(err, store.ErrDuplicate) {
		return &ConflictError{Role: r}
	}
	return fmt.Errorf("write membership: %w", err)
}

// Remove deletes a project membership. Members may always remove themselves;
// otherwise the actor must be privileged or staff ranked above the member.
func (e *Engine) Remove(ctx context.Context, req RemoveRequest) error {
	if err := checkScope(req.Actor, req.Tenant, req.Project); err != nil {
		return err
	}
	m := req.Membership
	if m.ProjectID != req.Project.ID {
		return invalid("user", msgWrongProject)
	}
	if m.UserID != req.Actor.ID {
		privileged, own, err := e.standing(ctx, req.Actor, req.Tenant, req.Project)
		if err != nil {
			return err
		}
		if !privileged && (!own.Staff() || own.Rank() <= m.Role.Rank()) {
			return invalid("user", msgCannotRemove)
		}
	}

	err := e.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.stores.ProjectMemberships.Delete(ctx, m.ID); err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}
		return e.audit.RoleChange(ctx, req.Tenant.ID, req.Actor.ID, audit.ActionMemberRemoved, m, m.Role)
	})
	if err != nil {
		return err
	}
	e.logger.Info("member removed",
		zap.Stringer("project", m.ProjectID),
		zap.Stringer("user", m.UserID),
		zap.Stringer("actor", req.Actor.ID))
	return nil
}

func checkScope(actor *store.User, tenant *store.Tenant, project *store.Project) error {
	if actor == nil {
		return policy.ErrAuthenticationRequired
	}
	if tenant == nil || project == nil || project.TenantID != tenant.ID {
		return policy.ErrNotFound
	}
	return nil
}

func outcome(err error) string {
	var ve *ValidationError
	var ce *ConflictError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "rejected"
	case errors.As(err, &ce):
		return "conflict"
	}
	return "error"
}
