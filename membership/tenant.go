package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/denusbtw/projecthub-sub000/audit"
	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantAssignRequest asks for TargetUserID to hold Role in Tenant. Existing
// is the target's current membership, nil for a new member.
type TenantAssignRequest struct {
	Actor        *store.User
	Tenant       *store.Tenant
	TargetUserID uuid.UUID
	Role         role.Tenant
	Existing     *store.TenantMembership
}

// TenantEngine manages tenant memberships. A tenant has at most one OWNER;
// the rule is checked on write, so two concurrent grants can both pass.
type TenantEngine struct {
	stores store.Stores
	audit  *audit.Recorder
	logger *zap.Logger
}

// NewTenantEngine creates a TenantEngine. logger may be nil.
func NewTenantEngine(stores store.Stores, logger *zap.Logger) *TenantEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantEngine{
		stores: stores,
		audit:  audit.NewRecorder(stores.Audit, logger),
		logger: logger.Named("tenant_membership"),
	}
}

// Assign creates or updates a tenant membership.
func (e *TenantEngine) Assign(ctx context.Context, req TenantAssignRequest) (*store.TenantMembership, error) {
	if req.Actor == nil {
		return nil, policy.ErrAuthenticationRequired
	}
	if req.Tenant == nil {
		return nil, policy.ErrNotFound
	}
	if !req.Role.Valid() {
		return nil, invalid("role", msgInvalidRole)
	}
	if req.Existing != nil {
		if req.Existing.TenantID != req.Tenant.ID {
			return nil, policy.ErrNotFound
		}
		req.TargetUserID = req.Existing.UserID
	} else {
		_, err := e.stores.TenantMemberships.GetForUser(ctx, req.Tenant.ID, req.TargetUserID)
		if err == nil {
			return nil, invalid("user", msgTenantMemberExist)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load tenant membership: %w", err)
		}
	}

	if req.Role == role.TenantOwner {
		if ok, err := e.isOwner(ctx, req.Actor, req.Tenant); err != nil {
			return nil, err
		} else if !ok && !req.Actor.IsAdmin {
			return nil, invalid("role", msgOwnerGrant)
		}
		owners, err := e.stores.TenantMemberships.List(ctx, store.TenantMembershipFilter{
			TenantID: &req.Tenant.ID,
			Role:     role.TenantOwner,
		})
		if err != nil {
			return nil, fmt.Errorf("list tenant owners: %w", err)
		}
		for _, o := range owners {
			if o.UserID != req.TargetUserID {
				return nil, invalid("role", msgTenantHasOwner)
			}
		}
	}

	actorID := req.Actor.ID
	var m store.TenantMembership
	err := e.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		if req.Existing != nil {
			m = *req.Existing
			m.Role = req.Role
			m.UpdatedBy = &actorID
			if err := e.stores.TenantMemberships.Update(ctx, &m); err != nil {
				return fmt.Errorf("update tenant membership: %w", err)
			}
		} else {
			m = store.TenantMembership{
				TenantID:  req.Tenant.ID,
				UserID:    req.TargetUserID,
				Role:      req.Role,
				CreatedBy: &actorID,
				UpdatedBy: &actorID,
			}
			if err := e.stores.TenantMemberships.Create(ctx, &m); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return invalid("user", msgTenantMemberExist)
				}
				return fmt.Errorf("create tenant membership: %w", err)
			}
		}
		return e.audit.Record(ctx, audit.Event{
			TenantID:     &req.Tenant.ID,
			ActorID:      &actorID,
			Action:       audit.ActionTenantRoleAssigned,
			ResourceType: audit.ResourceTenantMembership,
			ResourceID:   &m.ID,
			Details:      map[string]any{"user_id": m.UserID.String(), "role": string(m.Role)},
		})
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("tenant role assigned",
		zap.String("tenant", req.Tenant.Subdomain),
		zap.Stringer("user", m.UserID),
		zap.String("role", string(m.Role)))
	return &m, nil
}

// Remove deletes a tenant membership and the user's memberships in the
// tenant's projects. The tenant owner cannot be removed.
func (e *TenantEngine) Remove(ctx context.Context, actor *store.User, tenant *store.Tenant, m *store.TenantMembership) error {
	if actor == nil {
		return policy.ErrAuthenticationRequired
	}
	if tenant == nil || m.TenantID != tenant.ID {
		return policy.ErrNotFound
	}
	if m.Role == role.TenantOwner {
		return invalid("user", msgLastOwner)
	}

	err := e.stores.Tx.RunInTx(ctx, func(ctx context.Context) error {
		projects, err := e.stores.Projects.List(ctx, store.ProjectFilter{TenantID: &tenant.ID, MemberID: &m.UserID})
		if err != nil {
			return fmt.Errorf("list member projects: %w", err)
		}
		for _, p := range projects {
			pm, err := e.stores.ProjectMemberships.GetForUser(ctx, p.ID, m.UserID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("load project membership: %w", err)
			}
			if err := e.stores.ProjectMemberships.Delete(ctx, pm.ID); err != nil {
				return fmt.Errorf("delete project membership: %w", err)
			}
		}
		if err := e.stores.TenantMemberships.Delete(ctx, m.ID); err != nil {
			return fmt.Errorf("delete tenant membership: %w", err)
		}
		return e.audit.Record(ctx, audit.Event{
			TenantID:     &tenant.ID,
			ActorID:      &actor.ID,
			Action:       audit.ActionMemberRemoved,
			ResourceType: audit.ResourceTenantMembership,
			ResourceID:   &m.ID,
			Details:      map[string]any{"user_id": m.UserID.String(), "projects": len(projects)},
		})
	})
	if err != nil {
		return err
	}
	e.logger.Info("tenant member removed", zap.String("tenant", tenant.Subdomain), zap.Stringer("user", m.UserID))
	return nil
}

func (e *TenantEngine) isOwner(ctx context.Context, u *store.User, tenant *store.Tenant) (bool, error) {
	tm, err := e.stores.TenantMemberships.GetForUser(ctx, tenant.ID, u.ID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load actor tenant membership: %w", err)
	}
	return tm.Role == role.TenantOwner, nil
}
