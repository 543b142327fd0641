// Package audit records security-relevant events in the audit log and the
// structured application log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action classifies audit events.
type Action string

const (
	ActionRoleAssigned       Action = "role_assigned"
	ActionRoleDemoted        Action = "role_demoted"
	ActionMemberRemoved      Action = "member_removed"
	ActionTenantRoleAssigned Action = "tenant_role_assigned"
	ActionAuth               Action = "auth"
	ActionAuthFailure        Action = "auth_failure"
	ActionProjectsArchived   Action = "projects_archived"
)

// Resource types.
const (
	ResourceProjectMembership = "project_membership"
	ResourceTenantMembership  = "tenant_membership"
	ResourceUser              = "user"
	ResourceProject           = "project"
)

// Event is a single audit record before persistence.
type Event struct {
	TenantID     *uuid.UUID
	ActorID      *uuid.UUID
	Action       Action
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]any
}

// Recorder writes events to an AuditStore. Called with a transactional
// context, the entry commits or rolls back with the surrounding change.
type Recorder struct {
	store  store.AuditStore
	logger *zap.Logger
}

// NewRecorder creates a Recorder. logger may be nil.
func NewRecorder(s store.AuditStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: s, logger: logger.Named("audit")}
}

// Record persists e and logs it.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	entry := &store.AuditEntry{
		TenantID:     e.TenantID,
		UserID:       e.ActorID,
		Action:       string(e.Action),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
	}
	if len(e.Details) > 0 {
		data, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		entry.Details = data
	}
	if err := r.store.Record(ctx, entry); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("action", entry.Action),
		zap.String("resource_type", entry.ResourceType),
	}
	if e.ResourceID != nil {
		fields = append(fields, zap.Stringer("resource_id", e.ResourceID))
	}
	if e.ActorID != nil {
		fields = append(fields, zap.Stringer("actor", e.ActorID))
	}
	if e.TenantID != nil {
		fields = append(fields, zap.Stringer("tenant", e.TenantID))
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}
	r.logger.Info("audit event", fields...)
	return nil
}

// RoleChange records a project membership moving from one role to another.
// from is empty for a new membership.
func (r *Recorder) RoleChange(ctx context.Context, tenantID, actorID uuid.UUID, action Action, m *store.ProjectMembership, from role.Project) error {
	return r.Record(ctx, Event{
		TenantID:     &tenantID,
		ActorID:      &actorID,
		Action:       action,
		ResourceType: ResourceProjectMembership,
		ResourceID:   &m.ID,
		Details: map[string]any{
			"project_id": m.ProjectID.String(),
			"user_id":    m.UserID.String(),
			"from":       string(from),
			"to":         string(m.Role),
		},
	})
}

// Auth records a login attempt. Failures to persist are logged, not returned.
func (r *Recorder) Auth(ctx context.Context, email, sourceIP string, userID *uuid.UUID, success bool) {
	action := ActionAuth
	if !success {
		action = ActionAuthFailure
	}
	err := r.Record(ctx, Event{
		ActorID:      userID,
		Action:       action,
		ResourceType: ResourceUser,
		ResourceID:   userID,
		Details:      map[string]any{"email": email, "source_ip": sourceIP},
	})
	if err != nil {
		r.logger.Error("failed to record auth event", zap.Error(err))
	}
}
