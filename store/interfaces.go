package store

import (
	"context"
	"time"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/google/uuid"
)

// Pagination holds common pagination parameters.
type Pagination struct {
	Offset int
	Limit  int
}

// DefaultPagination returns a Pagination with sensible defaults.
func DefaultPagination() Pagination {
	return Pagination{Offset: 0, Limit: 50}
}

// TxManager runs fn inside a single database transaction. The transaction
// travels in the context passed to fn; stores called with that context join it.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserStore defines persistence operations for users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}

// TenantStore defines persistence operations for tenants.
type TenantStore interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error
}

// TenantMembershipStore defines persistence operations for tenant memberships.
type TenantMembershipStore interface {
	Create(ctx context.Context, m *TenantMembership) error
	Get(ctx context.Context, id uuid.UUID) (*TenantMembership, error)
	// GetForUser returns the user's membership in the tenant.
	GetForUser(ctx context.Context, tenantID, userID uuid.UUID) (*TenantMembership, error)
	Update(ctx context.Context, m *TenantMembership) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f TenantMembershipFilter) ([]*TenantMembership, error)
}

// ProjectStore defines persistence operations for projects.
type ProjectStore interface {
	Create(ctx context.Context, p *Project) error
	Get(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ProjectFilter) ([]*Project, error)
	// ArchiveEnded archives every non-archived project whose end date is
	// before now and returns the number of projects changed.
	ArchiveEnded(ctx context.Context, now time.Time) (int64, error)
}

// ProjectMembershipStore defines persistence operations for project memberships.
type ProjectMembershipStore interface {
	Create(ctx context.Context, m *ProjectMembership) error
	Get(ctx context.Context, id uuid.UUID) (*ProjectMembership, error)
	// GetForUser returns the user's membership in the project.
	GetForUser(ctx context.Context, projectID, userID uuid.UUID) (*ProjectMembership, error)
	// GetByRole returns the membership holding r in the project. Inside a
	// transaction the row is locked until commit.
	GetByRole(ctx context.Context, projectID uuid.UUID, r role.Project) (*ProjectMembership, error)
	Update(ctx context.Context, m *ProjectMembership) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ProjectMembershipFilter) ([]*ProjectMembership, error)
}

// TaskStore defines persistence operations for tasks.
type TaskStore interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f TaskFilter) ([]*Task, error)
}

// CommentStore defines persistence operations for comments.
type CommentStore interface {
	Create(ctx context.Context, c *Comment) error
	Get(ctx context.Context, id uuid.UUID) (*Comment, error)
	Update(ctx context.Context, c *Comment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f CommentFilter) ([]*Comment, error)
}

// AttachmentStore defines persistence operations for attachment metadata.
type AttachmentStore interface {
	Create(ctx context.Context, a *Attachment) error
	Get(ctx context.Context, id uuid.UUID) (*Attachment, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f AttachmentFilter) ([]*Attachment, error)
}

// AuditStore defines persistence operations for audit log entries.
type AuditStore interface {
	// Record adds an audit entry.
	Record(ctx context.Context, e *AuditEntry) error
	// Query returns audit entries matching the filter.
	Query(ctx context.Context, f AuditFilter) ([]*AuditEntry, error)
}

// Stores groups every store used by the service.
type Stores struct {
	Users              UserStore
	Tenants            TenantStore
	TenantMemberships  TenantMembershipStore
	Projects           ProjectStore
	ProjectMemberships ProjectMembershipStore
	Tasks              TaskStore
	Comments           CommentStore
	Attachments        AttachmentStore
	Audit              AuditStore
	Tx                 TxManager
}
