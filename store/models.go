package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/google/uuid"
)

// ProjectStatus represents the lifecycle status of a project.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusPending  ProjectStatus = "pending"
	ProjectStatusArchived ProjectStatus = "archived"
)

// ValidProjectStatuses is the set of valid project status values.
var ValidProjectStatuses = map[ProjectStatus]bool{
	ProjectStatusActive:   true,
	ProjectStatusPending:  true,
	ProjectStatusArchived: true,
}

// ErrInvalidDateRange is returned when a project's start date is after its end date.
var ErrInvalidDateRange = errors.New("start date must not be after end date")

// User represents a platform user.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	IsAdmin      bool      `json:"is_admin"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Tenant is the isolation boundary for users, projects and configuration.
type Tenant struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Subdomain string     `json:"subdomain"`
	Active    bool       `json:"active"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TenantMembership links a user to a tenant.
type TenantMembership struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	UserID    uuid.UUID   `json:"user_id"`
	Role      role.Tenant `json:"role"`
	CreatedBy *uuid.UUID  `json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID  `json:"updated_by,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Project belongs to exactly one tenant.
type Project struct {
	ID          uuid.UUID     `json:"id"`
	TenantID    uuid.UUID     `json:"tenant_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	StartDate   *time.Time    `json:"start_date,omitempty"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
	CloseDate   *time.Time    `json:"close_date,omitempty"`
	CreatedBy   *uuid.UUID    `json:"created_by,omitempty"`
	UpdatedBy   *uuid.UUID    `json:"updated_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Validate checks the project's status and date range.
func (p *Project) Validate() error {
	if p.Status != "" && !ValidProjectStatuses[p.Status] {
		return errors.New("invalid project status")
	}
	if p.StartDate != nil && p.EndDate != nil && p.StartDate.After(*p.EndDate) {
		return ErrInvalidDateRange
	}
	return nil
}

// ProjectMembership links a user to a project with a project role.
type ProjectMembership struct {
	ID        uuid.UUID    `json:"id"`
	ProjectID uuid.UUID    `json:"project_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Role      role.Project `json:"role"`
	CreatedBy *uuid.UUID   `json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID   `json:"updated_by,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Task belongs to one project. ResponsibleID is the task-level authorization subject.
type Task struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	ResponsibleID *uuid.UUID `json:"responsible_id,omitempty"`
	Status        string     `json:"status"`
	Priority      int        `json:"priority"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	CreatedBy     *uuid.UUID `json:"created_by,omitempty"`
	UpdatedBy     *uuid.UUID `json:"updated_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Comment is attached to a task.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attachment is file metadata attached to a task, optionally through a comment.
type Attachment struct {
	ID          uuid.UUID  `json:"id"`
	TaskID      uuid.UUID  `json:"task_id"`
	CommentID   *uuid.UUID `json:"comment_id,omitempty"`
	UploadedBy  uuid.UUID  `json:"uploaded_by"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type,omitempty"`
	Size        int64      `json:"size"`
	StorageKey  string     `json:"storage_key"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AuditEntry represents an entry in the audit log.
type AuditEntry struct {
	ID           int64           `json:"id"`
	TenantID     *uuid.UUID      `json:"tenant_id,omitempty"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *uuid.UUID      `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// --- Filters ---

// TenantMembershipFilter specifies criteria for listing tenant memberships.
type TenantMembershipFilter struct {
	TenantID   *uuid.UUID
	UserID     *uuid.UUID
	Role       role.Tenant
	Pagination Pagination
}

// ProjectFilter specifies criteria for listing projects.
type ProjectFilter struct {
	TenantID *uuid.UUID
	// MemberID restricts results to projects the user holds a membership in.
	MemberID   *uuid.UUID
	Status     ProjectStatus
	Pagination Pagination
}

// ProjectMembershipFilter specifies criteria for listing project memberships.
type ProjectMembershipFilter struct {
	ProjectID  *uuid.UUID
	UserID     *uuid.UUID
	Role       role.Project
	Pagination Pagination
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	ProjectID     *uuid.UUID
	ResponsibleID *uuid.UUID
	Pagination    Pagination
}

// CommentFilter specifies criteria for listing comments.
type CommentFilter struct {
	TaskID     *uuid.UUID
	Pagination Pagination
}

// AttachmentFilter specifies criteria for listing attachments.
type AttachmentFilter struct {
	TaskID     *uuid.UUID
	CommentID  *uuid.UUID
	Pagination Pagination
}

// AuditFilter specifies criteria for querying audit entries.
type AuditFilter struct {
	TenantID     *uuid.UUID
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Pagination   Pagination
}
