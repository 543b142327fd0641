package policy

import "github.com/denusbtw/projecthub-sub000/role"

// Rules is the per-endpoint guard table.
type Rules struct {
	ProjectList         *Guard
	ProjectCreate       *Guard
	Project             *Guard
	ProjectDelete       *Guard
	ProjectMembers      *Guard
	ProjectMemberDelete *Guard
	Tasks               *Guard
	TaskManage          *Guard
	Comments            *Guard
	Attachments         *Guard
	TenantMembers       *Guard
	TenantMemberDelete  *Guard
	Admin               *Guard
}

// NewRules builds the guard table over lookup.
func NewRules(lookup Lookup) *Rules {
	c := NewChecks(lookup)

	tenantAdmin := Any(IsPlatformAdmin(), c.IsTenantOwner())
	tenantAccess := All(IsAuthenticated(), c.InTenant(), Any(IsPlatformAdmin(), c.IsTenantMember()))
	projectAccess := All(IsAuthenticated(), c.InTenant(), Any(tenantAdmin, c.IsProjectMember()))
	// Readers never write; guests and above may author their own comments
	// and attachments.
	ownWork := And(c.HasProjectRole(role.ProjectGuest), IsAuthor())

	return &Rules{
		ProjectList: &Guard{
			Name:   "project_list",
			Access: tenantAccess,
		},
		ProjectCreate: &Guard{
			Name:       "project_create",
			Access:     tenantAccess,
			Permission: tenantAdmin,
		},
		Project: &Guard{
			Name:       "project",
			Access:     projectAccess,
			Permission: Any(ReadOnly(), tenantAdmin, c.HasProjectRole(role.ProjectSupervisor)),
		},
		ProjectDelete: &Guard{
			Name:       "project_delete",
			Access:     projectAccess,
			Permission: Any(tenantAdmin, c.IsProjectOwner()),
		},
		ProjectMembers: &Guard{
			Name:       "project_members",
			Access:     projectAccess,
			Permission: Any(ReadOnly(), tenantAdmin, c.IsProjectStaff()),
		},
		ProjectMemberDelete: &Guard{
			Name:       "project_member_delete",
			Access:     projectAccess,
			Permission: Any(tenantAdmin, c.IsProjectStaff(), IsMembershipSelf()),
		},
		Tasks: &Guard{
			Name:       "tasks",
			Access:     projectAccess,
			Permission: Any(ReadOnly(), tenantAdmin, c.IsProjectStaff(), c.IsTaskResponsible()),
		},
		// Deleting a task or handing it to another user is staff work even
		// for the task's responsible user.
		TaskManage: &Guard{
			Name:       "task_manage",
			Access:     projectAccess,
			Permission: Any(tenantAdmin, c.IsProjectStaff()),
		},
		Comments: &Guard{
			Name:       "comments",
			Access:     projectAccess,
			Permission: Any(ReadOnly(), tenantAdmin, c.IsProjectStaff(), ownWork),
		},
		Attachments: &Guard{
			Name:       "attachments",
			Access:     projectAccess,
			Permission: Any(ReadOnly(), tenantAdmin, c.IsProjectStaff(), ownWork),
		},
		TenantMembers: &Guard{
			Name:       "tenant_members",
			Access:     tenantAccess,
			Permission: Any(ReadOnly(), tenantAdmin),
		},
		TenantMemberDelete: &Guard{
			Name:       "tenant_member_delete",
			Access:     tenantAccess,
			Permission: Any(tenantAdmin, IsMembershipSelf()),
		},
		Admin: &Guard{
			Name:       "admin",
			Access:     IsAuthenticated(),
			Permission: IsPlatformAdmin(),
		},
	}
}
