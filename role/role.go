// Package role defines the tenant and project role scopes and the total order
// used for authority comparisons between project roles.
package role

import "fmt"

// Tenant is a role held by a user within a tenant.
type Tenant string

const (
	TenantOwner Tenant = "owner"
	TenantUser  Tenant = "user"
)

// Valid reports whether t is a known tenant role.
func (t Tenant) Valid() bool {
	return t == TenantOwner || t == TenantUser
}

// ParseTenant converts a string into a Tenant role.
func ParseTenant(s string) (Tenant, error) {
	t := Tenant(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid tenant role %q", s)
	}
	return t, nil
}

// Project is a role held by a user within a project.
type Project string

const (
	ProjectOwner       Project = "owner"
	ProjectSupervisor  Project = "supervisor"
	ProjectResponsible Project = "responsible"
	ProjectUser        Project = "user"
	ProjectGuest       Project = "guest"
	ProjectReader      Project = "reader"
)

// projectRank maps project roles to their authority. Higher rank = more authority.
var projectRank = map[Project]int{
	ProjectOwner:       5,
	ProjectSupervisor:  4,
	ProjectResponsible: 3,
	ProjectUser:        2,
	ProjectGuest:       1,
	ProjectReader:      0,
}

// demotion is the fixed one-rank-down chain applied to a displaced holder of a
// singular role.
var demotion = map[Project]Project{
	ProjectOwner:       ProjectSupervisor,
	ProjectSupervisor:  ProjectResponsible,
	ProjectResponsible: ProjectUser,
}

// Valid reports whether p is a known project role.
func (p Project) Valid() bool {
	_, ok := projectRank[p]
	return ok
}

// Rank returns the authority of p. Unknown roles rank below READER.
func (p Project) Rank() int {
	r, ok := projectRank[p]
	if !ok {
		return -1
	}
	return r
}

// AtLeast returns true if p carries at least the authority of min.
func (p Project) AtLeast(min Project) bool {
	return p.Valid() && p.Rank() >= min.Rank()
}

// Singular reports whether at most one membership per project may hold p.
func (p Project) Singular() bool {
	_, ok := demotion[p]
	return ok
}

// Staff reports whether p is RESPONSIBLE or above.
func (p Project) Staff() bool {
	return p.AtLeast(ProjectResponsible)
}

// Demoted returns the role a displaced holder of p falls to. ok is false for
// non-singular roles, which are never demoted.
func (p Project) Demoted() (Project, bool) {
	next, ok := demotion[p]
	return next, ok
}

// ParseProject converts a string into a Project role.
func ParseProject(s string) (Project, error) {
	p := Project(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid project role %q", s)
	}
	return p, nil
}

// SingularRoles returns the singular project roles from highest to lowest.
func SingularRoles() []Project {
	return []Project{ProjectOwner, ProjectSupervisor, ProjectResponsible}
}

// ProjectRoles returns every project role from highest to lowest.
func ProjectRoles() []Project {
	return []Project{ProjectOwner, ProjectSupervisor, ProjectResponsible, ProjectUser, ProjectGuest, ProjectReader}
}
