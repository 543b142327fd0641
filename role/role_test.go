package role

import "testing"

func TestProjectRankOrder(t *testing.T) {
	roles := ProjectRoles()
	for i := 1; i < len(roles); i++ {
		if roles[i-1].Rank() <= roles[i].Rank() {
			t.Errorf("expected %s to outrank %s", roles[i-1], roles[i])
		}
	}
	if ProjectOwner.Rank() != 5 || ProjectReader.Rank() != 0 {
		t.Errorf("unexpected bounds: owner=%d reader=%d", ProjectOwner.Rank(), ProjectReader.Rank())
	}
}

func TestProjectAtLeast(t *testing.T) {
	tests := []struct {
		role Project
		min  Project
		want bool
	}{
		{ProjectOwner, ProjectSupervisor, true},
		{ProjectResponsible, ProjectResponsible, true},
		{ProjectUser, ProjectResponsible, false},
		{ProjectReader, ProjectReader, true},
		{Project("bogus"), ProjectReader, false},
	}
	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.min); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestDemotionChain(t *testing.T) {
	// Walking the chain from OWNER must visit every singular role once and end at USER.
	seen := map[Project]bool{}
	cur := ProjectOwner
	for cur.Singular() {
		if seen[cur] {
			t.Fatalf("demotion chain loops at %s", cur)
		}
		seen[cur] = true
		next, ok := cur.Demoted()
		if !ok {
			t.Fatalf("singular role %s has no demotion", cur)
		}
		if cur.Rank()-next.Rank() != 1 {
			t.Fatalf("demotion %s -> %s skips a rank", cur, next)
		}
		cur = next
	}
	if cur != ProjectUser {
		t.Fatalf("chain ended at %s, want user", cur)
	}
	if len(seen) != len(SingularRoles()) {
		t.Fatalf("visited %d singular roles, want %d", len(seen), len(SingularRoles()))
	}
	for _, r := range []Project{ProjectUser, ProjectGuest, ProjectReader} {
		if _, ok := r.Demoted(); ok {
			t.Errorf("%s should not demote", r)
		}
	}
}

func TestStaff(t *testing.T) {
	if !ProjectResponsible.Staff() || !ProjectOwner.Staff() {
		t.Error("responsible and owner must be staff")
	}
	if ProjectUser.Staff() {
		t.Error("user must not be staff")
	}
}

func TestParse(t *testing.T) {
	if _, err := ParseProject("supervisor"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseProject("admin"); err == nil {
		t.Fatal("expected error for unknown project role")
	}
	if r, err := ParseTenant("owner"); err != nil || r != TenantOwner {
		t.Fatalf("ParseTenant(owner) = %q, %v", r, err)
	}
	if _, err := ParseTenant("supervisor"); err == nil {
		t.Fatal("expected error for unknown tenant role")
	}
}
