package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// newTestPGStores opens a pool using the PG_URL env var, applies migrations
// and returns the PostgreSQL-backed stores. The test is skipped when PG_URL is
// not set.
func newTestPGStores(t *testing.T) (Stores, *pgxpool.Pool) {
	t.Helper()
	pgURL := os.Getenv("PG_URL")
	if pgURL == "" {
		t.Skip("PG_URL not set")
	}

	ctx := context.Background()
	pg, err := NewPGStore(ctx, PGConfig{URL: pgURL})
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	t.Cleanup(pg.Close)
	if err := NewMigrator(pg.Pool(), zap.NewNop()).Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pg.Stores(), pg.Pool()
}

func seedPGProject(t *testing.T, s Stores) (*User, *Project) {
	t.Helper()
	u := makeUser(uuid.NewString() + "@test.com")
	if err := s.Users.Create(ctx(), u); err != nil {
		t.Fatal(err)
	}
	tn := &Tenant{Name: "pg", Subdomain: "t" + uuid.NewString()[:8], Active: true}
	if err := s.Tenants.Create(ctx(), tn); err != nil {
		t.Fatal(err)
	}
	p := makeProject(tn.ID, "pg-project")
	if err := s.Projects.Create(ctx(), p); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = s.Projects.Delete(context.Background(), p.ID)
	})
	return u, p
}

func TestPGProjectMembershipStore_SingularRoleIndex(t *testing.T) {
	s, _ := newTestPGStores(t)
	_, p := seedPGProject(t, s)

	var users []*User
	for i := 0; i < 2; i++ {
		u := makeUser(uuid.NewString() + "@test.com")
		if err := s.Users.Create(ctx(), u); err != nil {
			t.Fatal(err)
		}
		users = append(users, u)
	}

	first := &ProjectMembership{ProjectID: p.ID, UserID: users[0].ID, Role: role.ProjectOwner}
	if err := s.ProjectMemberships.Create(ctx(), first); err != nil {
		t.Fatal(err)
	}
	second := &ProjectMembership{ProjectID: p.ID, UserID: users[1].ID, Role: role.ProjectOwner}
	err := s.ProjectMemberships.Create(ctx(), second)
	if !errors.Is(err, ErrDuplicate) || errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected singular role ErrDuplicate, got %v", err)
	}

	again := &ProjectMembership{ProjectID: p.ID, UserID: users[0].ID, Role: role.ProjectUser}
	if err := s.ProjectMemberships.Create(ctx(), again); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
}

func TestPGTxManager_Rollback(t *testing.T) {
	s, _ := newTestPGStores(t)
	u, p := seedPGProject(t, s)

	m := &ProjectMembership{ProjectID: p.ID, UserID: u.ID, Role: role.ProjectSupervisor}
	if err := s.ProjectMemberships.Create(ctx(), m); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := s.Tx.RunInTx(ctx(), func(ctx context.Context) error {
		locked, err := s.ProjectMemberships.GetByRole(ctx, p.ID, role.ProjectSupervisor)
		if err != nil {
			return err
		}
		locked.Role = role.ProjectUser
		if err := s.ProjectMemberships.Update(ctx, locked); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, err := s.ProjectMemberships.Get(ctx(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Role != role.ProjectSupervisor {
		t.Fatalf("expected rollback to supervisor, got %s", got.Role)
	}
}
