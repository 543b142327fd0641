package membership

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	t       *testing.T
	stores  store.Stores
	engine  *Engine
	tenant  *store.Tenant
	project *store.Project
	admin   *store.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s := store.NewMockStores()
	tn := &store.Tenant{Name: "Acme", Subdomain: "acme", Active: true}
	require.NoError(t, s.Tenants.Create(ctx, tn))
	p := &store.Project{TenantID: tn.ID, Name: "Apollo"}
	require.NoError(t, s.Projects.Create(ctx, p))
	admin := &store.User{Email: "admin@test.com", IsAdmin: true, Active: true}
	require.NoError(t, s.Users.Create(ctx, admin))
	return &env{t: t, stores: s, engine: NewEngine(s, zap.NewNop(), nil), tenant: tn, project: p, admin: admin}
}

// user creates a tenant member with the given project role; an empty role
// leaves them outside the project.
func (e *env) user(name string, r role.Project) *store.User {
	e.t.Helper()
	ctx := context.Background()
	u := &store.User{Email: name + "@test.com", DisplayName: name, Active: true}
	require.NoError(e.t, e.stores.Users.Create(ctx, u))
	require.NoError(e.t, e.stores.TenantMemberships.Create(ctx, &store.TenantMembership{
		TenantID: e.tenant.ID, UserID: u.ID, Role: role.TenantUser,
	}))
	if r != "" {
		require.NoError(e.t, e.stores.ProjectMemberships.Create(ctx, &store.ProjectMembership{
			ProjectID: e.project.ID, UserID: u.ID, Role: r,
		}))
	}
	return u
}

func (e *env) membership(u *store.User) *store.ProjectMembership {
	e.t.Helper()
	m, err := e.stores.ProjectMemberships.GetForUser(context.Background(), e.project.ID, u.ID)
	require.NoError(e.t, err)
	return m
}

func (e *env) roleOf(u *store.User) role.Project {
	return e.membership(u).Role
}

// change asks actor to move u to r.
func (e *env) change(actor, u *store.User, r role.Project) (*AssignResult, error) {
	return e.engine.Assign(context.Background(), AssignRequest{
		Actor: actor, Tenant: e.tenant, Project: e.project, Role: r, Existing: e.membership(u),
	})
}

// add asks actor to add u with role r.
func (e *env) add(actor, u *store.User, r role.Project) (*AssignResult, error) {
	return e.engine.Assign(context.Background(), AssignRequest{
		Actor: actor, Tenant: e.tenant, Project: e.project, TargetUserID: u.ID, Role: r,
	})
}

func (e *env) assertSingularExclusive() {
	e.t.Helper()
	members, err := e.stores.ProjectMemberships.List(context.Background(), store.ProjectMembershipFilter{ProjectID: &e.project.ID})
	require.NoError(e.t, err)
	counts := map[role.Project]int{}
	for _, m := range members {
		counts[m.Role]++
	}
	for _, r := range role.SingularRoles() {
		require.LessOrEqual(e.t, counts[r], 1, "role %s held by %d members", r, counts[r])
	}
}

func requireValidation(t *testing.T, err error, field, msg string) {
	t.Helper()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, field, ve.Field)
	assert.Equal(t, msg, ve.Message)
}

func TestAssign_SupervisorIntoVacantSlot(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", role.ProjectOwner)
	bob := e.user("bob", role.ProjectUser)

	res, err := e.change(e.admin, bob, role.ProjectSupervisor)
	require.NoError(t, err)

	assert.Empty(t, res.Demoted)
	assert.Equal(t, role.ProjectSupervisor, res.Membership.Role)
	assert.Equal(t, role.ProjectSupervisor, e.roleOf(bob))
	assert.Equal(t, role.ProjectOwner, e.roleOf(alice))
}

func TestAssign_OwnerCascadesDownTheChain(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", role.ProjectOwner)
	bob := e.user("bob", role.ProjectSupervisor)
	carol := e.user("carol", role.ProjectUser)

	res, err := e.change(e.admin, carol, role.ProjectOwner)
	require.NoError(t, err)

	assert.Equal(t, role.ProjectOwner, e.roleOf(carol))
	assert.Equal(t, role.ProjectSupervisor, e.roleOf(alice))
	assert.Equal(t, role.ProjectResponsible, e.roleOf(bob))
	require.Len(t, res.Demoted, 2)
	assert.Equal(t, alice.ID, res.Demoted[0].UserID)
	assert.Equal(t, bob.ID, res.Demoted[1].UserID)
	for _, m := range append(res.Demoted, res.Membership) {
		require.NotNil(t, m.UpdatedBy)
		assert.Equal(t, e.admin.ID, *m.UpdatedBy)
	}

	entries, err := e.stores.Audit.Query(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	e.assertSingularExclusive()
}

func TestAssign_FullChainEndsAtUser(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", role.ProjectOwner)
	bob := e.user("bob", role.ProjectSupervisor)
	dave := e.user("dave", role.ProjectResponsible)
	carol := e.user("carol", "")

	res, err := e.add(e.admin, carol, role.ProjectOwner)
	require.NoError(t, err)

	assert.Len(t, res.Demoted, 3)
	assert.Equal(t, role.ProjectOwner, e.roleOf(carol))
	assert.Equal(t, role.ProjectSupervisor, e.roleOf(alice))
	assert.Equal(t, role.ProjectResponsible, e.roleOf(bob))
	assert.Equal(t, role.ProjectUser, e.roleOf(dave))
	require.NotNil(t, res.Membership.CreatedBy)
	assert.Equal(t, e.admin.ID, *res.Membership.CreatedBy)
	e.assertSingularExclusive()
}

func TestAssign_PromotionWithinTheChain(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", role.ProjectOwner)
	bob := e.user("bob", role.ProjectSupervisor)
	dave := e.user("dave", role.ProjectResponsible)

	res, err := e.change(e.admin, bob, role.ProjectOwner)
	require.NoError(t, err)

	assert.Len(t, res.Demoted, 1)
	assert.Equal(t, role.ProjectOwner, e.roleOf(bob))
	assert.Equal(t, role.ProjectSupervisor, e.roleOf(alice))
	assert.Equal(t, role.ProjectResponsible, e.roleOf(dave))
	e.assertSingularExclusive()
}

func TestAssign_ProjectOwnerTransfersOwnership(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", role.ProjectOwner)
	carol := e.user("carol", role.ProjectUser)

	_, err := e.change(alice, carol, role.ProjectOwner)
	require.NoError(t, err)

	assert.Equal(t, role.ProjectOwner, e.roleOf(carol))
	assert.Equal(t, role.ProjectSupervisor, e.roleOf(alice))
}

func TestAssign_TenantOwnerIsPrivileged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := &store.User{Email: "owner@test.com", Active: true}
	require.NoError(t, e.stores.Users.Create(ctx, owner))
	require.NoError(t, e.stores.TenantMemberships.Create(ctx, &store.TenantMembership{
		TenantID: e.tenant.ID, UserID: owner.ID, Role: role.TenantOwner,
	}))
	alice := e.user("alice", role.ProjectSupervisor)
	bob := e.user("bob", role.ProjectUser)

	_, err := e.change(owner, bob, role.ProjectSupervisor)
	require.NoError(t, err)
	assert.Equal(t, role.ProjectResponsible, e.roleOf(alice))
}

func TestAssign_ResponsibleCannotAssignAboveOwnRank(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", role.ProjectOwner)
	dave := e.user("dave", role.ProjectResponsible)
	eve := e.user("eve", role.ProjectUser)

	_, err := e.change(dave, eve, role.ProjectOwner)
	requireValidation(t, err, "role", msgHigherThanOwn)

	assert.Equal(t, role.ProjectUser, e.roleOf(eve))
	assert.Equal(t, role.ProjectOwner, e.roleOf(alice))
	assert.Equal(t, role.ProjectResponsible, e.roleOf(dave))
	entries, _ := e.stores.Audit.Query(context.Background(), store.AuditFilter{})
	assert.Empty(t, entries)
}

func TestAssign_AuthorityGate(t *testing.T) {
	tests := []struct {
		role    role.Project
		wantErr bool
	}{
		{role.ProjectOwner, true},
		{role.ProjectSupervisor, true},
		{role.ProjectUser, false},
		{role.ProjectGuest, false},
		{role.ProjectReader, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			e := newEnv(t)
			dave := e.user("dave", role.ProjectResponsible)
			newcomer := e.user("newcomer", "")

			_, err := e.add(dave, newcomer, tt.role)
			if tt.wantErr {
				requireValidation(t, err, "role", msgHigherThanOwn)
				_, lookupErr := e.stores.ProjectMemberships.GetForUser(context.Background(), e.project.ID, newcomer.ID)
				assert.ErrorIs(t, lookupErr, store.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.role, e.roleOf(newcomer))
		})
	}
}

func TestAssign_NonPrivilegedMustFreeRoleFirst(t *testing.T) {
	e := newEnv(t)
	sam := e.user("sam", role.ProjectSupervisor)
	frank := e.user("frank", role.ProjectResponsible)
	eve := e.user("eve", role.ProjectUser)

	_, err := e.change(sam, eve, role.ProjectResponsible)
	requireValidation(t, err, "role", msgFreeRoleFirst)
	assert.Equal(t, role.ProjectResponsible, e.roleOf(frank))

	// Once the slot is free the same actor may fill it.
	_, err = e.change(sam, frank, role.ProjectUser)
	require.NoError(t, err)
	_, err = e.change(sam, eve, role.ProjectResponsible)
	require.NoError(t, err)
	assert.Equal(t, role.ProjectResponsible, e.roleOf(eve))
}

func TestAssign_CannotChangeHigherRankedMember(t *testing.T) {
	e := newEnv(t)
	dave := e.user("dave", role.ProjectResponsible)
	sam := e.user("sam", role.ProjectSupervisor)

	_, err := e.change(dave, sam, role.ProjectUser)
	requireValidation(t, err, "role", msgOutranked)
	assert.Equal(t, role.ProjectSupervisor, e.roleOf(sam))
}

func TestAssign_CreateGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	stranger := &store.User{Email: "stranger@test.com", Active: true}
	require.NoError(t, e.stores.Users.Create(ctx, stranger))
	_, err := e.add(e.admin, stranger, role.ProjectUser)
	requireValidation(t, err, "user", msgNotTenantMember)

	owner := &store.User{Email: "owner@test.com", Active: true}
	require.NoError(t, e.stores.Users.Create(ctx, owner))
	require.NoError(t, e.stores.TenantMemberships.Create(ctx, &store.TenantMembership{
		TenantID: e.tenant.ID, UserID: owner.ID, Role: role.TenantOwner,
	}))
	_, err = e.add(e.admin, owner, role.ProjectUser)
	requireValidation(t, err, "user", msgTenantOwner)

	alice := e.user("alice", role.ProjectOwner)
	_, err = e.add(e.admin, alice, role.ProjectUser)
	requireValidation(t, err, "user", msgActingParty)

	sam := e.user("sam", role.ProjectSupervisor)
	_, err = e.add(e.admin, sam, role.ProjectGuest)
	requireValidation(t, err, "user", msgActingParty)

	bob := e.user("bob", role.ProjectUser)
	_, err = e.add(e.admin, bob, role.ProjectGuest)
	requireValidation(t, err, "user", msgAlreadyMember)
}

func TestAssign_InvalidRole(t *testing.T) {
	e := newEnv(t)
	bob := e.user("bob", role.ProjectUser)
	_, err := e.change(e.admin, bob, role.Project("emperor"))
	requireValidation(t, err, "role", msgInvalidRole)
}

func TestAssign_Scope(t *testing.T) {
	e := newEnv(t)
	bob := e.user("bob", role.ProjectUser)

	_, err := e.change(nil, bob, role.ProjectGuest)
	assert.ErrorIs(t, err, policy.ErrAuthenticationRequired)

	other := &store.Tenant{ID: uuid.New(), Subdomain: "other"}
	_, err = e.engine.Assign(context.Background(), AssignRequest{
		Actor: e.admin, Tenant: other, Project: e.project, Role: role.ProjectGuest, Existing: e.membership(bob),
	})
	assert.ErrorIs(t, err, policy.ErrNotFound)
}

func TestAssign_SameRoleIsNoop(t *testing.T) {
	e := newEnv(t)
	bob := e.user("bob", role.ProjectGuest)
	res, err := e.change(e.admin, bob, role.ProjectGuest)
	require.NoError(t, err)
	assert.Empty(t, res.Demoted)
	entries, _ := e.stores.Audit.Query(context.Background(), store.AuditFilter{})
	assert.Empty(t, entries)
}

// failingCreate fails every insert after the cascade has been written.
type failingCreate struct {
	store.ProjectMembershipStore
}

var errInsert = errors.New("insert failed")

func (failingCreate) Create(context.Context, *store.ProjectMembership) error { return errInsert }

func TestAssign_FailureLeavesNoPartialState(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", role.ProjectOwner)
	bob := e.user("bob", role.ProjectSupervisor)
	carol := e.user("carol", "")

	e.stores.ProjectMemberships = failingCreate{e.stores.ProjectMemberships}
	e.engine = NewEngine(e.stores, zap.NewNop(), nil)

	_, err := e.add(e.admin, carol, role.ProjectOwner)
	require.ErrorIs(t, err, errInsert)

	assert.Equal(t, role.ProjectOwner, e.roleOf(alice))
	assert.Equal(t, role.ProjectSupervisor, e.roleOf(bob))
	_, err = e.stores.ProjectMemberships.GetForUser(context.Background(), e.project.ID, carol.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	entries, _ := e.stores.Audit.Query(context.Background(), store.AuditFilter{})
	assert.Empty(t, entries)
}

// racingTx runs before() ahead of each transaction, standing in for a
// concurrent writer that commits between the pre-check and the commit.
type racingTx struct {
	inner  store.TxManager
	before func()
}

func (r *racingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.before != nil {
		r.before()
		r.before = nil
	}
	return r.inner.RunInTx(ctx, fn)
}

func TestAssign_ConcurrentChangeIsAConflict(t *testing.T) {
	e := newEnv(t)
	alice := e.user("alice", role.ProjectOwner)
	bob := e.user("bob", role.ProjectUser)
	carol := e.user("carol", role.ProjectUser)

	e.stores.Tx = &racingTx{
		inner: e.stores.Tx,
		before: func() {
			m := e.membership(carol)
			m.Role = role.ProjectSupervisor
			require.NoError(t, e.stores.ProjectMemberships.Update(context.Background(), m))
		},
	}
	e.engine = NewEngine(e.stores, zap.NewNop(), nil)

	_, err := e.change(e.admin, bob, role.ProjectOwner)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, role.ProjectSupervisor, ce.Role)
	assert.ErrorIs(t, err, store.ErrConflict)

	assert.Equal(t, role.ProjectOwner, e.roleOf(alice))
	assert.Equal(t, role.ProjectUser, e.roleOf(bob))
	e.assertSingularExclusive()
}

func TestAssign_ConcurrentAddOfSameUserIsAlreadyMember(t *testing.T) {
	e := newEnv(t)
	carol := e.user("carol", "")

	e.stores.Tx = &racingTx{
		inner: e.stores.Tx,
		before: func() {
			require.NoError(t, e.stores.ProjectMemberships.Create(context.Background(), &store.ProjectMembership{
				ProjectID: e.project.ID, UserID: carol.ID, Role: role.ProjectGuest,
			}))
		},
	}
	e.engine = NewEngine(e.stores, zap.NewNop(), nil)

	_, err := e.add(e.admin, carol, role.ProjectUser)
	requireValidation(t, err, "user", msgAlreadyMember)
	var ce *ConflictError
	assert.False(t, errors.As(err, &ce))
	assert.Equal(t, role.ProjectGuest, e.roleOf(carol))
}

func TestAssign_RandomSequenceKeepsSingularRolesExclusive(t *testing.T) {
	e := newEnv(t)
	var users []*store.User
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		users = append(users, e.user(name, role.ProjectUser))
	}
	roles := role.ProjectRoles()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		u := users[rng.Intn(len(users))]
		r := roles[rng.Intn(len(roles))]
		_, err := e.change(e.admin, u, r)
		require.NoError(t, err, "step %d: assign %s to %s", i, r, u.DisplayName)
		assert.Equal(t, r, e.roleOf(u))
		e.assertSingularExclusive()
	}
}

func TestRemove(t *testing.T) {
	e := newEnv(t)
	sam := e.user("sam", role.ProjectSupervisor)
	dave := e.user("dave", role.ProjectResponsible)
	bob := e.user("bob", role.ProjectUser)
	guest := e.user("guest", role.ProjectGuest)
	ctx := context.Background()

	remove := func(actor, u *store.User) error {
		return e.engine.Remove(ctx, RemoveRequest{Actor: actor, Tenant: e.tenant, Project: e.project, Membership: e.membership(u)})
	}

	requireValidation(t, remove(bob, guest), "user", msgCannotRemove)
	requireValidation(t, remove(dave, sam), "user", msgCannotRemove)

	require.NoError(t, remove(guest, guest))
	require.NoError(t, remove(dave, bob))
	require.NoError(t, remove(e.admin, sam))

	members, err := e.stores.ProjectMemberships.List(ctx, store.ProjectMembershipFilter{ProjectID: &e.project.ID})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, dave.ID, members[0].UserID)

	entries, _ := e.stores.Audit.Query(ctx, store.AuditFilter{Action: "member_removed"})
	assert.Len(t, entries, 3)
}
