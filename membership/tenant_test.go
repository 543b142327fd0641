package membership

import (
	"context"
	"testing"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newUser(t *testing.T, s store.Stores, email string) *store.User {
	t.Helper()
	u := &store.User{Email: email, Active: true}
	require.NoError(t, s.Users.Create(context.Background(), u))
	return u
}

func TestTenantEngine_SingleOwner(t *testing.T) {
	e := newEnv(t)
	te := NewTenantEngine(e.stores, zap.NewNop())
	ctx := context.Background()

	first := newUser(t, e.stores, "first@test.com")
	m, err := te.Assign(ctx, TenantAssignRequest{Actor: e.admin, Tenant: e.tenant, TargetUserID: first.ID, Role: role.TenantOwner})
	require.NoError(t, err)
	assert.Equal(t, role.TenantOwner, m.Role)

	second := newUser(t, e.stores, "second@test.com")
	_, err = te.Assign(ctx, TenantAssignRequest{Actor: e.admin, Tenant: e.tenant, TargetUserID: second.ID, Role: role.TenantOwner})
	requireValidation(t, err, "role", msgTenantHasOwner)

	// Re-asserting the current owner is fine.
	_, err = te.Assign(ctx, TenantAssignRequest{Actor: first, Tenant: e.tenant, Role: role.TenantOwner, Existing: m})
	require.NoError(t, err)
}

func TestTenantEngine_OnlyOwnerGrantsOwner(t *testing.T) {
	e := newEnv(t)
	te := NewTenantEngine(e.stores, zap.NewNop())
	ctx := context.Background()

	member := e.user("member", "")
	target := newUser(t, e.stores, "target@test.com")

	_, err := te.Assign(ctx, TenantAssignRequest{Actor: member, Tenant: e.tenant, TargetUserID: target.ID, Role: role.TenantOwner})
	requireValidation(t, err, "role", msgOwnerGrant)

	m, err := te.Assign(ctx, TenantAssignRequest{Actor: member, Tenant: e.tenant, TargetUserID: target.ID, Role: role.TenantUser})
	require.NoError(t, err)
	require.NotNil(t, m.CreatedBy)
	assert.Equal(t, member.ID, *m.CreatedBy)

	_, err = te.Assign(ctx, TenantAssignRequest{Actor: member, Tenant: e.tenant, TargetUserID: target.ID, Role: role.TenantUser})
	requireValidation(t, err, "user", msgTenantMemberExist)
}

func TestTenantEngine_RemoveCascadesProjectMemberships(t *testing.T) {
	e := newEnv(t)
	te := NewTenantEngine(e.stores, zap.NewNop())
	ctx := context.Background()

	bob := e.user("bob", role.ProjectResponsible)
	tm, err := e.stores.TenantMemberships.GetForUser(ctx, e.tenant.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, te.Remove(ctx, e.admin, e.tenant, tm))

	_, err = e.stores.TenantMemberships.GetForUser(ctx, e.tenant.ID, bob.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = e.stores.ProjectMemberships.GetForUser(ctx, e.project.ID, bob.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTenantEngine_OwnerCannotBeRemoved(t *testing.T) {
	e := newEnv(t)
	te := NewTenantEngine(e.stores, zap.NewNop())
	ctx := context.Background()

	owner := newUser(t, e.stores, "owner@test.com")
	m, err := te.Assign(ctx, TenantAssignRequest{Actor: e.admin, Tenant: e.tenant, TargetUserID: owner.ID, Role: role.TenantOwner})
	require.NoError(t, err)

	requireValidation(t, te.Remove(ctx, e.admin, e.tenant, m), "user", msgLastOwner)
}
