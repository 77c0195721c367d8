package business_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/service-identity/service/business"
	"github.com/wardenhq/service-identity/service/models"
)

func newAuthzHarness(t *testing.T) (*fixtures, *business.AuthorizationEngine) {
	t.Helper()
	fx := newFixtures()
	recorder := business.NewSecurityEventRecorder(fx.events, nil)
	return fx, business.NewAuthorizationEngine(fx.roles, fx.permissions, fx.access, recorder)
}

func TestSeedIsIdempotent(t *testing.T) {
	fx, engine := newAuthzHarness(t)
	ctx := t.Context()

	require.NoError(t, engine.Seed(ctx))

	roles, err := engine.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 4)
	for _, role := range roles {
		assert.True(t, role.System)
	}

	permissions, err := engine.ListPermissions(ctx)
	require.NoError(t, err)
	firstCount := len(permissions)
	assert.Greater(t, firstCount, 0)

	// A second run adds nothing.
	require.NoError(t, engine.Seed(ctx))
	roles, err = engine.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 4)
	permissions, err = engine.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, permissions, firstCount)

	// super-admin carries the full catalogue.
	superAdmin, err := fx.roles.GetByName(ctx, "super-admin")
	require.NoError(t, err)
	granted, err := engine.RolePermissions(ctx, superAdmin.ID)
	require.NoError(t, err)
	assert.Len(t, granted, firstCount)
}

func TestEffectivePermissionsUnion(t *testing.T) {
	fx, engine := newAuthzHarness(t)
	ctx := t.Context()

	viewUsers, err := engine.CreatePermission(ctx, "view users", "")
	require.NoError(t, err)
	editUsers, err := engine.CreatePermission(ctx, "edit users", "")
	require.NoError(t, err)
	viewRoles, err := engine.CreatePermission(ctx, "view roles", "")
	require.NoError(t, err)

	role, err := engine.CreateRole(ctx, "support", "", []string{viewUsers.ID, editUsers.ID})
	require.NoError(t, err)

	account := &models.Account{Email: "holder@example.com", Username: "holder", Active: true}
	require.NoError(t, fx.accounts.Save(ctx, account))

	require.NoError(t, engine.AssignRoleToAccount(ctx, account.ID, role.ID))
	require.NoError(t, engine.GrantDirectPermission(ctx, account.ID, viewRoles.ID))
	// Overlapping direct grant deduplicates.
	require.NoError(t, engine.GrantDirectPermission(ctx, account.ID, viewUsers.ID))

	effective, err := engine.EffectivePermissions(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"edit users", "view roles", "view users"}, effective)
}

func TestCanDeniesByDefault(t *testing.T) {
	fx, engine := newAuthzHarness(t)
	ctx := t.Context()

	account := &models.Account{Email: "holder@example.com", Username: "holder", Active: true}
	require.NoError(t, fx.accounts.Save(ctx, account))

	allowed, err := engine.Can(ctx, account.ID, "view users")
	require.NoError(t, err)
	assert.False(t, allowed)

	permission, err := engine.CreatePermission(ctx, "view users", "")
	require.NoError(t, err)
	require.NoError(t, engine.GrantDirectPermission(ctx, account.ID, permission.ID))

	allowed, err = engine.Can(ctx, account.ID, "view users")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Unknown permission names always deny.
	allowed, err = engine.Can(ctx, account.ID, "launch missiles")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestSystemRolesAreProtected(t *testing.T) {
	_, engine := newAuthzHarness(t)
	ctx := t.Context()
	require.NoError(t, engine.Seed(ctx))

	_, err := engine.CreateRole(ctx, "admin", "my own admin", nil)
	assert.ErrorIs(t, err, business.ErrProtectedResource)

	admin, err := engine.ListRoles(ctx)
	require.NoError(t, err)
	var adminID string
	for _, role := range admin {
		if role.Name == "admin" {
			adminID = role.ID
		}
	}
	require.NotEmpty(t, adminID)

	_, err = engine.UpdateRole(ctx, adminID, "renamed", "")
	assert.ErrorIs(t, err, business.ErrProtectedResource)

	err = engine.DeleteRole(ctx, adminID)
	assert.ErrorIs(t, err, business.ErrProtectedResource)
}

func TestDeleteRoleInUse(t *testing.T) {
	fx, engine := newAuthzHarness(t)
	ctx := t.Context()

	role, err := engine.CreateRole(ctx, "support", "", nil)
	require.NoError(t, err)

	account := &models.Account{Email: "holder@example.com", Username: "holder", Active: true}
	require.NoError(t, fx.accounts.Save(ctx, account))
	require.NoError(t, engine.AssignRoleToAccount(ctx, account.ID, role.ID))

	err = engine.DeleteRole(ctx, role.ID)
	assert.ErrorIs(t, err, business.ErrConflict)

	require.NoError(t, engine.RemoveRoleFromAccount(ctx, account.ID, role.ID))
	assert.NoError(t, engine.DeleteRole(ctx, role.ID))
}

func TestDeletePermissionGuards(t *testing.T) {
	_, engine := newAuthzHarness(t)
	ctx := t.Context()
	require.NoError(t, engine.Seed(ctx))

	// System permissions refuse deletion.
	permissions, err := engine.ListPermissions(ctx)
	require.NoError(t, err)
	err = engine.DeletePermission(ctx, permissions[0].ID)
	assert.ErrorIs(t, err, business.ErrProtectedResource)

	// Referenced custom permissions refuse deletion until released.
	custom, err := engine.CreatePermission(ctx, "export reports", "")
	require.NoError(t, err)
	role, err := engine.CreateRole(ctx, "analyst", "", []string{custom.ID})
	require.NoError(t, err)

	err = engine.DeletePermission(ctx, custom.ID)
	assert.ErrorIs(t, err, business.ErrConflict)

	require.NoError(t, engine.RevokeRolePermission(ctx, role.ID, custom.ID))
	assert.NoError(t, engine.DeletePermission(ctx, custom.ID))
}

func TestCreateRoleDuplicate(t *testing.T) {
	_, engine := newAuthzHarness(t)
	ctx := t.Context()

	_, err := engine.CreateRole(ctx, "support", "", nil)
	require.NoError(t, err)

	_, err = engine.CreateRole(ctx, "support", "again", nil)
	assert.ErrorIs(t, err, business.ErrConflict)
}

func TestCreatePermissionCategory(t *testing.T) {
	_, engine := newAuthzHarness(t)
	ctx := t.Context()

	permission, err := engine.CreatePermission(ctx, "view audit logs", "")
	require.NoError(t, err)
	assert.Equal(t, "view", permission.Category)

	permission, err = engine.CreatePermission(ctx, "impersonate", "")
	require.NoError(t, err)
	assert.Equal(t, "impersonate", permission.Category)
}

func TestSetRolePermissionsReplacesGrants(t *testing.T) {
	_, engine := newAuthzHarness(t)
	ctx := t.Context()

	first, err := engine.CreatePermission(ctx, "view users", "")
	require.NoError(t, err)
	second, err := engine.CreatePermission(ctx, "edit users", "")
	require.NoError(t, err)

	role, err := engine.CreateRole(ctx, "support", "", []string{first.ID})
	require.NoError(t, err)

	require.NoError(t, engine.SetRolePermissions(ctx, role.ID, []string{second.ID}))

	granted, err := engine.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, granted, 1)
	assert.Equal(t, "edit users", granted[0].Name)

	// Unknown permission ids abort the replacement.
	err = engine.SetRolePermissions(ctx, role.ID, []string{"missing"})
	assert.ErrorIs(t, err, business.ErrNotFound)
}

func TestHasAnyRole(t *testing.T) {
	fx, engine := newAuthzHarness(t)
	ctx := t.Context()
	require.NoError(t, engine.Seed(ctx))

	account := &models.Account{Email: "holder@example.com", Username: "holder", Active: true}
	require.NoError(t, fx.accounts.Save(ctx, account))

	userRole, err := fx.roles.GetByName(ctx, "user")
	require.NoError(t, err)
	require.NoError(t, engine.AssignRoleToAccount(ctx, account.ID, userRole.ID))

	has, err := engine.HasAnyRole(ctx, account.ID, "admin", "user")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = engine.HasAnyRole(ctx, account.ID, "admin", "super-admin")
	require.NoError(t, err)
	assert.False(t, has)
}
