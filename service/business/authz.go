package business

import (
	"context"
	"sort"
	"strings"

	"github.com/wardenhq/service-identity/service/models"
	"github.com/wardenhq/service-identity/service/repository"
)

// Reserved role names. These are seeded, flagged as system rows and refuse
// modification or deletion.
var systemRoleNames = map[string]bool{
	"super-admin": true,
	"admin":       true,
	"user":        true,
	"guest":       true,
}

var systemPermissionNames = []string{
	"view users", "create users", "edit users", "delete users",
	"view roles", "create roles", "edit roles", "delete roles", "assign roles",
	"view permissions", "assign permissions",
	"view security events", "resolve security events",
	"view api keys", "revoke api keys",
	"administer system",
}

// AuthorizationEngine evaluates effective permissions and manages the role
// and permission catalogue. Checks deny by default.
type AuthorizationEngine struct {
	roles       repository.RoleRepository
	permissions repository.PermissionRepository
	access      repository.AccountAccessRepository
	recorder    *SecurityEventRecorder
}

func NewAuthorizationEngine(roles repository.RoleRepository, permissions repository.PermissionRepository, access repository.AccountAccessRepository, recorder *SecurityEventRecorder) *AuthorizationEngine {
	return &AuthorizationEngine{
		roles:       roles,
		permissions: permissions,
		access:      access,
		recorder:    recorder,
	}
}

// EffectivePermissions is the union of role grants and direct grants,
// deduplicated and sorted.
func (e *AuthorizationEngine) EffectivePermissions(ctx context.Context, accountID string) ([]string, error) {
	seen := make(map[string]bool)

	roles, err := e.access.Roles(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		perms, err := e.roles.Permissions(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, perm := range perms {
			seen[perm.Name] = true
		}
	}

	direct, err := e.access.DirectPermissions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, perm := range direct {
		seen[perm.Name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Can reports whether the account holds the permission, through any role or
// directly. Unknown permissions are denied.
func (e *AuthorizationEngine) Can(ctx context.Context, accountID, permission string) (bool, error) {
	effective, err := e.EffectivePermissions(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, name := range effective {
		if name == permission {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyRole reports whether the account holds at least one of the roles.
func (e *AuthorizationEngine) HasAnyRole(ctx context.Context, accountID string, names ...string) (bool, error) {
	held, err := e.access.Roles(ctx, accountID)
	if err != nil {
		return false, err
	}
	for _, role := range held {
		for _, name := range names {
			if role.Name == name {
				return true, nil
			}
		}
	}
	return false, nil
}

func (e *AuthorizationEngine) ListRoles(ctx context.Context) ([]*models.Role, error) {
	return e.roles.List(ctx)
}

func (e *AuthorizationEngine) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	return e.permissions.List(ctx)
}

func (e *AuthorizationEngine) RolePermissions(ctx context.Context, roleID string) ([]*models.Permission, error) {
	role, err := e.requireRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return e.roles.Permissions(ctx, role.ID)
}

func (e *AuthorizationEngine) CreateRole(ctx context.Context, name, description string, permissionIDs []string) (*models.Role, error) {
	name = strings.TrimSpace(name)
	if systemRoleNames[name] {
		return nil, ErrProtectedResource
	}

	existing, err := e.roles.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}

	role := &models.Role{Name: name, Description: description}
	if err = e.roles.Save(ctx, role); err != nil {
		return nil, err
	}
	if len(permissionIDs) > 0 {
		if err = e.roles.SyncPermissions(ctx, role.ID, permissionIDs); err != nil {
			return nil, err
		}
	}
	return role, nil
}

func (e *AuthorizationEngine) UpdateRole(ctx context.Context, roleID, name, description string) (*models.Role, error) {
	role, err := e.requireRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.System {
		return nil, ErrProtectedResource
	}

	name = strings.TrimSpace(name)
	if name != "" && name != role.Name {
		if systemRoleNames[name] {
			return nil, ErrProtectedResource
		}
		existing, err := e.roles.GetByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, ErrConflict
		}
		role.Name = name
	}
	if description != "" {
		role.Description = description
	}

	if err = e.roles.Save(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole refuses system roles and roles still held by accounts.
func (e *AuthorizationEngine) DeleteRole(ctx context.Context, roleID string) error {
	role, err := e.requireRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.System {
		return ErrProtectedResource
	}

	holders, err := e.roles.AccountCount(ctx, role.ID)
	if err != nil {
		return err
	}
	if holders > 0 {
		return ErrConflict
	}

	return e.roles.Delete(ctx, role.ID)
}

func (e *AuthorizationEngine) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	role, err := e.requireRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, permissionID := range permissionIDs {
		if _, err = e.requirePermission(ctx, permissionID); err != nil {
			return err
		}
	}
	return e.roles.SyncPermissions(ctx, role.ID, permissionIDs)
}

func (e *AuthorizationEngine) GrantRolePermission(ctx context.Context, roleID, permissionID string) error {
	role, err := e.requireRole(ctx, roleID)
	if err != nil {
		return err
	}
	permission, err := e.requirePermission(ctx, permissionID)
	if err != nil {
		return err
	}
	return e.roles.GrantPermission(ctx, role.ID, permission.ID)
}

func (e *AuthorizationEngine) RevokeRolePermission(ctx context.Context, roleID, permissionID string) error {
	role, err := e.requireRole(ctx, roleID)
	if err != nil {
		return err
	}
	return e.roles.RevokePermission(ctx, role.ID, permissionID)
}

func (e *AuthorizationEngine) CreatePermission(ctx context.Context, name, description string) (*models.Permission, error) {
	name = strings.TrimSpace(name)

	existing, err := e.permissions.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}

	permission := &models.Permission{
		Name:        name,
		Category:    permissionCategory(name),
		Description: description,
	}
	if err = e.permissions.Save(ctx, permission); err != nil {
		return nil, err
	}
	return permission, nil
}

// DeletePermission refuses system permissions and permissions still
// referenced by a role or a direct grant.
func (e *AuthorizationEngine) DeletePermission(ctx context.Context, permissionID string) error {
	permission, err := e.requirePermission(ctx, permissionID)
	if err != nil {
		return err
	}
	if permission.System {
		return ErrProtectedResource
	}

	refs, err := e.permissions.ReferenceCount(ctx, permission.ID)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrConflict
	}

	return e.permissions.Delete(ctx, permission.ID)
}

func (e *AuthorizationEngine) AssignRoleToAccount(ctx context.Context, accountID, roleID string) error {
	role, err := e.requireRole(ctx, roleID)
	if err != nil {
		return err
	}
	return e.access.AssignRole(ctx, accountID, role.ID)
}

func (e *AuthorizationEngine) RemoveRoleFromAccount(ctx context.Context, accountID, roleID string) error {
	return e.access.RemoveRole(ctx, accountID, roleID)
}

func (e *AuthorizationEngine) GrantDirectPermission(ctx context.Context, accountID, permissionID string) error {
	permission, err := e.requirePermission(ctx, permissionID)
	if err != nil {
		return err
	}
	return e.access.GrantPermission(ctx, accountID, permission.ID)
}

func (e *AuthorizationEngine) RevokeDirectPermission(ctx context.Context, accountID, permissionID string) error {
	return e.access.RevokePermission(ctx, accountID, permissionID)
}

func (e *AuthorizationEngine) AccountRoles(ctx context.Context, accountID string) ([]*models.Role, error) {
	return e.access.Roles(ctx, accountID)
}

// Seed creates the system roles and permissions when missing and grants the
// full catalogue to super-admin. Safe to run repeatedly.
func (e *AuthorizationEngine) Seed(ctx context.Context) error {
	permissionIDs := make([]string, 0, len(systemPermissionNames))
	for _, name := range systemPermissionNames {
		permission, err := e.permissions.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if permission == nil {
			permission = &models.Permission{
				Name:     name,
				Category: permissionCategory(name),
				System:   true,
			}
			if err = e.permissions.Save(ctx, permission); err != nil {
				return err
			}
		}
		permissionIDs = append(permissionIDs, permission.ID)
	}

	for name := range systemRoleNames {
		role, err := e.roles.GetByName(ctx, name)
		if err != nil {
			return err
		}
		if role == nil {
			role = &models.Role{Name: name, System: true}
			if err = e.roles.Save(ctx, role); err != nil {
				return err
			}
		}
		if name == "super-admin" {
			for _, permissionID := range permissionIDs {
				if err = e.roles.GrantPermission(ctx, role.ID, permissionID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// permissionCategory groups permissions by the leading word of the name,
// so "view users" and "view roles" land in the same bucket.
func permissionCategory(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (e *AuthorizationEngine) requireRole(ctx context.Context, roleID string) (*models.Role, error) {
	role, err := e.roles.GetByID(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, ErrNotFound
	}
	return role, nil
}

func (e *AuthorizationEngine) requirePermission(ctx context.Context, permissionID string) (*models.Permission, error) {
	permission, err := e.permissions.GetByID(ctx, permissionID)
	if err != nil {
		return nil, err
	}
	if permission == nil {
		return nil, ErrNotFound
	}
	return permission, nil
}
