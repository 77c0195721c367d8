package repository

import (
	"context"
	"errors"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"gorm.io/gorm"
)

type roleRepository struct {
	service *frame.Service
}

// NewRoleRepository creates a new instance of RoleRepository
func NewRoleRepository(service *frame.Service) RoleRepository {
	return &roleRepository{
		service: service,
	}
}

func (r *roleRepository) GetByID(ctx context.Context, id string) (*models.Role, error) {
	var role models.Role
	err := r.service.DB(ctx, true).First(&role, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := r.service.DB(ctx, true).First(&role, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) List(ctx context.Context) ([]*models.Role, error) {
	var roles []*models.Role
	err := r.service.DB(ctx, true).Order("name").Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) Save(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.GenID(ctx)
		return r.service.DB(ctx, false).Create(role).Error
	}
	return r.service.DB(ctx, false).Save(role).Error
}

func (r *roleRepository) Delete(ctx context.Context, id string) error {
	return r.service.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.RolePermission{}, "role_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Role{}, "id = ?", id).Error
	})
}

func (r *roleRepository) Permissions(ctx context.Context, roleID string) ([]*models.Permission, error) {
	var permissions []*models.Permission
	err := r.service.DB(ctx, true).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ? AND role_permissions.deleted_at IS NULL", roleID).
		Find(&permissions).Error
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *roleRepository) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	var existing models.RolePermission
	err := r.service.DB(ctx, true).
		First(&existing, "role_id = ? AND permission_id = ?", roleID, permissionID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	grant := models.RolePermission{RoleID: roleID, PermissionID: permissionID}
	grant.GenID(ctx)
	return r.service.DB(ctx, false).Create(&grant).Error
}

func (r *roleRepository) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	return r.service.DB(ctx, false).
		Delete(&models.RolePermission{}, "role_id = ? AND permission_id = ?", roleID, permissionID).Error
}

// SyncPermissions replaces the role's grants wholesale. Runs in a
// transaction so a concurrent permission check never sees a half empty set.
func (r *roleRepository) SyncPermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	return r.service.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.RolePermission{}, "role_id = ?", roleID).Error; err != nil {
			return err
		}
		for _, permissionID := range permissionIDs {
			grant := models.RolePermission{RoleID: roleID, PermissionID: permissionID}
			grant.GenID(ctx)
			if err := tx.Create(&grant).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *roleRepository) AccountCount(ctx context.Context, roleID string) (int64, error) {
	var count int64
	err := r.service.DB(ctx, true).Model(&models.AccountRole{}).
		Where("role_id = ?", roleID).Count(&count).Error
	return count, err
}

type permissionRepository struct {
	service *frame.Service
}

// NewPermissionRepository creates a new instance of PermissionRepository
func NewPermissionRepository(service *frame.Service) PermissionRepository {
	return &permissionRepository{
		service: service,
	}
}

func (r *permissionRepository) GetByID(ctx context.Context, id string) (*models.Permission, error) {
	var permission models.Permission
	err := r.service.DB(ctx, true).First(&permission, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &permission, nil
}

func (r *permissionRepository) GetByName(ctx context.Context, name string) (*models.Permission, error) {
	var permission models.Permission
	err := r.service.DB(ctx, true).First(&permission, "name = ?", name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &permission, nil
}

func (r *permissionRepository) List(ctx context.Context) ([]*models.Permission, error) {
	var permissions []*models.Permission
	err := r.service.DB(ctx, true).Order("category, name").Find(&permissions).Error
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *permissionRepository) Save(ctx context.Context, permission *models.Permission) error {
	if permission.ID == "" {
		permission.GenID(ctx)
		return r.service.DB(ctx, false).Create(permission).Error
	}
	return r.service.DB(ctx, false).Save(permission).Error
}

func (r *permissionRepository) Delete(ctx context.Context, id string) error {
	return r.service.DB(ctx, false).Delete(&models.Permission{}, "id = ?", id).Error
}

func (r *permissionRepository) ReferenceCount(ctx context.Context, permissionID string) (int64, error) {
	var roleRefs int64
	err := r.service.DB(ctx, true).Model(&models.RolePermission{}).
		Where("permission_id = ?", permissionID).Count(&roleRefs).Error
	if err != nil {
		return 0, err
	}

	var directRefs int64
	err = r.service.DB(ctx, true).Model(&models.AccountPermission{}).
		Where("permission_id = ?", permissionID).Count(&directRefs).Error
	if err != nil {
		return 0, err
	}
	return roleRefs + directRefs, nil
}

type accountAccessRepository struct {
	service *frame.Service
}

// NewAccountAccessRepository creates a new instance of AccountAccessRepository
func NewAccountAccessRepository(service *frame.Service) AccountAccessRepository {
	return &accountAccessRepository{
		service: service,
	}
}

func (r *accountAccessRepository) Roles(ctx context.Context, accountID string) ([]*models.Role, error) {
	var roles []*models.Role
	err := r.service.DB(ctx, true).
		Joins("JOIN account_roles ON account_roles.role_id = roles.id").
		Where("account_roles.account_id = ? AND account_roles.deleted_at IS NULL", accountID).
		Find(&roles).Error
	if err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *accountAccessRepository) DirectPermissions(ctx context.Context, accountID string) ([]*models.Permission, error) {
	var permissions []*models.Permission
	err := r.service.DB(ctx, true).
		Joins("JOIN account_permissions ON account_permissions.permission_id = permissions.id").
		Where("account_permissions.account_id = ? AND account_permissions.deleted_at IS NULL", accountID).
		Find(&permissions).Error
	if err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *accountAccessRepository) AssignRole(ctx context.Context, accountID, roleID string) error {
	var existing models.AccountRole
	err := r.service.DB(ctx, true).
		First(&existing, "account_id = ? AND role_id = ?", accountID, roleID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	assignment := models.AccountRole{AccountID: accountID, RoleID: roleID}
	assignment.GenID(ctx)
	return r.service.DB(ctx, false).Create(&assignment).Error
}

func (r *accountAccessRepository) RemoveRole(ctx context.Context, accountID, roleID string) error {
	return r.service.DB(ctx, false).
		Delete(&models.AccountRole{}, "account_id = ? AND role_id = ?", accountID, roleID).Error
}

func (r *accountAccessRepository) GrantPermission(ctx context.Context, accountID, permissionID string) error {
	var existing models.AccountPermission
	err := r.service.DB(ctx, true).
		First(&existing, "account_id = ? AND permission_id = ?", accountID, permissionID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	grant := models.AccountPermission{AccountID: accountID, PermissionID: permissionID}
	grant.GenID(ctx)
	return r.service.DB(ctx, false).Create(&grant).Error
}

func (r *accountAccessRepository) RevokePermission(ctx context.Context, accountID, permissionID string) error {
	return r.service.DB(ctx, false).
		Delete(&models.AccountPermission{}, "account_id = ? AND permission_id = ?", accountID, permissionID).Error
}
