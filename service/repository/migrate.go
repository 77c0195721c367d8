package repository

import (
	"context"
	"errors"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
)

func Migrate(ctx context.Context, svc *frame.Service, migrationPath string) error {

	pool := svc.DBPool()
	if pool == nil {
		return errors.New("datastore pool is not initialized")
	}

	return svc.MigratePool(ctx, pool, migrationPath,
		&models.Account{}, &models.Role{}, &models.Permission{},
		&models.RolePermission{}, &models.AccountRole{}, &models.AccountPermission{},
		&models.APIKey{}, &models.ExternalIdentity{},
		&models.SecurityEvent{}, &models.AccessToken{}, &models.Session{})
}
