package repository

import (
	"context"
	"errors"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"gorm.io/gorm"
)

type externalIdentityRepository struct {
	service *frame.Service
}

// NewExternalIdentityRepository creates a new instance of ExternalIdentityRepository
func NewExternalIdentityRepository(service *frame.Service) ExternalIdentityRepository {
	return &externalIdentityRepository{
		service: service,
	}
}

func (r *externalIdentityRepository) GetByProviderSubject(ctx context.Context, provider, subjectID string) (*models.ExternalIdentity, error) {
	var identity models.ExternalIdentity
	err := r.service.DB(ctx, true).
		First(&identity, "provider = ? AND subject_id = ?", provider, subjectID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}

func (r *externalIdentityRepository) GetByAccountProvider(ctx context.Context, accountID, provider string) (*models.ExternalIdentity, error) {
	var identity models.ExternalIdentity
	err := r.service.DB(ctx, true).
		First(&identity, "account_id = ? AND provider = ?", accountID, provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &identity, nil
}

func (r *externalIdentityRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.ExternalIdentity, error) {
	var identities []*models.ExternalIdentity
	err := r.service.DB(ctx, true).Find(&identities, "account_id = ?", accountID).Error
	if err != nil {
		return nil, err
	}
	return identities, nil
}

func (r *externalIdentityRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.service.DB(ctx, true).Model(&models.ExternalIdentity{}).
		Where("account_id = ?", accountID).Count(&count).Error
	return count, err
}

func (r *externalIdentityRepository) Save(ctx context.Context, identity *models.ExternalIdentity) error {
	if identity.ID == "" {
		identity.GenID(ctx)
		return r.service.DB(ctx, false).Create(identity).Error
	}
	return r.service.DB(ctx, false).Save(identity).Error
}

func (r *externalIdentityRepository) Delete(ctx context.Context, accountID, provider string) error {
	return r.service.DB(ctx, false).
		Delete(&models.ExternalIdentity{}, "account_id = ? AND provider = ?", accountID, provider).Error
}

// CreateAccountWithLink provisions an account from a provider assertion.
// Account, link and default role land together or not at all, so a crash
// mid-provision never leaves an orphaned link.
func (r *externalIdentityRepository) CreateAccountWithLink(ctx context.Context, account *models.Account, identity *models.ExternalIdentity, defaultRoleID string) error {
	return r.service.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		if account.ID == "" {
			account.GenID(ctx)
		}
		if err := tx.Create(account).Error; err != nil {
			return err
		}

		identity.AccountID = account.ID
		if identity.ID == "" {
			identity.GenID(ctx)
		}
		if err := tx.Create(identity).Error; err != nil {
			return err
		}

		if defaultRoleID != "" {
			assignment := models.AccountRole{AccountID: account.ID, RoleID: defaultRoleID}
			assignment.GenID(ctx)
			if err := tx.Create(&assignment).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
