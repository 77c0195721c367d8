package repository

import (
	"context"
	"errors"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"gorm.io/gorm"
)

type accountRepository struct {
	service *frame.Service
}

// NewAccountRepository creates a new instance of AccountRepository
func NewAccountRepository(service *frame.Service) AccountRepository {
	return &accountRepository{
		service: service,
	}
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := r.service.DB(ctx, true).First(&account, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.service.DB(ctx, true).First(&account, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	err := r.service.DB(ctx, true).First(&account, "username = ?", username).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Save(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.GenID(ctx)
		return r.service.DB(ctx, false).Create(account).Error
	}
	return r.service.DB(ctx, false).Save(account).Error
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	return r.service.DB(ctx, false).Delete(&models.Account{}, "id = ?", id).Error
}

func (r *accountRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.service.DB(ctx, true).Model(&models.Account{}).
		Where("username = ?", username).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *accountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.service.DB(ctx, true).Model(&models.Account{}).
		Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResetPassword pairs the credential change with wholesale token revocation
// so no session outlives the password it was opened with.
func (r *accountRepository) ResetPassword(ctx context.Context, accountID string, passwordHash []byte) error {
	return r.service.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Account{}).
			Where("id = ?", accountID).
			Update("password_hash", passwordHash).Error
		if err != nil {
			return err
		}
		if err = tx.Delete(&models.Session{}, "account_id = ?", accountID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.AccessToken{}, "account_id = ?", accountID).Error
	})
}

// SwapRecoveryCodes performs a compare and swap on the encrypted recovery
// code blob so two concurrent consumers cannot both spend the same code.
func (r *accountRepository) SwapRecoveryCodes(ctx context.Context, accountID, previous, next string) (bool, error) {
	result := r.service.DB(ctx, false).Model(&models.Account{}).
		Where("id = ? AND two_factor_recovery_codes = ?", accountID, previous).
		Update("two_factor_recovery_codes", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
