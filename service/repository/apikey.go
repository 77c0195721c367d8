package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"gorm.io/gorm"
)

type apiKeyRepository struct {
	service *frame.Service
}

// NewAPIKeyRepository creates a new instance of APIKeyRepository
func NewAPIKeyRepository(service *frame.Service) APIKeyRepository {
	return &apiKeyRepository{
		service: service,
	}
}

func (r *apiKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	var apiKey models.APIKey
	err := r.service.DB(ctx, true).First(&apiKey, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &apiKey, nil
}

func (r *apiKeyRepository) GetByIDAndAccount(ctx context.Context, id, accountID string) (*models.APIKey, error) {
	var apiKey models.APIKey
	err := r.service.DB(ctx, true).First(&apiKey, "id = ? AND account_id = ?", id, accountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &apiKey, nil
}

// GetActiveByPrefix narrows the candidate set for key validation. Prefixes
// are not unique so callers still compare the full hash.
func (r *apiKeyRepository) GetActiveByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	var apiKeys []*models.APIKey
	err := r.service.DB(ctx, true).
		Find(&apiKeys, "prefix = ? AND active = ?", prefix, true).Error
	if err != nil {
		return nil, err
	}
	return apiKeys, nil
}

func (r *apiKeyRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	var apiKeys []*models.APIKey
	err := r.service.DB(ctx, true).
		Order("created_at DESC").
		Find(&apiKeys, "account_id = ?", accountID).Error
	if err != nil {
		return nil, err
	}
	return apiKeys, nil
}

func (r *apiKeyRepository) CountLiveByAccount(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.service.DB(ctx, true).Model(&models.APIKey{}).
		Where("account_id = ? AND active = ?", accountID, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Count(&count).Error
	return count, err
}

func (r *apiKeyRepository) Save(ctx context.Context, apiKey *models.APIKey) error {
	if apiKey.ID == "" {
		apiKey.GenID(ctx)
		return r.service.DB(ctx, false).Create(apiKey).Error
	}
	return r.service.DB(ctx, false).Save(apiKey).Error
}

// RecordUsage bumps the usage counter in the database so concurrent
// validations never lose increments.
func (r *apiKeyRepository) RecordUsage(ctx context.Context, id string) error {
	return r.service.DB(ctx, false).Model(&models.APIKey{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"usage_count":  gorm.Expr("usage_count + ?", 1),
			"last_used_at": time.Now(),
		}).Error
}

func (r *apiKeyRepository) Delete(ctx context.Context, id, accountID string) error {
	return r.service.DB(ctx, false).
		Delete(&models.APIKey{}, "id = ? AND account_id = ?", id, accountID).Error
}
