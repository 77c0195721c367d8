package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"gorm.io/gorm"
)

type accessTokenRepository struct {
	service *frame.Service
}

// NewAccessTokenRepository creates a new instance of AccessTokenRepository
func NewAccessTokenRepository(service *frame.Service) AccessTokenRepository {
	return &accessTokenRepository{
		service: service,
	}
}

func (r *accessTokenRepository) GetByID(ctx context.Context, id string) (*models.AccessToken, error) {
	var token models.AccessToken
	err := r.service.DB(ctx, true).First(&token, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *accessTokenRepository) Save(ctx context.Context, token *models.AccessToken) error {
	if token.ID == "" {
		token.GenID(ctx)
		return r.service.DB(ctx, false).Create(token).Error
	}
	return r.service.DB(ctx, false).Save(token).Error
}

// Consume hard deletes the token row. The rows affected count decides the
// winner when two callers race to spend a one shot token.
func (r *accessTokenRepository) Consume(ctx context.Context, id string) (bool, error) {
	result := r.service.DB(ctx, false).Unscoped().
		Delete(&models.AccessToken{}, "id = ?", id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *accessTokenRepository) DeleteWithSession(ctx context.Context, id, accountID string) error {
	return r.service.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Session{}, "access_token_id = ? AND account_id = ?", id, accountID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.AccessToken{}, "id = ? AND account_id = ?", id, accountID).Error
	})
}

// PurgeAccount revokes everything the account holds. Tokens and sessions go
// in one transaction so a force logout cannot leave live stragglers.
func (r *accessTokenRepository) PurgeAccount(ctx context.Context, accountID string) error {
	return r.service.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Session{}, "account_id = ?", accountID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.AccessToken{}, "account_id = ?", accountID).Error
	})
}

func (r *accessTokenRepository) TouchActivity(ctx context.Context, id string) error {
	now := time.Now()
	err := r.service.DB(ctx, false).Model(&models.AccessToken{}).
		Where("id = ?", id).
		Update("last_activity_at", now).Error
	if err != nil {
		return err
	}
	return r.service.DB(ctx, false).Model(&models.Session{}).
		Where("access_token_id = ?", id).
		Update("last_activity_at", now).Error
}

func (r *accessTokenRepository) SaveSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.GenID(ctx)
		return r.service.DB(ctx, false).Create(session).Error
	}
	return r.service.DB(ctx, false).Save(session).Error
}

func (r *accessTokenRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := r.service.DB(ctx, true).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *accessTokenRepository) ListActiveSessions(ctx context.Context, accountID string) ([]*models.Session, error) {
	var sessions []*models.Session
	err := r.service.DB(ctx, true).
		Order("last_activity_at DESC").
		Find(&sessions, "account_id = ? AND expires_at > ?", accountID, time.Now()).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *accessTokenRepository) DeleteSession(ctx context.Context, id, accountID string) error {
	return r.service.DB(ctx, false).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		err := tx.First(&session, "id = ? AND account_id = ?", id, accountID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err = tx.Delete(&models.Session{}, "id = ?", session.ID).Error; err != nil {
			return err
		}
		if session.AccessTokenID == "" {
			return nil
		}
		return tx.Delete(&models.AccessToken{}, "id = ?", session.AccessTokenID).Error
	})
}
