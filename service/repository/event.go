package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"gorm.io/gorm"
)

type securityEventRepository struct {
	service *frame.Service
}

// NewSecurityEventRepository creates a new instance of SecurityEventRepository
func NewSecurityEventRepository(service *frame.Service) SecurityEventRepository {
	return &securityEventRepository{
		service: service,
	}
}

func (r *securityEventRepository) GetByID(ctx context.Context, id string) (*models.SecurityEvent, error) {
	var event models.SecurityEvent
	err := r.service.DB(ctx, true).First(&event, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *securityEventRepository) Save(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == "" {
		event.GenID(ctx)
	}
	// Append only; existing events are never rewritten through Save.
	return r.service.DB(ctx, false).Create(event).Error
}

func (r *securityEventRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error) {
	var events []*models.SecurityEvent
	err := r.service.DB(ctx, true).
		Order("created_at DESC").Limit(limit).
		Find(&events, "account_id = ?", accountID).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *securityEventRepository) ListByRiskLevel(ctx context.Context, riskLevel string, limit int) ([]*models.SecurityEvent, error) {
	var events []*models.SecurityEvent
	err := r.service.DB(ctx, true).
		Order("created_at DESC").Limit(limit).
		Find(&events, "risk_level = ?", riskLevel).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *securityEventRepository) ListUnresolved(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	var events []*models.SecurityEvent
	err := r.service.DB(ctx, true).
		Order("created_at DESC").Limit(limit).
		Find(&events, "requires_action = ? AND resolved_at IS NULL", true).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// MarkResolved stamps the event exactly once; the guard on resolved_at means
// a second resolver observes zero rows affected.
func (r *securityEventRepository) MarkResolved(ctx context.Context, id string) (bool, error) {
	result := r.service.DB(ctx, false).Model(&models.SecurityEvent{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", time.Now())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
