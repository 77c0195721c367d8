package business

import (
	"context"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/util"
	"github.com/wardenhq/service-identity/service/models"
	"github.com/wardenhq/service-identity/service/repository"
)

// Event types emitted by the engines.
const (
	EventAccountCreated           = "account_created"
	EventAccountActivated         = "account_activated"
	EventAccountDeactivated       = "account_deactivated"
	EventLoginSuccessful          = "login_successful"
	EventLoginFailed              = "login_failed"
	EventFailedLoginMultiple      = "failed_login_multiple"
	EventLoginNewDevice           = "login_new_device"
	EventLoginNewLocation         = "login_new_location"
	EventLogout                   = "logout"
	EventLogoutAllDevices         = "logout_all_devices"
	EventPasswordChange           = "password_change"
	EventPasswordReset            = "password_reset"
	EventTwoFactorEnabled         = "two_factor_enabled"
	EventTwoFactorDisabled        = "two_factor_disabled"
	EventTwoFactorChallenge       = "two_factor_challenge"
	EventRecoveryCodeUsed         = "recovery_code_used"
	EventRecoveryCodesRegenerated = "recovery_codes_regenerated"
	EventAPIKeyCreated            = "api_key_created"
	EventAPIKeyRevoked            = "api_key_revoked"
	EventOAuthAccountLinked       = "oauth_account_linked"
	EventOAuthAccountUnlinked     = "oauth_account_unlinked"
)

const defaultEventListLimit = 50

// RiskPolicy maps event types to risk levels. Unlisted types are low risk.
type RiskPolicy map[string]string

// DefaultRiskPolicy classifies the event types that historically precede
// account takeover as high, and anomalies worth a look as medium.
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		EventFailedLoginMultiple: models.RiskLevelHigh,
		EventPasswordChange:      models.RiskLevelHigh,
		EventPasswordReset:       models.RiskLevelHigh,
		EventTwoFactorDisabled:   models.RiskLevelHigh,
		EventLoginNewDevice:      models.RiskLevelMedium,
		EventLoginNewLocation:    models.RiskLevelMedium,
		EventAPIKeyCreated:       models.RiskLevelMedium,
	}
}

// EventContext carries the request attribution stamped onto every event.
type EventContext struct {
	AccountID string
	IPAddress string
	UserAgent string
}

// SecurityEventRecorder appends to the audit trail. Recording failures are
// logged, never propagated, so an audit outage cannot block authentication.
type SecurityEventRecorder struct {
	events repository.SecurityEventRepository
	policy RiskPolicy
}

func NewSecurityEventRecorder(events repository.SecurityEventRepository, policy RiskPolicy) *SecurityEventRecorder {
	if policy == nil {
		policy = DefaultRiskPolicy()
	}
	return &SecurityEventRecorder{
		events: events,
		policy: policy,
	}
}

func (r *SecurityEventRecorder) riskLevel(eventType string) string {
	if level, ok := r.policy[eventType]; ok {
		return level
	}
	return models.RiskLevelLow
}

// Record appends one event, classified by the risk policy. High risk events
// are flagged for operator action.
func (r *SecurityEventRecorder) Record(ctx context.Context, eventType string, evtCtx EventContext, data frame.JSONMap) *models.SecurityEvent {
	risk := r.riskLevel(eventType)

	event := &models.SecurityEvent{
		AccountID:      evtCtx.AccountID,
		EventType:      eventType,
		IPAddress:      evtCtx.IPAddress,
		UserAgent:      evtCtx.UserAgent,
		EventData:      data,
		RiskLevel:      risk,
		RequiresAction: risk == models.RiskLevelHigh,
	}

	if err := r.events.Save(ctx, event); err != nil {
		util.Log(ctx).WithError(err).
			WithField("event_type", eventType).
			Warn("could not record security event")
		return nil
	}
	return event
}

func (r *SecurityEventRecorder) ListForAccount(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 {
		limit = defaultEventListLimit
	}
	return r.events.ListByAccount(ctx, accountID, limit)
}

func (r *SecurityEventRecorder) ListByRiskLevel(ctx context.Context, riskLevel string, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 {
		limit = defaultEventListLimit
	}
	return r.events.ListByRiskLevel(ctx, riskLevel, limit)
}

func (r *SecurityEventRecorder) ListUnresolved(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 {
		limit = defaultEventListLimit
	}
	return r.events.ListUnresolved(ctx, limit)
}

// Resolve stamps an event as handled. Resolving twice is a conflict so two
// operators cannot both claim the same event.
func (r *SecurityEventRecorder) Resolve(ctx context.Context, eventID string) (*models.SecurityEvent, error) {
	event, err := r.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrNotFound
	}

	resolved, err := r.events.MarkResolved(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, ErrConflict
	}

	return r.events.GetByID(ctx, eventID)
}
