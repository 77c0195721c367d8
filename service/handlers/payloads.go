package handlers

import (
	"time"

	"github.com/wardenhq/service-identity/service/models"
)

type accountPayload struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username"`
	Name             string     `json:"name"`
	AvatarURL        string     `json:"avatarUrl,omitempty"`
	Active           bool       `json:"active"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func newAccountPayload(account *models.Account) accountPayload {
	return accountPayload{
		ID:               account.ID,
		Email:            account.Email,
		Username:         account.Username,
		Name:             account.Name,
		AvatarURL:        account.AvatarURL,
		Active:           account.Active,
		TwoFactorEnabled: account.TwoFactorEnabled,
		LastLoginAt:      account.LastLoginAt,
		CreatedAt:        account.CreatedAt,
	}
}

type loginResultPayload struct {
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	RequiresTwoFactor bool   `json:"requiresTwoFactor,omitempty"`
	ChallengeToken    string `json:"challengeToken,omitempty"`

	Account *accountPayload `json:"account,omitempty"`
}

type apiKeyPayload struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Prefix             string     `json:"prefix"`
	Scopes             []string   `json:"scopes"`
	AllowedIPs         []string   `json:"allowedIps,omitempty"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
	RateLimitPerMinute int        `json:"rateLimitPerMinute,omitempty"`
	Active             bool       `json:"active"`
	UsageCount         int64      `json:"usageCount"`
	LastUsedAt         *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`

	// Populated once, at creation time only.
	Key string `json:"key,omitempty"`
}

func newAPIKeyPayload(key *models.APIKey) apiKeyPayload {
	return apiKeyPayload{
		ID:                 key.ID,
		Name:               key.Name,
		Prefix:             key.Prefix,
		Scopes:             []string(key.Scopes),
		AllowedIPs:         []string(key.AllowedIPs),
		ExpiresAt:          key.ExpiresAt,
		RateLimitPerMinute: key.RateLimitPerMinute,
		Active:             key.Active,
		UsageCount:         key.UsageCount,
		LastUsedAt:         key.LastUsedAt,
		CreatedAt:          key.CreatedAt,
	}
}

type identityPayload struct {
	Provider   string     `json:"provider"`
	Email      string     `json:"email,omitempty"`
	Name       string     `json:"name,omitempty"`
	AvatarURL  string     `json:"avatarUrl,omitempty"`
	LinkedAt   time.Time  `json:"linkedAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

func newIdentityPayload(identity *models.ExternalIdentity) identityPayload {
	return identityPayload{
		Provider:   identity.Provider,
		Email:      identity.Email,
		Name:       identity.Name,
		AvatarURL:  identity.AvatarURL,
		LinkedAt:   identity.CreatedAt,
		LastUsedAt: identity.LastUsedAt,
	}
}

type sessionPayload struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ipAddress"`
	UserAgent      string    `json:"userAgent"`
	DeviceName     string    `json:"deviceName,omitempty"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Current        bool      `json:"current"`
}

type securityEventPayload struct {
	ID             string         `json:"id"`
	AccountID      string         `json:"accountId,omitempty"`
	EventType      string         `json:"eventType"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	EventData      map[string]any `json:"eventData,omitempty"`
	RiskLevel      string         `json:"riskLevel"`
	RequiresAction bool           `json:"requiresAction"`
	ResolvedAt     *time.Time     `json:"resolvedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func newSecurityEventPayload(event *models.SecurityEvent) securityEventPayload {
	return securityEventPayload{
		ID:             event.ID,
		AccountID:      event.AccountID,
		EventType:      event.EventType,
		IPAddress:      event.IPAddress,
		UserAgent:      event.UserAgent,
		EventData:      map[string]any(event.EventData),
		RiskLevel:      event.RiskLevel,
		RequiresAction: event.RequiresAction,
		ResolvedAt:     event.ResolvedAt,
		CreatedAt:      event.CreatedAt,
	}
}

func permissionPayloads(permissions []*models.Permission) []permissionPayload {
	payloads := make([]permissionPayload, len(permissions))
	for i, permission := range permissions {
		payloads[i] = newPermissionPayload(permission)
	}
	return payloads
}

type rolePayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	System      bool   `json:"system"`
}

func newRolePayload(role *models.Role) rolePayload {
	return rolePayload{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		System:      role.System,
	}
}

type permissionPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	System      bool   `json:"system"`
}

func newPermissionPayload(permission *models.Permission) permissionPayload {
	return permissionPayload{
		ID:          permission.ID,
		Name:        permission.Name,
		Category:    permission.Category,
		Description: permission.Description,
		System:      permission.System,
	}
}
