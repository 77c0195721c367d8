package models

import (
	"encoding/json"
	"time"

	"github.com/pitabwire/frame"
	"gorm.io/datatypes"
)

const (
	RiskLevelLow    = "low"
	RiskLevelMedium = "medium"
	RiskLevelHigh   = "high"
)

// LoginHistorySize bounds the per account login ring.
const LoginHistorySize = 10

type LoginRecord struct {
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	At        time.Time `json:"at"`
}

type Account struct {
	frame.BaseModel
	Email           string `gorm:"type:varchar(255);uniqueIndex"`
	Username        string `gorm:"type:varchar(255);uniqueIndex"`
	Name            string `gorm:"type:varchar(255)"`
	AvatarURL       string `gorm:"type:varchar(512)"`
	PasswordHash    []byte
	Active          bool `gorm:"default:true"`
	EmailVerifiedAt *time.Time

	TwoFactorEnabled bool
	// Encrypted at rest, empty when two factor is off.
	TwoFactorSecret        string `gorm:"type:text"`
	TwoFactorRecoveryCodes string `gorm:"type:text"`
	TwoFactorConfirmedAt   *time.Time

	LastLoginAt  *time.Time
	LastLoginIP  string `gorm:"type:varchar(64)"`
	LoginHistory datatypes.JSON
	Settings     frame.JSONMap
}

// HasPassword reports whether the account can authenticate with a password.
// Accounts provisioned from an identity provider may have none.
func (a *Account) HasPassword() bool {
	return len(a.PasswordHash) > 0
}

func (a *Account) LoginRecords() []LoginRecord {
	var records []LoginRecord
	if len(a.LoginHistory) == 0 {
		return records
	}
	_ = json.Unmarshal(a.LoginHistory, &records)
	return records
}

// PushLoginRecord appends to the login ring, keeping the most recent
// LoginHistorySize entries.
func (a *Account) PushLoginRecord(record LoginRecord) {
	records := append(a.LoginRecords(), record)
	if len(records) > LoginHistorySize {
		records = records[len(records)-LoginHistorySize:]
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return
	}
	a.LoginHistory = payload
}

type Role struct {
	frame.BaseModel
	Name        string `gorm:"type:varchar(255);uniqueIndex"`
	Description string `gorm:"type:text"`
	System      bool
}

type Permission struct {
	frame.BaseModel
	Name        string `gorm:"type:varchar(255);uniqueIndex"`
	Category    string `gorm:"type:varchar(255);index"`
	Description string `gorm:"type:text"`
	System      bool
}

type RolePermission struct {
	frame.BaseModel
	RoleID       string `gorm:"type:varchar(50);uniqueIndex:idx_role_permission"`
	PermissionID string `gorm:"type:varchar(50);uniqueIndex:idx_role_permission"`
}

type AccountRole struct {
	frame.BaseModel
	AccountID string `gorm:"type:varchar(50);uniqueIndex:idx_account_role"`
	RoleID    string `gorm:"type:varchar(50);uniqueIndex:idx_account_role"`
}

// AccountPermission is a direct grant outside any role.
type AccountPermission struct {
	frame.BaseModel
	AccountID    string `gorm:"type:varchar(50);uniqueIndex:idx_account_permission"`
	PermissionID string `gorm:"type:varchar(50);uniqueIndex:idx_account_permission"`
}

type APIKey struct {
	frame.BaseModel
	AccountID string `gorm:"type:varchar(50);index"`
	Name      string `gorm:"type:varchar(255)"`
	// Prefix is the plaintext head of the key used to narrow the candidate
	// set before the bcrypt comparison.
	Prefix             string `gorm:"type:varchar(10);index"`
	Hash               []byte
	Scopes             datatypes.JSONSlice[string]
	AllowedIPs         datatypes.JSONSlice[string]
	ExpiresAt          *time.Time
	RateLimitPerMinute int
	Active             bool `gorm:"default:true"`
	UsageCount         int64
	LastUsedAt         *time.Time
}

// IsLive reports whether the key is usable at the given instant.
func (k *APIKey) IsLive(now time.Time) bool {
	if !k.Active {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}

// HasScope checks exact membership; scope names carry no hierarchy or
// wildcard semantics.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IPAllowed applies the key's allow-list; an empty list allows any source.
func (k *APIKey) IPAllowed(ip string) bool {
	if len(k.AllowedIPs) == 0 {
		return true
	}
	for _, allowed := range k.AllowedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}

type ExternalIdentity struct {
	frame.BaseModel
	AccountID string `gorm:"type:varchar(50);index"`
	Provider  string `gorm:"type:varchar(32);uniqueIndex:idx_provider_subject"`
	SubjectID string `gorm:"type:varchar(191);uniqueIndex:idx_provider_subject"`

	// Cached profile snapshot from the provider.
	Email      string `gorm:"type:varchar(255)"`
	Name       string `gorm:"type:varchar(255)"`
	AvatarURL  string `gorm:"type:varchar(512)"`
	Raw        frame.JSONMap
	LastUsedAt *time.Time
}

type SecurityEvent struct {
	frame.BaseModel
	AccountID      string `gorm:"type:varchar(50);index"`
	EventType      string `gorm:"type:varchar(64);index"`
	IPAddress      string `gorm:"type:varchar(64)"`
	UserAgent      string `gorm:"type:varchar(512)"`
	EventData      frame.JSONMap
	RiskLevel      string `gorm:"type:varchar(16);index"`
	RequiresAction bool
	ResolvedAt     *time.Time
}

// AccessToken backs every bearer token the service mints. The token's jti
// points at this row, so deleting the row revokes the token.
type AccessToken struct {
	frame.BaseModel
	AccountID      string `gorm:"type:varchar(50);index"`
	Capability     string `gorm:"type:varchar(32)"`
	ExpiresAt      time.Time
	IPAddress      string `gorm:"type:varchar(64)"`
	UserAgent      string `gorm:"type:varchar(512)"`
	LastActivityAt *time.Time
}

// Session is the interactive login record shown to the account holder,
// linked to the access token that authenticates it.
type Session struct {
	frame.BaseModel
	AccountID      string `gorm:"type:varchar(50);index"`
	AccessTokenID  string `gorm:"type:varchar(50);index"`
	IPAddress      string `gorm:"type:varchar(64)"`
	UserAgent      string `gorm:"type:varchar(512)"`
	DeviceName     string `gorm:"type:varchar(255)"`
	LastActivityAt time.Time
	ExpiresAt      time.Time
}
