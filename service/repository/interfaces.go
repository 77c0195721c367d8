package repository

import (
	"context"

	"github.com/wardenhq/service-identity/service/models"
)

// AccountRepository handles database operations for Account entities
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// GetByEmail retrieves an account by its unique email
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// GetByUsername retrieves an account by its unique username
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	// Save creates or updates an account record
	Save(ctx context.Context, account *models.Account) error
	// Delete removes an account record by ID
	Delete(ctx context.Context, id string) error
	// UsernameExists reports whether any account holds the username
	UsernameExists(ctx context.Context, username string) (bool, error)
	// EmailExists reports whether any account holds the email
	EmailExists(ctx context.Context, email string) (bool, error)
	// ResetPassword writes the new password hash and revokes every token and
	// session the account holds, in one transaction
	ResetPassword(ctx context.Context, accountID string, passwordHash []byte) error
	// SwapRecoveryCodes replaces the encrypted recovery code blob only if it
	// still holds the expected previous value. Returns false when another
	// writer got there first.
	SwapRecoveryCodes(ctx context.Context, accountID, previous, next string) (bool, error)
}

// RoleRepository handles database operations for Role entities and their
// permission grants
type RoleRepository interface {
	GetByID(ctx context.Context, id string) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	List(ctx context.Context) ([]*models.Role, error)
	Save(ctx context.Context, role *models.Role) error
	Delete(ctx context.Context, id string) error
	// Permissions lists the permissions granted to a role
	Permissions(ctx context.Context, roleID string) ([]*models.Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	// SyncPermissions transactionally replaces a role's grants with exactly
	// the given permission set
	SyncPermissions(ctx context.Context, roleID string, permissionIDs []string) error
	// AccountCount reports how many accounts hold the role
	AccountCount(ctx context.Context, roleID string) (int64, error)
}

// PermissionRepository handles database operations for Permission entities
type PermissionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Permission, error)
	GetByName(ctx context.Context, name string) (*models.Permission, error)
	List(ctx context.Context) ([]*models.Permission, error)
	Save(ctx context.Context, permission *models.Permission) error
	Delete(ctx context.Context, id string) error
	// ReferenceCount counts role grants plus direct account grants that
	// still point at the permission
	ReferenceCount(ctx context.Context, permissionID string) (int64, error)
}

// AccountAccessRepository handles role and direct permission assignment for
// accounts
type AccountAccessRepository interface {
	Roles(ctx context.Context, accountID string) ([]*models.Role, error)
	DirectPermissions(ctx context.Context, accountID string) ([]*models.Permission, error)
	AssignRole(ctx context.Context, accountID, roleID string) error
	RemoveRole(ctx context.Context, accountID, roleID string) error
	GrantPermission(ctx context.Context, accountID, permissionID string) error
	RevokePermission(ctx context.Context, accountID, permissionID string) error
}

// APIKeyRepository handles database operations for APIKey entities
type APIKeyRepository interface {
	GetByID(ctx context.Context, id string) (*models.APIKey, error)
	// GetByIDAndAccount retrieves an API key scoped to its owning account
	GetByIDAndAccount(ctx context.Context, id, accountID string) (*models.APIKey, error)
	// GetActiveByPrefix retrieves the active keys sharing a lookup prefix
	GetActiveByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error)
	// CountLiveByAccount counts the account's active, unexpired keys
	CountLiveByAccount(ctx context.Context, accountID string) (int64, error)
	Save(ctx context.Context, apiKey *models.APIKey) error
	// RecordUsage atomically increments the usage counter and stamps last use
	RecordUsage(ctx context.Context, id string) error
	Delete(ctx context.Context, id, accountID string) error
}

// ExternalIdentityRepository handles database operations for linked
// provider identities
type ExternalIdentityRepository interface {
	// GetByProviderSubject retrieves a link by provider and subject id
	GetByProviderSubject(ctx context.Context, provider, subjectID string) (*models.ExternalIdentity, error)
	GetByAccountProvider(ctx context.Context, accountID, provider string) (*models.ExternalIdentity, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.ExternalIdentity, error)
	CountByAccount(ctx context.Context, accountID string) (int64, error)
	Save(ctx context.Context, identity *models.ExternalIdentity) error
	Delete(ctx context.Context, accountID, provider string) error
	// CreateAccountWithLink creates the account, its provider link and the
	// default role assignment in one transaction
	CreateAccountWithLink(ctx context.Context, account *models.Account, identity *models.ExternalIdentity, defaultRoleID string) error
}

// SecurityEventRepository handles database operations for SecurityEvent
// entities. Events are append only; the sole mutation is resolution.
type SecurityEventRepository interface {
	GetByID(ctx context.Context, id string) (*models.SecurityEvent, error)
	Save(ctx context.Context, event *models.SecurityEvent) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*models.SecurityEvent, error)
	ListByRiskLevel(ctx context.Context, riskLevel string, limit int) ([]*models.SecurityEvent, error)
	ListUnresolved(ctx context.Context, limit int) ([]*models.SecurityEvent, error)
	// MarkResolved stamps ResolvedAt once; returns false when the event was
	// already resolved
	MarkResolved(ctx context.Context, id string) (bool, error)
}

// AccessTokenRepository handles database operations for AccessToken and
// Session entities
type AccessTokenRepository interface {
	GetByID(ctx context.Context, id string) (*models.AccessToken, error)
	Save(ctx context.Context, token *models.AccessToken) error
	// Consume deletes the token row, reporting whether this caller removed
	// it. Exactly one concurrent consumer wins.
	Consume(ctx context.Context, id string) (bool, error)
	// DeleteWithSession removes the token and its linked session together
	DeleteWithSession(ctx context.Context, id, accountID string) error
	// PurgeAccount removes all of an account's tokens and sessions in one
	// transaction
	PurgeAccount(ctx context.Context, accountID string) error
	TouchActivity(ctx context.Context, id string) error

	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListActiveSessions(ctx context.Context, accountID string) ([]*models.Session, error)
	DeleteSession(ctx context.Context, id, accountID string) error
}
