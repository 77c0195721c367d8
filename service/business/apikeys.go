package business

import (
	"context"
	"strings"
	"time"

	"github.com/pitabwire/frame"
	"github.com/wardenhq/service-identity/service/models"
	"github.com/wardenhq/service-identity/service/repository"
	"github.com/wardenhq/service-identity/utils"
	"gorm.io/datatypes"
)

const (
	apiKeyPrefix             = "ak_"
	apiKeySecretLength       = 32
	apiKeyLookupPrefixLength = 10

	// DefaultMaxAPIKeysPerAccount bounds live keys per account.
	DefaultMaxAPIKeysPerAccount = 10
)

// CreateKeyInput carries the caller supplied key attributes.
type CreateKeyInput struct {
	Name               string
	Scopes             []string
	AllowedIPs         []string
	ExpiresAt          *time.Time
	RateLimitPerMinute int
}

// UpdateKeyInput holds partial updates; nil fields are left untouched.
type UpdateKeyInput struct {
	Name       *string
	Scopes     []string
	AllowedIPs []string
	Active     *bool
}

// APIKeyEngine mints, validates and manages API keys. Only the bcrypt hash
// and the short lookup prefix are ever stored.
type APIKeyEngine struct {
	keys     repository.APIKeyRepository
	accounts repository.AccountRepository
	hasher   *utils.BCrypt
	limiter  RateWindow
	recorder *SecurityEventRecorder
	maxKeys  int
}

func NewAPIKeyEngine(keys repository.APIKeyRepository, accounts repository.AccountRepository, limiter RateWindow, recorder *SecurityEventRecorder, maxKeys int) *APIKeyEngine {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxAPIKeysPerAccount
	}
	return &APIKeyEngine{
		keys:     keys,
		accounts: accounts,
		hasher:   utils.NewBCrypt(),
		limiter:  limiter,
		recorder: recorder,
		maxKeys:  maxKeys,
	}
}

// Create mints a key and returns its plaintext exactly once.
func (e *APIKeyEngine) Create(ctx context.Context, account *models.Account, input CreateKeyInput, evtCtx EventContext) (*models.APIKey, string, error) {
	live, err := e.keys.CountLiveByAccount(ctx, account.ID)
	if err != nil {
		return nil, "", err
	}
	if live >= int64(e.maxKeys) {
		return nil, "", ErrQuotaExceeded
	}

	plaintext := apiKeyPrefix + utils.GenerateRandomString(apiKeySecretLength)
	hash, err := e.hasher.Hash(ctx, []byte(plaintext))
	if err != nil {
		return nil, "", err
	}

	key := &models.APIKey{
		AccountID:          account.ID,
		Name:               input.Name,
		Prefix:             plaintext[:apiKeyLookupPrefixLength],
		Hash:               hash,
		Scopes:             datatypes.JSONSlice[string](input.Scopes),
		AllowedIPs:         datatypes.JSONSlice[string](input.AllowedIPs),
		ExpiresAt:          input.ExpiresAt,
		RateLimitPerMinute: input.RateLimitPerMinute,
		Active:             true,
	}

	if err = e.keys.Save(ctx, key); err != nil {
		return nil, "", err
	}

	e.recorder.Record(ctx, EventAPIKeyCreated, evtCtx,
		frame.JSONMap{"key_id": key.ID, "key_name": key.Name})

	return key, plaintext, nil
}

// Validate authenticates a presented key. Every rejection path except rate
// limiting collapses into an invalid credential so probes learn nothing
// about why a key failed.
func (e *APIKeyEngine) Validate(ctx context.Context, presented, sourceIP string) (*models.APIKey, *models.Account, error) {
	if len(presented) < apiKeyLookupPrefixLength || !strings.HasPrefix(presented, apiKeyPrefix) {
		return nil, nil, ErrInvalidCredential
	}

	candidates, err := e.keys.GetActiveByPrefix(ctx, presented[:apiKeyLookupPrefixLength])
	if err != nil {
		return nil, nil, err
	}

	var matched *models.APIKey
	for _, candidate := range candidates {
		if e.hasher.Compare(ctx, candidate.Hash, []byte(presented)) == nil {
			matched = candidate
			break
		}
	}
	if matched == nil {
		return nil, nil, ErrInvalidCredential
	}

	if !matched.IsLive(time.Now()) {
		return nil, nil, ErrInvalidCredential
	}
	if !matched.IPAllowed(sourceIP) {
		return nil, nil, ErrInvalidCredential
	}

	if matched.RateLimitPerMinute > 0 {
		// Each source IP spends its own budget against the key's limit.
		result := e.limiter.Check(ctx, "api_key:"+matched.ID+":"+sourceIP, matched.RateLimitPerMinute, time.Minute)
		if !result.Allowed {
			return nil, nil, &RateLimitedError{RetryAfter: result.RetryAfter}
		}
	}

	if err = e.keys.RecordUsage(ctx, matched.ID); err != nil {
		return nil, nil, err
	}

	account, err := e.accounts.GetByID(ctx, matched.AccountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, ErrInvalidCredential
	}
	if !account.Active {
		return nil, nil, ErrInvalidCredential
	}

	return matched, account, nil
}

func (e *APIKeyEngine) List(ctx context.Context, account *models.Account) ([]*models.APIKey, error) {
	return e.keys.ListByAccount(ctx, account.ID)
}

func (e *APIKeyEngine) Get(ctx context.Context, account *models.Account, keyID string) (*models.APIKey, error) {
	key, err := e.keys.GetByIDAndAccount(ctx, keyID, account.ID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrNotFound
	}
	return key, nil
}

func (e *APIKeyEngine) Update(ctx context.Context, account *models.Account, keyID string, input UpdateKeyInput) (*models.APIKey, error) {
	key, err := e.Get(ctx, account, keyID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		key.Name = *input.Name
	}
	if input.Scopes != nil {
		key.Scopes = datatypes.JSONSlice[string](input.Scopes)
	}
	if input.AllowedIPs != nil {
		key.AllowedIPs = datatypes.JSONSlice[string](input.AllowedIPs)
	}
	if input.Active != nil {
		key.Active = *input.Active
	}

	if err = e.keys.Save(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Revoke removes the key outright; a revoked key can never validate again.
func (e *APIKeyEngine) Revoke(ctx context.Context, account *models.Account, keyID string, evtCtx EventContext) error {
	key, err := e.Get(ctx, account, keyID)
	if err != nil {
		return err
	}

	if err = e.keys.Delete(ctx, key.ID, account.ID); err != nil {
		return err
	}

	e.recorder.Record(ctx, EventAPIKeyRevoked, evtCtx,
		frame.JSONMap{"key_id": key.ID, "key_name": key.Name})
	return nil
}
