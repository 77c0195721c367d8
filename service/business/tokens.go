package business

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wardenhq/service-identity/service/models"
	"github.com/wardenhq/service-identity/service/repository"
	"github.com/wardenhq/service-identity/utils"
)

// Token capabilities. A challenge token can do nothing except answer the
// two factor challenge it was minted for.
const (
	CapabilitySession            = "session"
	CapabilityTwoFactorChallenge = "2fa:verify"
)

// TokenClaims is the signed payload. The jti points at the backing
// AccessToken row, so a token without its row is dead regardless of its
// signature.
type TokenClaims struct {
	jwt.RegisteredClaims
	Capability string `json:"cap"`
}

// TokenMetadata attributes a token to the request that minted it.
type TokenMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenService mints and checks HS256 bearer tokens backed by stored rows.
type TokenService struct {
	store      repository.AccessTokenRepository
	signingKey []byte
	issuer     string
}

func NewTokenService(store repository.AccessTokenRepository, signingSecret, issuer string) *TokenService {
	return &TokenService{
		store:      store,
		signingKey: utils.HashByteSecret([]byte(signingSecret)),
		issuer:     issuer,
	}
}

// Issue mints a token for the account with the given capability and life.
func (s *TokenService) Issue(ctx context.Context, accountID, capability string, ttl time.Duration, meta TokenMetadata) (string, *models.AccessToken, error) {
	now := time.Now()

	record := &models.AccessToken{
		AccountID:  accountID,
		Capability: capability,
		ExpiresAt:  now.Add(ttl),
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}
	record.GenID(ctx)

	if err := s.store.Save(ctx, record); err != nil {
		return "", nil, err
	}

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        record.ID,
			Subject:   accountID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(record.ExpiresAt),
		},
		Capability: capability,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", nil, err
	}
	return signed, record, nil
}

// Verify validates the signature and confirms the backing row still exists.
func (s *TokenService) Verify(ctx context.Context, signed string) (*TokenClaims, *models.AccessToken, error) {
	var claims TokenClaims
	_, err := jwt.ParseWithClaims(signed, &claims,
		func(token *jwt.Token) (any, error) { return s.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, ErrExpired
		}
		return nil, nil, ErrInvalidCredential
	}

	record, err := s.store.GetByID(ctx, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if record == nil {
		// Revoked or already consumed
		return nil, nil, ErrInvalidCredential
	}
	if !record.ExpiresAt.After(time.Now()) {
		return nil, nil, ErrExpired
	}

	return &claims, record, nil
}

// Consume spends a one shot token. Exactly one of any concurrent callers
// sees true.
func (s *TokenService) Consume(ctx context.Context, tokenID string) (bool, error) {
	return s.store.Consume(ctx, tokenID)
}

// Revoke drops a single token and its session.
func (s *TokenService) Revoke(ctx context.Context, tokenID, accountID string) error {
	return s.store.DeleteWithSession(ctx, tokenID, accountID)
}

// RevokeAll drops every token and session the account holds.
func (s *TokenService) RevokeAll(ctx context.Context, accountID string) error {
	return s.store.PurgeAccount(ctx, accountID)
}

func (s *TokenService) TouchActivity(ctx context.Context, tokenID string) error {
	return s.store.TouchActivity(ctx, tokenID)
}
