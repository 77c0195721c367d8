package config

import (
	"time"

	"github.com/pitabwire/frame"
)

type IdentityConfig struct {
	frame.ConfigurationDefault

	// When true, detailed error messages are shown to callers (useful for development)
	// When false, generic messages are shown and details are only logged
	ExposeErrors bool `envDefault:"false" env:"EXPOSE_ERRORS"`

	// Key material. SecretsEncryptionKey feeds the AES-GCM crypter for
	// two factor secrets at rest; TokenSigningSecret signs bearer tokens.
	SecretsEncryptionKey string `envDefault:"" env:"SECRETS_ENCRYPTION_KEY"`
	TokenSigningSecret   string `envDefault:"" env:"TOKEN_SIGNING_SECRET"`
	TokenIssuer          string `envDefault:"service_identity" env:"TOKEN_ISSUER"`

	// ProviderCallbackSecret authenticates the provider integration that
	// posts verified assertions. Empty means the completion endpoint is
	// closed.
	ProviderCallbackSecret string `envDefault:"" env:"PROVIDER_CALLBACK_SECRET"`

	CsrfSecret           string `envDefault:"f80105efab6d863fd8fc243d269094469e2277e8f12e5a0a9f401e88494f7b4b" env:"CSRF_SECRET"`
	SecureCookieHashKey  string `envDefault:"d1f4f1a3b8d84f79e6d4b8b5c3f04725a8a7d6b4c2f9a987d5e4f3a2b1c086d1" env:"SECURE_COOKIE_HASH_KEY"`
	SecureCookieBlockKey string `envDefault:"a7e7b4f8d2e5a3c1f0b6d9d4f3a5c20798d1c1e7c4f6a3e4b0e5c2f4a7d6b301" env:"SECURE_COOKIE_BLOCK_KEY"`

	SessionTokenDurationSeconds   int64 `envDefault:"86400" env:"SESSION_TOKEN_DURATION_SECONDS"`
	ChallengeTokenDurationSeconds int64 `envDefault:"300" env:"CHALLENGE_TOKEN_DURATION_SECONDS"`

	LoginRateLimitByIP         int   `envDefault:"5" env:"LOGIN_RATE_LIMIT_BY_IP"`
	LoginRateLimitByIdentifier int   `envDefault:"3" env:"LOGIN_RATE_LIMIT_BY_IDENTIFIER"`
	LoginRateLimitWindowSecs   int64 `envDefault:"60" env:"LOGIN_RATE_LIMIT_WINDOW_SECONDS"`

	MaxAPIKeysPerAccount int    `envDefault:"10" env:"MAX_API_KEYS_PER_ACCOUNT"`
	DefaultAccountRole   string `envDefault:"user" env:"DEFAULT_ACCOUNT_ROLE"`

	TwoFactorIssuer string `envDefault:"Warden Identity" env:"TWO_FACTOR_ISSUER"`
}

func (c *IdentityConfig) SessionTokenDuration() time.Duration {
	return time.Duration(c.SessionTokenDurationSeconds) * time.Second
}

func (c *IdentityConfig) ChallengeTokenDuration() time.Duration {
	return time.Duration(c.ChallengeTokenDurationSeconds) * time.Second
}

func (c *IdentityConfig) LoginRateLimitWindow() time.Duration {
	return time.Duration(c.LoginRateLimitWindowSecs) * time.Second
}
