package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/securecookie"
	"github.com/pitabwire/frame"
	"github.com/pitabwire/util"
	"github.com/wardenhq/service-identity/config"
	"github.com/wardenhq/service-identity/service/business"
	"github.com/wardenhq/service-identity/service/repository"
	"github.com/wardenhq/service-identity/utils"
)

type AuthServer struct {
	service          *frame.Service
	config           *config.IdentityConfig
	loginCookieCodec []securecookie.Codec

	// Repository dependencies
	accountRepo repository.AccountRepository

	// Engines
	credentials  *business.CredentialStore
	twoFactor    *business.TwoFactorEngine
	apiKeys      *business.APIKeyEngine
	oauth        *business.OAuthReconciler
	orchestrator *business.AuthSessionOrchestrator
	tokens       *business.TokenService
	authz        *business.AuthorizationEngine
	recorder     *business.SecurityEventRecorder
}

func NewAuthServer(ctx context.Context, service *frame.Service, identityConfig *config.IdentityConfig) *AuthServer {

	log := util.Log(ctx)

	crypter, err := utils.NewCrypter(identityConfig.SecretsEncryptionKey)
	if err != nil {
		log.WithError(err).Fatal("failed to setup secrets crypter")
	}

	accountRepo := repository.NewAccountRepository(service)
	roleRepo := repository.NewRoleRepository(service)
	permissionRepo := repository.NewPermissionRepository(service)
	accessRepo := repository.NewAccountAccessRepository(service)
	apiKeyRepo := repository.NewAPIKeyRepository(service)
	identityRepo := repository.NewExternalIdentityRepository(service)
	eventRepo := repository.NewSecurityEventRepository(service)
	tokenRepo := repository.NewAccessTokenRepository(service)

	limiter := business.NewRateLimiter()
	recorder := business.NewSecurityEventRecorder(eventRepo, nil)
	credentials := business.NewCredentialStore(crypter)
	tokens := business.NewTokenService(tokenRepo, identityConfig.TokenSigningSecret, identityConfig.TokenIssuer)
	twoFactor := business.NewTwoFactorEngine(accountRepo, credentials, recorder, identityConfig.TwoFactorIssuer)
	apiKeys := business.NewAPIKeyEngine(apiKeyRepo, accountRepo, limiter, recorder, identityConfig.MaxAPIKeysPerAccount)
	oauth := business.NewOAuthReconciler(accountRepo, identityRepo, roleRepo, recorder, identityConfig.DefaultAccountRole)
	authz := business.NewAuthorizationEngine(roleRepo, permissionRepo, accessRepo, recorder)

	policy := business.LoginPolicy{
		MaxAttemptsPerIP:         identityConfig.LoginRateLimitByIP,
		MaxAttemptsPerIdentifier: identityConfig.LoginRateLimitByIdentifier,
		ThrottleWindow:           identityConfig.LoginRateLimitWindow(),
		ChallengeTokenTTL:        identityConfig.ChallengeTokenDuration(),
		SessionTokenTTL:          identityConfig.SessionTokenDuration(),
	}
	orchestrator := business.NewAuthSessionOrchestrator(
		accountRepo, tokenRepo, accessRepo, roleRepo,
		credentials, twoFactor, tokens, limiter, recorder,
		policy, identityConfig.DefaultAccountRole)

	h := &AuthServer{
		service: service,
		config:  identityConfig,

		accountRepo: accountRepo,

		credentials:  credentials,
		twoFactor:    twoFactor,
		apiKeys:      apiKeys,
		oauth:        oauth,
		orchestrator: orchestrator,
		tokens:       tokens,
		authz:        authz,
		recorder:     recorder,
	}

	h.setupCookieCodec(ctx, identityConfig)

	return h
}

func (h *AuthServer) setupCookieCodec(ctx context.Context, cfg *config.IdentityConfig) {
	hashKey := utils.HashByteSecret([]byte(cfg.SecureCookieHashKey))
	blockKey := utils.HashByteSecret([]byte(cfg.SecureCookieBlockKey))
	h.loginCookieCodec = securecookie.CodecsFromPairs(hashKey, blockKey)
}

// Service exposes the underlying frame service.
func (h *AuthServer) Service() *frame.Service {
	return h.service
}

func (h *AuthServer) Config() *config.IdentityConfig {
	return h.config
}

// Authz exposes the authorization engine for seeding at migration time.
func (h *AuthServer) Authz() *business.AuthorizationEngine {
	return h.authz
}

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusFor maps the business failure taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, business.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, business.ErrInvalidCredential),
		errors.Is(err, business.ErrInvalidCode),
		errors.Is(err, business.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, business.ErrInactive):
		return http.StatusForbidden
	case errors.Is(err, business.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, business.ErrConflict),
		errors.Is(err, business.ErrQuotaExceeded),
		errors.Is(err, business.ErrProtectedResource),
		errors.Is(err, business.ErrLastAuthMethod),
		errors.Is(err, business.ErrAlreadyLinkedElsewhere):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *AuthServer) writeJSON(w http.ResponseWriter, code int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(payload)
}

func (h *AuthServer) writeError(ctx context.Context, w http.ResponseWriter, err error, code int, msg string) {

	w.Header().Set("Content-Type", "application/json")

	log := h.service.Log(ctx).
		WithField("code", code).
		WithField("message", msg).WithError(err)
	log.Error("internal service error")

	if h.config.ExposeErrors {
		msg = fmt.Sprintf("%s: %s", msg, err)
	}

	w.WriteHeader(code)
	encodeErr := json.NewEncoder(w).Encode(&ErrorResponse{
		Code:    code,
		Message: msg,
	})
	if encodeErr != nil {
		log.WithError(encodeErr).Error("could not write error to response")
	}
}

// writeBusinessError resolves a taxonomy failure to its status code. Rate
// limited responses carry a Retry-After header.
func (h *AuthServer) writeBusinessError(ctx context.Context, w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.writeError(ctx, w, err, code, "internal processing error")
		return
	}

	var limited *business.RateLimitedError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(int(limited.RetryAfter.Seconds())+1))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(&ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

func (h *AuthServer) addHandler(router *mux.Router,
	f func(w http.ResponseWriter, r *http.Request) error, path string, name string, method string) {

	router.Path(path).
		Name(name).
		Handler(h.wrapHandler(f, path, name)).
		Methods(method)
}
