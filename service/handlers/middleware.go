package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/pitabwire/util"
	"github.com/wardenhq/service-identity/service/business"
	"github.com/wardenhq/service-identity/service/models"
	"github.com/wardenhq/service-identity/utils"
)

type contextKey string

const (
	contextKeyAccount  = contextKey("auth_account")
	contextKeyTokenID  = contextKey("auth_token_id")
	contextKeyAPIKey   = contextKey("auth_api_key")
	sessionCookieName  = "identity_session"
	sessionCookieField = "token"

	providerSecretHeader = "X-Provider-Secret"
)

func accountFromContext(ctx context.Context) *models.Account {
	account, _ := ctx.Value(contextKeyAccount).(*models.Account)
	return account
}

func tokenIDFromContext(ctx context.Context) string {
	tokenID, _ := ctx.Value(contextKeyTokenID).(string)
	return tokenID
}

func apiKeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(contextKeyAPIKey).(*models.APIKey)
	return key
}

// bearerToken pulls the token from the Authorization header, falling back to
// the signed browser cookie.
func (h *AuthServer) bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	var token string
	for _, codec := range h.loginCookieCodec {
		if decodeErr := codec.Decode(sessionCookieField, cookie.Value, &token); decodeErr == nil {
			return token
		}
	}
	return ""
}

// authenticate resolves the session token to an account. Challenge tokens
// are rejected here; they open nothing but the two factor verify endpoint.
func (h *AuthServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := h.bearerToken(r)
		if token == "" {
			h.writeBusinessError(ctx, w, business.ErrInvalidCredential)
			return
		}

		claims, _, err := h.tokens.Verify(ctx, token)
		if err != nil {
			h.writeBusinessError(ctx, w, err)
			return
		}
		if claims.Capability != business.CapabilitySession {
			h.writeBusinessError(ctx, w, business.ErrInvalidCredential)
			return
		}

		account, err := h.accountRepo.GetByID(ctx, claims.Subject)
		if err != nil {
			h.writeError(ctx, w, err, http.StatusInternalServerError, "internal processing error")
			return
		}
		if account == nil {
			h.writeBusinessError(ctx, w, business.ErrInvalidCredential)
			return
		}
		if !account.Active {
			h.writeBusinessError(ctx, w, business.ErrInactive)
			return
		}

		if err = h.tokens.TouchActivity(ctx, claims.ID); err != nil {
			util.Log(ctx).WithError(err).Warn("could not record token activity")
		}

		ctx = context.WithValue(ctx, contextKeyAccount, account)
		ctx = context.WithValue(ctx, contextKeyTokenID, claims.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission gates an endpoint on the effective permission set.
func (h *AuthServer) requirePermission(permission string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		account := accountFromContext(ctx)
		if account == nil {
			h.writeBusinessError(ctx, w, business.ErrInvalidCredential)
			return
		}

		allowed, err := h.authz.Can(ctx, account.ID, permission)
		if err != nil {
			h.writeError(ctx, w, err, http.StatusInternalServerError, "internal processing error")
			return
		}
		if !allowed {
			h.writeError(ctx, w, business.ErrProtectedResource,
				http.StatusForbidden, "permission denied")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAPIKey authenticates machine callers with the X-API-Key header and
// optionally demands a scope.
func (h *AuthServer) requireAPIKey(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		presented := r.Header.Get("X-API-Key")
		if presented == "" {
			h.writeBusinessError(ctx, w, business.ErrInvalidCredential)
			return
		}

		key, account, err := h.apiKeys.Validate(ctx, presented, util.GetIP(r))
		if err != nil {
			h.writeBusinessError(ctx, w, err)
			return
		}
		if scope != "" && !key.HasScope(scope) {
			h.writeError(ctx, w, business.ErrProtectedResource,
				http.StatusForbidden, "missing required scope")
			return
		}

		ctx = context.WithValue(ctx, contextKeyAccount, account)
		ctx = context.WithValue(ctx, contextKeyAPIKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireProviderSecret admits only the provider integration that completed
// the upstream exchange. Assertions are trusted, so the gate fails closed
// when no secret is configured.
func (h *AuthServer) requireProviderSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		configured := h.config.ProviderCallbackSecret
		presented := r.Header.Get(providerSecretHeader)
		if configured == "" || presented == "" {
			h.writeBusinessError(ctx, w, business.ErrInvalidCredential)
			return
		}

		if subtle.ConstantTimeCompare(
			utils.HashByteSecret([]byte(presented)),
			utils.HashByteSecret([]byte(configured))) != 1 {
			h.writeBusinessError(ctx, w, business.ErrInvalidCredential)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *AuthServer) eventContext(r *http.Request) business.EventContext {
	evtCtx := business.EventContext{
		IPAddress: util.GetIP(r),
		UserAgent: r.UserAgent(),
	}
	if account := accountFromContext(r.Context()); account != nil {
		evtCtx.AccountID = account.ID
	}
	return evtCtx
}
