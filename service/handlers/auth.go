package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pitabwire/util"
	"github.com/wardenhq/service-identity/service/business"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type verifyTwoFactorRequest struct {
	ChallengeToken string `json:"challengeToken"`
	Code           string `json:"code"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

const minPasswordLength = 8

func (h *AuthServer) RegisterEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	var body registerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}
	if body.Email == "" || body.Username == "" || len(body.Password) < minPasswordLength {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "email, username and a password of at least 8 characters are required"})
	}

	result, err := h.orchestrator.Register(ctx, business.RegisterInput{
		Email:     body.Email,
		Username:  body.Username,
		Name:      body.Name,
		Password:  body.Password,
		IPAddress: util.GetIP(req),
		UserAgent: req.UserAgent(),
	})
	if err != nil {
		return err
	}

	h.setSessionCookie(rw, result.Token, result.ExpiresAt)
	return h.writeJSON(rw, http.StatusCreated, h.loginPayload(result))
}

func (h *AuthServer) LoginEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	var body loginRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	result, err := h.orchestrator.Login(ctx, business.LoginInput{
		Identifier: body.Identifier,
		Password:   body.Password,
		IPAddress:  util.GetIP(req),
		UserAgent:  req.UserAgent(),
	})
	if err != nil {
		return err
	}

	if result.RequiresTwoFactor {
		return h.writeJSON(rw, http.StatusOK, loginResultPayload{
			RequiresTwoFactor: true,
			ChallengeToken:    result.ChallengeToken,
		})
	}

	h.setSessionCookie(rw, result.Token, result.ExpiresAt)
	return h.writeJSON(rw, http.StatusOK, h.loginPayload(result))
}

func (h *AuthServer) VerifyTwoFactorEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	var body verifyTwoFactorRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	result, err := h.orchestrator.VerifyTwoFactor(ctx, body.ChallengeToken, body.Code,
		util.GetIP(req), req.UserAgent())
	if err != nil {
		return err
	}

	h.setSessionCookie(rw, result.Token, result.ExpiresAt)
	return h.writeJSON(rw, http.StatusOK, h.loginPayload(result))
}

func (h *AuthServer) LogoutEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	err := h.orchestrator.Logout(ctx, account, tokenIDFromContext(ctx), h.eventContext(req))
	if err != nil {
		return err
	}

	h.clearSessionCookie(rw)
	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) LogoutAllEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	err := h.orchestrator.LogoutAll(ctx, account, h.eventContext(req))
	if err != nil {
		return err
	}

	h.clearSessionCookie(rw)
	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) MeEndpoint(rw http.ResponseWriter, req *http.Request) error {
	account := accountFromContext(req.Context())
	return h.writeJSON(rw, http.StatusOK, newAccountPayload(account))
}

func (h *AuthServer) MyPermissionsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	permissions, err := h.authz.EffectivePermissions(ctx, account.ID)
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, map[string]any{"permissions": permissions})
}

// ChangePasswordEndpoint rotates the password; every outstanding token dies
// with the old one, this session included.
func (h *AuthServer) ChangePasswordEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	var body changePasswordRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}
	if len(body.NewPassword) < minPasswordLength {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "a password of at least 8 characters is required"})
	}

	err := h.orchestrator.ChangePassword(ctx, account, body.CurrentPassword, body.NewPassword, h.eventContext(req))
	if err != nil {
		return err
	}

	h.clearSessionCookie(rw)
	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) loginPayload(result *business.LoginResult) loginResultPayload {
	account := newAccountPayload(result.Account)
	return loginResultPayload{
		Token:     result.Token,
		ExpiresAt: &result.ExpiresAt,
		Account:   &account,
	}
}

func (h *AuthServer) setSessionCookie(rw http.ResponseWriter, token string, expiresAt time.Time) {
	encoded, err := h.loginCookieCodec[0].Encode(sessionCookieField, token)
	if err != nil {
		return
	}

	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  expiresAt,
	})
}

func (h *AuthServer) clearSessionCookie(rw http.ResponseWriter) {
	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
