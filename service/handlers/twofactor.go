package handlers

import (
	"encoding/json"
	"net/http"
)

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

type twoFactorPasswordRequest struct {
	Password string `json:"password"`
}

func (h *AuthServer) EnableTwoFactorEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	enrollment, err := h.twoFactor.Enable(ctx, account, h.eventContext(req))
	if err != nil {
		return err
	}

	return h.writeJSON(rw, http.StatusOK, map[string]any{
		"secret":          enrollment.Secret,
		"provisioningUri": enrollment.ProvisioningURI,
		"recoveryCodes":   enrollment.RecoveryCodes,
	})
}

func (h *AuthServer) ConfirmTwoFactorEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	var body twoFactorCodeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	if err := h.twoFactor.Confirm(ctx, account, body.Code, h.eventContext(req)); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) DisableTwoFactorEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	var body twoFactorPasswordRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	if err := h.twoFactor.Disable(ctx, account, body.Password, h.eventContext(req)); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) RecoveryCodesEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	codes, err := h.twoFactor.RecoveryCodes(ctx, account)
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, map[string]any{"recoveryCodes": codes})
}

func (h *AuthServer) RegenerateRecoveryCodesEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	var body twoFactorPasswordRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	codes, err := h.twoFactor.RegenerateRecoveryCodes(ctx, account, body.Password, h.eventContext(req))
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, map[string]any{"recoveryCodes": codes})
}
