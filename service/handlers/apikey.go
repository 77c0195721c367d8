package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/wardenhq/service-identity/service/business"
)

type createAPIKeyRequest struct {
	Name               string     `json:"name"`
	Scopes             []string   `json:"scopes"`
	AllowedIPs         []string   `json:"allowedIps"`
	ExpiresAt          *time.Time `json:"expiresAt"`
	RateLimitPerMinute int        `json:"rateLimitPerMinute"`
}

type updateAPIKeyRequest struct {
	Name       *string  `json:"name"`
	Scopes     []string `json:"scopes"`
	AllowedIPs []string `json:"allowedIps"`
	Active     *bool    `json:"active"`
}

func (h *AuthServer) CreateAPIKeyEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	var body createAPIKeyRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}
	if body.Name == "" {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "a key name is required"})
	}

	key, plaintext, err := h.apiKeys.Create(ctx, account, business.CreateKeyInput{
		Name:               body.Name,
		Scopes:             body.Scopes,
		AllowedIPs:         body.AllowedIPs,
		ExpiresAt:          body.ExpiresAt,
		RateLimitPerMinute: body.RateLimitPerMinute,
	}, h.eventContext(req))
	if err != nil {
		return err
	}

	payload := newAPIKeyPayload(key)
	// The plaintext key leaves the service exactly once.
	payload.Key = plaintext
	return h.writeJSON(rw, http.StatusCreated, payload)
}

func (h *AuthServer) ListAPIKeyEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	keys, err := h.apiKeys.List(ctx, account)
	if err != nil {
		return err
	}

	payloads := make([]apiKeyPayload, len(keys))
	for i, key := range keys {
		payloads[i] = newAPIKeyPayload(key)
	}
	return h.writeJSON(rw, http.StatusOK, payloads)
}

func (h *AuthServer) GetAPIKeyEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	key, err := h.apiKeys.Get(ctx, account, mux.Vars(req)["keyID"])
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, newAPIKeyPayload(key))
}

func (h *AuthServer) UpdateAPIKeyEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	var body updateAPIKeyRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	key, err := h.apiKeys.Update(ctx, account, mux.Vars(req)["keyID"], business.UpdateKeyInput{
		Name:       body.Name,
		Scopes:     body.Scopes,
		AllowedIPs: body.AllowedIPs,
		Active:     body.Active,
	})
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, newAPIKeyPayload(key))
}

func (h *AuthServer) DeleteAPIKeyEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	err := h.apiKeys.Revoke(ctx, account, mux.Vars(req)["keyID"], h.eventContext(req))
	if err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

// IntegrationWhoAmIEndpoint lets a machine caller confirm which account and
// scopes its key resolves to.
func (h *AuthServer) IntegrationWhoAmIEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)
	key := apiKeyFromContext(ctx)

	return h.writeJSON(rw, http.StatusOK, map[string]any{
		"account": newAccountPayload(account),
		"keyId":   key.ID,
		"scopes":  []string(key.Scopes),
	})
}
